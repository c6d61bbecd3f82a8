// Package tasks implements the shared task queue and its optimistic claim
// protocol. Tasks live as one JSON document in the shared store; claiming is
// read-then-conditionally-write with no cross-process lock, so two workers
// racing for the same task can both see it assigned. The second writer wins
// and the loser's claim is silently overwritten. That race is accepted;
// workers treat a conflict as "try the next task".
package tasks

import (
	"time"

	"github.com/triad-sh/triad/internal/coord"
)

// AssignAny marks a task claimable by any worker.
const AssignAny = "any"

// Status values for the task state machine.
const (
	StatusAssigned   = "assigned"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Priority levels, most urgent first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityNormal: 2,
	PriorityLow:    3,
}

// Rank returns the sort rank of a priority; unknown values sort last.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Valid reports whether p is a known priority level.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Task is one unit of work in the shared queue.
//
// Invariants: in-progress implies ClaimedBy and ClaimedAt are set; completed
// implies Output, CompletedBy, and CompletedAt are set.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	AssignedTo  string     `json:"assignedTo"`
	Priority    Priority   `json:"priority"`
	Cluster     string     `json:"cluster,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	ClaimedBy   string     `json:"claimedBy,omitempty"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	Output      string     `json:"output,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ClaimableBy reports whether workerID may claim this task right now.
func (t *Task) ClaimableBy(workerID string) bool {
	return t.Status == StatusAssigned && (t.AssignedTo == workerID || t.AssignedTo == AssignAny)
}

func (t *Task) validate() error {
	if t.Description == "" {
		return coord.MissingField("description")
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return &coord.ValidationError{Field: "priority", Reason: "must be urgent, high, normal, or low"}
	}
	return nil
}
