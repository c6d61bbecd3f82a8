package tasks

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/store"
)

// Queue is the shared task list plus the append-only output log.
type Queue struct {
	store *store.Store
	bus   *events.Bus // nil-safe
}

// NewQueue creates a Queue over the shared store.
func NewQueue(s *store.Store, bus *events.Bus) *Queue {
	return &Queue{store: s, bus: bus}
}

// Enqueue appends a new task with status assigned and returns it. An empty
// assignedTo defaults to any; an empty priority defaults to normal.
func (q *Queue) Enqueue(description, assignedTo string, priority Priority) (Task, error) {
	return q.EnqueueTask(Task{
		Description: description,
		AssignedTo:  assignedTo,
		Priority:    priority,
	})
}

// EnqueueTask appends a task record, filling id, status, and timestamps.
func (q *Queue) EnqueueTask(t Task) (Task, error) {
	if err := t.validate(); err != nil {
		return Task{}, err
	}
	if t.AssignedTo == "" {
		t.AssignedTo = AssignAny
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}

	t.ID = uuid.NewString()
	t.Status = StatusAssigned
	t.CreatedAt = time.Now()

	if err := store.Append(q.store, store.DocTasks, t); err != nil {
		return Task{}, fmt.Errorf("enqueue: %w", err)
	}

	if q.bus != nil {
		q.bus.Publish(events.NewEvent(events.EventTaskAssigned, t.AssignedTo, map[string]any{
			"task": t.ID, "priority": string(t.Priority),
		}))
	}
	return t, nil
}

// List returns every task in the queue.
func (q *Queue) List() ([]Task, error) {
	q.store.RLock()
	defer q.store.RUnlock()
	return q.load()
}

// Get returns one task by id.
func (q *Queue) Get(taskID string) (Task, error) {
	q.store.RLock()
	defer q.store.RUnlock()

	list, err := q.load()
	if err != nil {
		return Task{}, err
	}
	for _, t := range list {
		if t.ID == taskID {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("task %s: %w", taskID, coord.ErrNotFound)
}

// ListClaimable returns all tasks workerID may claim, most urgent first.
// Ties within a priority keep insertion order.
func (q *Queue) ListClaimable(workerID string) ([]Task, error) {
	q.store.RLock()
	defer q.store.RUnlock()

	list, err := q.load()
	if err != nil {
		return nil, err
	}

	var claimable []Task
	for _, t := range list {
		if t.ClaimableBy(workerID) {
			claimable = append(claimable, t)
		}
	}

	sort.SliceStable(claimable, func(i, j int) bool {
		return claimable[i].Priority.Rank() < claimable[j].Priority.Rank()
	})
	return claimable, nil
}

// Claim moves a task from assigned to in-progress on behalf of workerID.
// Returns coord.ErrConflict if the task is no longer assigned; the record
// is left unchanged. The check-then-write is only atomic within this
// process; across processes the claim is optimistic.
func (q *Queue) Claim(taskID, workerID string) (Task, error) {
	if workerID == "" {
		return Task{}, coord.MissingField("workerId")
	}

	q.store.Lock()
	defer q.store.Unlock()

	list, err := q.load()
	if err != nil {
		return Task{}, err
	}

	idx := indexOf(list, taskID)
	if idx < 0 {
		return Task{}, fmt.Errorf("task %s: %w", taskID, coord.ErrNotFound)
	}
	t := &list[idx]
	if t.Status != StatusAssigned {
		return Task{}, fmt.Errorf("task %s is %s: %w", taskID, t.Status, coord.ErrConflict)
	}

	now := time.Now()
	t.Status = StatusInProgress
	t.ClaimedBy = workerID
	t.ClaimedAt = &now

	if err := q.store.Write(store.DocTasks, list); err != nil {
		return Task{}, fmt.Errorf("claim: %w", err)
	}

	if q.bus != nil {
		q.bus.Publish(events.NewEvent(events.EventTaskClaimed, workerID, map[string]any{
			"task": taskID,
		}))
	}
	return *t, nil
}

// ClaimNext claims the most urgent claimable task for workerID. Tasks that
// conflict mid-claim are skipped. Returns coord.ErrNotFound when nothing
// is claimable.
func (q *Queue) ClaimNext(workerID string) (Task, error) {
	claimable, err := q.ListClaimable(workerID)
	if err != nil {
		return Task{}, err
	}
	for _, t := range claimable {
		claimed, err := q.Claim(t.ID, workerID)
		if err == nil {
			return claimed, nil
		}
		if !errors.Is(err, coord.ErrConflict) {
			return Task{}, err
		}
	}
	return Task{}, fmt.Errorf("no claimable task for %s: %w", workerID, coord.ErrNotFound)
}

// Submit records a task's output, completes it, and appends an immutable
// Output record to the output log.
func (q *Queue) Submit(taskID, workerID, output string) (Task, error) {
	if output == "" {
		return Task{}, coord.MissingField("output")
	}
	if workerID == "" {
		return Task{}, coord.MissingField("workerId")
	}

	q.store.Lock()
	defer q.store.Unlock()

	list, err := q.load()
	if err != nil {
		return Task{}, err
	}

	idx := indexOf(list, taskID)
	if idx < 0 {
		return Task{}, fmt.Errorf("task %s: %w", taskID, coord.ErrNotFound)
	}

	now := time.Now()
	t := &list[idx]
	t.Status = StatusCompleted
	t.Output = output
	t.CompletedBy = workerID
	t.CompletedAt = &now

	if err := q.store.Write(store.DocTasks, list); err != nil {
		return Task{}, fmt.Errorf("submit: %w", err)
	}

	rec := Output{
		TaskID:    taskID,
		WorkerID:  workerID,
		Cluster:   t.Cluster,
		Content:   output,
		Timestamp: now,
	}
	if err := q.appendOutput(rec); err != nil {
		return Task{}, err
	}

	if q.bus != nil {
		q.bus.Publish(events.NewEvent(events.EventTaskCompleted, workerID, map[string]any{
			"task": taskID, "cluster": t.Cluster,
		}))
	}
	return *t, nil
}

// Reassign handles a worker going away. With force, every in-progress task
// claimed by workerID is pushed back to assigned with the claim cleared.
// Without force, claims are left in place for the same worker to resume
// after a restart. Returns the number of tasks released.
func (q *Queue) Reassign(workerID string, force bool) (int, error) {
	if !force {
		return 0, nil
	}

	q.store.Lock()
	defer q.store.Unlock()

	list, err := q.load()
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range list {
		t := &list[i]
		if t.Status != StatusInProgress || t.ClaimedBy != workerID {
			continue
		}
		t.Status = StatusAssigned
		t.ClaimedBy = ""
		t.ClaimedAt = nil
		released++
	}
	if released == 0 {
		return 0, nil
	}

	if err := q.store.Write(store.DocTasks, list); err != nil {
		return 0, fmt.Errorf("reassign: %w", err)
	}

	if q.bus != nil {
		q.bus.Publish(events.NewEvent(events.EventTaskReleased, workerID, map[string]any{
			"released": released,
		}))
	}
	return released, nil
}

// load reads the task document without taking the store lock; callers hold it.
func (q *Queue) load() ([]Task, error) {
	var list []Task
	if err := q.store.Read(store.DocTasks, &list); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return list, nil
}

func indexOf(list []Task, taskID string) int {
	for i := range list {
		if list[i].ID == taskID {
			return i
		}
	}
	return -1
}
