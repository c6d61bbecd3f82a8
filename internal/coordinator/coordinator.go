package coordinator

import (
	"fmt"
	"os"
	"time"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/liveness"
	"github.com/triad-sh/triad/internal/messaging"
	"github.com/triad-sh/triad/internal/store"
	"github.com/triad-sh/triad/internal/tasks"
)

// Coordinator bundles the worker-facing operations behind a single surface
// so the HTTP gateway, the MCP server, and the CLI expose identical
// semantics over the same shared store.
type Coordinator struct {
	store   *store.Store
	Mailbox *messaging.Mailbox
	Queue   *tasks.Queue
	Tracker *liveness.Tracker
}

// New wires a Coordinator over the shared store. The bus is optional.
func New(s *store.Store, bus *events.Bus) *Coordinator {
	tracker := liveness.NewTracker(s, bus)
	return &Coordinator{
		store:   s,
		Mailbox: messaging.NewMailbox(s, tracker, bus),
		Queue:   tasks.NewQueue(s, bus),
		Tracker: tracker,
	}
}

// MessageStats summarizes the message log.
type MessageStats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// TaskStats summarizes the task queue by state.
type TaskStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

// Status is a point-in-time snapshot of the whole coordination system.
type Status struct {
	Status        string            `json:"status"`
	StorePath     string            `json:"storePath"`
	Host          string            `json:"host"`
	Messages      MessageStats      `json:"messages"`
	Tasks         TaskStats         `json:"tasks"`
	Outputs       int               `json:"outputs"`
	ActiveWorkers []liveness.Worker `json:"activeWorkers"`
}

// Status assembles the system snapshot from the shared documents. Worker
// liveness uses the default heartbeat threshold.
func (c *Coordinator) Status() (Status, error) {
	host, _ := os.Hostname()
	st := Status{
		Status:    "operational",
		StorePath: c.store.Dir(),
		Host:      host,
	}

	c.store.RLock()
	msgs, err := store.Load[[]messaging.Message](c.store, store.DocMessages)
	if err == nil {
		var list []tasks.Task
		if err = c.store.Read(store.DocTasks, &list); err == nil {
			var outs []tasks.Output
			if err = c.store.Read(store.DocOutputs, &outs); err == nil {
				st.Outputs = len(outs)
			}
			st.Tasks.Total = len(list)
			for _, t := range list {
				switch t.Status {
				case tasks.StatusAssigned:
					st.Tasks.Pending++
				case tasks.StatusInProgress:
					st.Tasks.Active++
				case tasks.StatusCompleted:
					st.Tasks.Completed++
				}
			}
		}
		st.Messages.Total = len(msgs)
		for _, m := range msgs {
			if !m.Read {
				st.Messages.Unread++
			}
		}
	}
	c.store.RUnlock()
	if err != nil {
		return Status{}, fmt.Errorf("read status documents: %w", err)
	}

	workers, err := c.Tracker.ActiveWorkers(0)
	if err != nil {
		return Status{}, err
	}
	st.ActiveWorkers = workers
	if st.ActiveWorkers == nil {
		st.ActiveWorkers = []liveness.Worker{}
	}
	return st, nil
}

// MergedOutput pairs one output record with the description of the task
// that produced it.
type MergedOutput struct {
	Task      string    `json:"task"`
	WorkerID  string    `json:"workerId"`
	Cluster   string    `json:"cluster,omitempty"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// MergeResult is the flat combination of every submitted output.
type MergeResult struct {
	Project        string         `json:"project"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	TotalTasks     int            `json:"totalTasks"`
	CompletedTasks int            `json:"completedTasks"`
	Workers        []string       `json:"workers"`
	Outputs        []MergedOutput `json:"outputs"`
}

// MergeOutputs combines every output in the log into one report, resolving
// each back to its task description. Returns coord.ErrNotFound when no
// outputs have been submitted yet.
func (c *Coordinator) MergeOutputs(project string) (MergeResult, error) {
	if project == "" {
		project = "Triad Project"
	}

	c.store.RLock()
	outs, err := store.Load[[]tasks.Output](c.store, store.DocOutputs)
	var list []tasks.Task
	if err == nil {
		err = c.store.Read(store.DocTasks, &list)
	}
	c.store.RUnlock()
	if err != nil {
		return MergeResult{}, fmt.Errorf("read outputs: %w", err)
	}
	if len(outs) == 0 {
		return MergeResult{}, fmt.Errorf("no outputs to merge: %w", coord.ErrNotFound)
	}

	byID := make(map[string]tasks.Task, len(list))
	completed := 0
	for _, t := range list {
		byID[t.ID] = t
		if t.Status == tasks.StatusCompleted {
			completed++
		}
	}

	res := MergeResult{
		Project:        project,
		GeneratedAt:    time.Now().UTC(),
		TotalTasks:     len(list),
		CompletedTasks: completed,
		Outputs:        make([]MergedOutput, 0, len(outs)),
	}

	seen := map[string]bool{}
	for _, o := range outs {
		desc := "unknown task"
		if t, ok := byID[o.TaskID]; ok {
			desc = t.Description
		}
		res.Outputs = append(res.Outputs, MergedOutput{
			Task:      desc,
			WorkerID:  o.WorkerID,
			Cluster:   o.Cluster,
			Output:    o.Content,
			Timestamp: o.Timestamp,
		})
		if !seen[o.WorkerID] {
			seen[o.WorkerID] = true
			res.Workers = append(res.Workers, o.WorkerID)
		}
	}
	return res, nil
}
