package tasks

import (
	"fmt"
	"time"

	"github.com/triad-sh/triad/internal/store"
)

// Output is one completed task result in the append-only output log.
// Immutable once appended; the convergence engine reads these by cluster.
type Output struct {
	TaskID    string    `json:"taskId"`
	WorkerID  string    `json:"workerId"`
	Cluster   string    `json:"cluster,omitempty"`
	Content   string    `json:"content"`
	Cost      float64   `json:"cost,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (q *Queue) appendOutput(rec Output) error {
	var log []Output
	if err := q.store.Read(store.DocOutputs, &log); err != nil {
		return fmt.Errorf("read outputs: %w", err)
	}
	log = append(log, rec)
	if err := q.store.Write(store.DocOutputs, log); err != nil {
		return fmt.Errorf("append output: %w", err)
	}
	return nil
}

// Outputs returns the full output log in append order.
func (q *Queue) Outputs() ([]Output, error) {
	q.store.RLock()
	defer q.store.RUnlock()

	var log []Output
	if err := q.store.Read(store.DocOutputs, &log); err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	return log, nil
}

// OutputsByCluster groups the output log by cluster key. Outputs without a
// cluster land under "unclustered".
func (q *Queue) OutputsByCluster() (map[string][]Output, error) {
	log, err := q.Outputs()
	if err != nil {
		return nil, err
	}

	groups := map[string][]Output{}
	for _, o := range log {
		key := o.Cluster
		if key == "" {
			key = "unclustered"
		}
		groups[key] = append(groups[key], o)
	}
	return groups, nil
}
