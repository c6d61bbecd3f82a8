// Package converge implements the hierarchical fan-in: three worker outputs
// synthesize into one cluster document, clusters into a meta synthesis, and
// metas into one ultimate artifact. Convergence records live in the shared
// store and move ready to completed exactly once.
package converge

import (
	"time"
)

// Convergence levels.
const (
	LevelCluster  = 1
	LevelMeta     = 2
	LevelUltimate = 3
)

// Convergence types, one per level.
const (
	TypeCluster  = "cluster"
	TypeMeta     = "meta"
	TypeUltimate = "ultimate"
)

// Record statuses. Completed is terminal.
const (
	StatusReady     = "ready"
	StatusCompleted = "completed"
)

// Record is one convergence in the shared store.
//
// A level-1 record references the output records sharing one cluster key;
// a level-2 record references level-1 records under one grouping; a level-3
// record references all level-2 records for a project.
type Record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Level     int       `json:"level"`
	GroupKey  string    `json:"groupKey"`
	InputRefs []string  `json:"inputRefs"`
	Clusters  []string  `json:"clusters,omitempty"` // level 2: named cluster groups
	Metas     []string  `json:"metas,omitempty"`    // level 3: named meta groups
	Strategy  Strategy  `json:"strategy,omitempty"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`

	Output      string     `json:"output,omitempty"`
	Cost        float64    `json:"cost,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// StatusSummary aggregates the convergence log for the CLI and gateway.
type StatusSummary struct {
	Total     int `json:"total"`
	Clusters  int `json:"clusters"`
	Metas     int `json:"metas"`
	Ultimates int `json:"ultimates"`
	Ready     int `json:"ready"`
	Completed int `json:"completed"`
}
