// Package liveness tracks which workers are alive via heartbeat records in
// the shared store. There is no stored "offline" state: a worker is active
// exactly when its last heartbeat is younger than the staleness threshold.
package liveness

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/store"
)

// DefaultThreshold is how old a heartbeat can be before the worker is
// considered inactive.
const DefaultThreshold = 5 * time.Minute

// Record is one worker's last-seen heartbeat.
type Record struct {
	LastSeen time.Time `json:"lastSeen"`
	Host     string    `json:"host"`
	Platform string    `json:"platform"`
}

// Worker is an active worker derived from the heartbeat map.
type Worker struct {
	ID string `json:"id"`
	Record
}

// Tracker reads and writes the shared heartbeat map.
type Tracker struct {
	store *store.Store
	bus   *events.Bus // nil-safe: beats are not published without a bus
}

// NewTracker creates a Tracker over the shared store.
func NewTracker(s *store.Store, bus *events.Bus) *Tracker {
	return &Tracker{store: s, bus: bus}
}

// Beat upserts the heartbeat record for a worker with the current time and
// host metadata. Called on every interaction a worker has with the
// coordinator, not just on a dedicated timer.
func (t *Tracker) Beat(workerID string) error {
	if workerID == "" {
		return nil
	}

	t.store.Lock()
	defer t.store.Unlock()

	beats := map[string]Record{}
	if err := t.store.Read(store.DocHeartbeats, &beats); err != nil {
		return fmt.Errorf("beat: %w", err)
	}

	host, _ := os.Hostname()
	beats[workerID] = Record{
		LastSeen: time.Now(),
		Host:     host,
		Platform: runtime.GOOS,
	}

	if err := t.store.Write(store.DocHeartbeats, beats); err != nil {
		return fmt.Errorf("beat: %w", err)
	}

	if t.bus != nil {
		t.bus.Publish(events.NewEvent(events.EventWorkerBeat, workerID, nil))
	}
	return nil
}

// ActiveWorkers returns all workers whose heartbeat is younger than the
// threshold, sorted by id. Staleness is a query-time computation.
func (t *Tracker) ActiveWorkers(threshold time.Duration) ([]Worker, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	t.store.RLock()
	defer t.store.RUnlock()

	beats := map[string]Record{}
	if err := t.store.Read(store.DocHeartbeats, &beats); err != nil {
		return nil, fmt.Errorf("active workers: %w", err)
	}

	now := time.Now()
	var active []Worker
	for id, rec := range beats {
		if now.Sub(rec.LastSeen) < threshold {
			active = append(active, Worker{ID: id, Record: rec})
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}
