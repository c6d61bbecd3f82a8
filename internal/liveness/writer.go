package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer periodically beats on behalf of one worker so long-running
// processes stay visible between coordinator interactions.
type Writer struct {
	tracker  *Tracker
	workerID string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a heartbeat writer that beats every interval (30s when
// zero).
func NewWriter(tracker *Tracker, workerID string, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Writer{tracker: tracker, workerID: workerID, interval: interval}
}

// Start begins beating in a background goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return // already running
	}

	w.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.beat()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.beat()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops beating. The worker goes stale naturally once the threshold
// passes; no tombstone is written.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Writer) beat() {
	if err := w.tracker.Beat(w.workerID); err != nil {
		slog.Warn("heartbeat failed", "worker", w.workerID, "error", err)
	}
}
