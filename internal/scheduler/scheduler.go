// Package scheduler runs the coordinator's periodic jobs (worker polling,
// auto-wake, auto-convergence, monitoring) as explicit, cancellable entries
// instead of free-running timers. Tick is the unit of progress, so tests
// drive many simulated ticks without waiting on wall-clock time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/triad-sh/triad/internal/events"
)

// Job is one recurring unit of work. Exactly one of Every or Cron must be
// set. A failing run is logged and retried on the next activation.
type Job struct {
	Name  string
	Every time.Duration
	Cron  *CronExpr
	Run   func(ctx context.Context) error
}

type jobState struct {
	job     Job
	nextRun time.Time
}

func (s *jobState) due(now time.Time) bool {
	if s.job.Cron != nil {
		return s.job.Cron.Matches(now) && now.After(s.nextRun)
	}
	return !now.Before(s.nextRun)
}

func (s *jobState) advance(now time.Time) {
	if s.job.Cron != nil {
		// Guard against re-firing within the matched minute.
		s.nextRun = now.Truncate(time.Minute).Add(time.Minute)
		return
	}
	s.nextRun = now.Add(s.job.Every)
}

// Scheduler ticks a set of jobs.
type Scheduler struct {
	bus *events.Bus // nil-safe

	mu   sync.Mutex
	jobs []*jobState

	resolution time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a Scheduler. resolution is how often the run loop wakes to
// check for due jobs; 1s when zero.
func New(bus *events.Bus, resolution time.Duration) *Scheduler {
	if resolution <= 0 {
		resolution = time.Second
	}
	return &Scheduler{bus: bus, resolution: resolution}
}

// Add registers a job. Interval jobs fire immediately on the first tick.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &jobState{job: job})
}

// Tick runs every job due at now, sequentially in registration order.
// Returns the names of the jobs that ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	var due []*jobState
	for _, st := range s.jobs {
		if st.due(now) {
			st.advance(now)
			due = append(due, st)
		}
	}
	s.mu.Unlock()

	var ran []string
	for _, st := range due {
		if err := ctx.Err(); err != nil {
			return ran
		}
		if s.bus != nil {
			s.bus.Publish(events.NewEvent(events.EventJobTrigger, "", map[string]any{
				"job": st.job.Name,
			}))
		}
		if err := st.job.Run(ctx); err != nil {
			slog.Error("scheduled job failed", "job", st.job.Name, "error", err)
		}
		ran = append(ran, st.job.Name)
	}
	return ran
}

// Start begins ticking in a background goroutine until Stop or the context
// ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.resolution)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				s.Tick(ctx, now)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the run loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
