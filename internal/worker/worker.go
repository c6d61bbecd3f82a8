// Package worker implements the polling worker process: receive messages,
// claim the most urgent task, run it through the completion delegate, submit
// the output, and bill the account pool. One worker is single-threaded; all
// concurrency lives between worker processes sharing the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/triad-sh/triad/internal/accounts"
	"github.com/triad-sh/triad/internal/converge"
	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/liveness"
	"github.com/triad-sh/triad/internal/messaging"
	"github.com/triad-sh/triad/internal/models"
	"github.com/triad-sh/triad/internal/scheduler"
	"github.com/triad-sh/triad/internal/tasks"
)

// DefaultPollInterval between queue polls.
const DefaultPollInterval = 10 * time.Second

// Config holds a worker's identity and behavior.
type Config struct {
	ID             string
	Role           coord.Role
	PollInterval   time.Duration
	MaxTasks       int  // stop after this many tasks; 0 is unbounded
	ReassignOnExit bool // force-release claims on shutdown
}

// Worker polls the queue and executes claimed tasks.
type Worker struct {
	cfg     Config
	queue   *tasks.Queue
	mailbox *messaging.Mailbox
	tracker *liveness.Tracker
	pool    *accounts.Pool
	factory converge.CompleterFactory

	completed atomic.Int64
}

// New creates a Worker. The role defaults to plain worker.
func New(cfg Config, queue *tasks.Queue, mailbox *messaging.Mailbox, tracker *liveness.Tracker, pool *accounts.Pool, factory converge.CompleterFactory) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if !cfg.Role.Valid() {
		cfg.Role = coord.RoleWorker
	}
	return &Worker{
		cfg:     cfg,
		queue:   queue,
		mailbox: mailbox,
		tracker: tracker,
		pool:    pool,
		factory: factory,
	}
}

// ID returns the worker identity.
func (w *Worker) ID() string { return w.cfg.ID }

// Completed returns how many tasks this worker has finished.
func (w *Worker) Completed() int { return int(w.completed.Load()) }

// Poll is one scheduling unit: drain the mailbox, then claim and execute at
// most one task. Returns true when a task was completed, so callers can
// poll eagerly while work remains.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	msgs, err := w.mailbox.Receive(w.cfg.ID)
	if err != nil {
		return false, err
	}
	for _, msg := range msgs {
		if msg.Type == messaging.TypeWake {
			slog.Info("wake signal", "worker", w.cfg.ID, "from", msg.From, "reason", msg.Body)
		}
	}

	if !coord.CapabilitiesOf(w.cfg.Role).ClaimTasks {
		return false, nil
	}
	if w.cfg.MaxTasks > 0 && w.Completed() >= w.cfg.MaxTasks {
		return false, nil
	}

	claimed, err := w.queue.ClaimNext(w.cfg.ID)
	if err != nil {
		if errors.Is(err, coord.ErrNotFound) {
			return false, nil // queue empty, wait for the next poll
		}
		return false, err
	}

	if err := w.execute(ctx, claimed); err != nil {
		slog.Error("task failed", "worker", w.cfg.ID, "task", claimed.ID, "error", err)
		return false, err
	}
	w.completed.Add(1)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, task tasks.Task) error {
	account, err := w.pool.Next()
	if err != nil {
		return err
	}
	completer, err := w.factory.ForCredential(account.Credential)
	if err != nil {
		return fmt.Errorf("%w: %v", coord.ErrDelegate, err)
	}

	res, err := completer.Complete(ctx, models.Request{
		System: fmt.Sprintf("You are worker %s (%s) in cluster %s. Produce a thorough, well-structured result.", w.cfg.ID, w.cfg.Role, task.Cluster),
		Prompt: task.Description,
	})
	if err != nil {
		return err
	}

	if _, err := w.queue.Submit(task.ID, w.cfg.ID, res.Text); err != nil {
		return err
	}
	if _, err := w.pool.Track(account.Name, res.Cost); err != nil {
		return err
	}

	slog.Info("task completed", "worker", w.cfg.ID, "task", task.ID, "cost", res.Cost)
	return nil
}

// Run polls until the context ends, the budget is exhausted, or MaxTasks is
// reached, then shuts down. Polling is a scheduled job so the cadence is
// deterministic under test.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.tracker.Beat(w.cfg.ID); err != nil {
		return err
	}
	slog.Info("worker started", "worker", w.cfg.ID, "role", w.cfg.Role, "interval", w.cfg.PollInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	sched := scheduler.New(nil, time.Second)
	sched.Add(scheduler.Job{
		Name:  "poll",
		Every: w.cfg.PollInterval,
		Run: func(ctx context.Context) error {
			for {
				worked, err := w.Poll(ctx)
				if err != nil {
					if errors.Is(err, coord.ErrBudgetExhausted) {
						runErr = err
						cancel()
						return err
					}
					return err
				}
				if !worked {
					return nil
				}
				if w.cfg.MaxTasks > 0 && w.Completed() >= w.cfg.MaxTasks {
					cancel()
					return nil
				}
			}
		},
	})

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()

	if err := w.Shutdown(); err != nil {
		slog.Error("shutdown", "worker", w.cfg.ID, "error", err)
	}
	return runErr
}

// Shutdown releases claims according to configuration. With ReassignOnExit,
// in-progress tasks go back to assigned for other workers; otherwise they
// stay claimed for this worker to resume after restart.
func (w *Worker) Shutdown() error {
	released, err := w.queue.Reassign(w.cfg.ID, w.cfg.ReassignOnExit)
	if err != nil {
		return err
	}
	if released > 0 {
		slog.Info("released claims on shutdown", "worker", w.cfg.ID, "released", released)
	}
	return nil
}
