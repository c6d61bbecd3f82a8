package worker

import (
	"context"
	"testing"

	"github.com/triad-sh/triad/internal/accounts"
	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/liveness"
	"github.com/triad-sh/triad/internal/messaging"
	"github.com/triad-sh/triad/internal/models"
	"github.com/triad-sh/triad/internal/store"
	"github.com/triad-sh/triad/internal/tasks"
)

type mockFactory struct {
	completer *models.MockCompleter
}

func (f *mockFactory) ForCredential(string) (models.Completer, error) {
	return f.completer, nil
}

type fixture struct {
	store   *store.Store
	queue   *tasks.Queue
	mailbox *messaging.Mailbox
	tracker *liveness.Tracker
	pool    *accounts.Pool
	mock    *models.MockCompleter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(t.TempDir())
	tracker := liveness.NewTracker(s, nil)
	f := &fixture{
		store:   s,
		queue:   tasks.NewQueue(s, nil),
		mailbox: messaging.NewMailbox(s, tracker, nil),
		tracker: tracker,
		pool:    accounts.NewPool(s, nil),
		mock:    models.NewMock(),
	}
	f.pool.Add("a", "sk-a", 100)
	return f
}

func (f *fixture) worker(cfg Config) *Worker {
	return New(cfg, f.queue, f.mailbox, f.tracker, f.pool, &mockFactory{completer: f.mock})
}

func TestPollClaimsAndCompletes(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "w1"})

	task, _ := f.queue.EnqueueTask(tasks.Task{Description: "analyze", Cluster: "x"})

	worked, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !worked {
		t.Fatal("poll did not claim the task")
	}

	got, _ := f.queue.Get(task.ID)
	if got.Status != tasks.StatusCompleted || got.CompletedBy != "w1" {
		t.Fatalf("task not completed: %+v", got)
	}
	if w.Completed() != 1 {
		t.Fatalf("completed count %d", w.Completed())
	}

	// The account was billed.
	acct, _ := f.pool.Get("a")
	if acct.TasksCompleted != 1 || acct.CreditsUsed <= 0 {
		t.Fatalf("account not billed: %+v", acct)
	}
}

func TestPollEmptyQueue(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "w1"})

	worked, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if worked {
		t.Fatal("poll reported work on an empty queue")
	}
}

func TestPollBeatsLiveness(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "w1"})

	w.Poll(context.Background())

	active, _ := f.tracker.ActiveWorkers(0)
	if len(active) != 1 || active[0].ID != "w1" {
		t.Fatalf("poll did not beat: %+v", active)
	}
}

func TestPollDrainsMailbox(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "w1"})

	f.mailbox.Wake("w1", "new tasks", "coordinator")

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	n, _ := f.mailbox.Unread("w1")
	if n != 0 {
		t.Fatalf("mailbox not drained: %d unread", n)
	}
}

func TestMaxTasksStopsClaiming(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "w1", MaxTasks: 1})

	f.queue.Enqueue("one", tasks.AssignAny, "")
	f.queue.Enqueue("two", tasks.AssignAny, "")

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	worked, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if worked {
		t.Fatal("worker exceeded max tasks")
	}

	claimable, _ := f.queue.ListClaimable("w2")
	if len(claimable) != 1 {
		t.Fatalf("expected 1 task left, got %d", len(claimable))
	}
}

func TestCoordinatorRoleDoesNotClaim(t *testing.T) {
	f := newFixture(t)
	w := f.worker(Config{ID: "boss", Role: coord.RoleCoordinator})

	f.queue.Enqueue("work", tasks.AssignAny, "")

	worked, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if worked {
		t.Fatal("coordinator claimed a task")
	}
}

func TestShutdownReassign(t *testing.T) {
	f := newFixture(t)

	task, _ := f.queue.Enqueue("work", tasks.AssignAny, "")
	f.queue.Claim(task.ID, "w1")

	// Without force: claim survives for the same worker.
	w := f.worker(Config{ID: "w1"})
	if err := w.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	got, _ := f.queue.Get(task.ID)
	if got.ClaimedBy != "w1" {
		t.Fatalf("claim cleared without force: %+v", got)
	}

	// With force: task returns to the queue.
	w = f.worker(Config{ID: "w1", ReassignOnExit: true})
	if err := w.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	got, _ = f.queue.Get(task.ID)
	if got.Status != tasks.StatusAssigned || got.ClaimedBy != "" {
		t.Fatalf("claim not released: %+v", got)
	}
}
