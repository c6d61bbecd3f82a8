package tasks

import (
	"errors"
	"testing"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/store"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	return NewQueue(store.New(t.TempDir()), nil)
}

func TestEnqueueDefaults(t *testing.T) {
	q := newQueue(t)

	task, err := q.Enqueue("write the report", "", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if task.ID == "" {
		t.Fatal("no id assigned")
	}
	if task.Status != StatusAssigned {
		t.Fatalf("expected status assigned, got %s", task.Status)
	}
	if task.AssignedTo != AssignAny {
		t.Fatalf("expected assignedTo any, got %s", task.AssignedTo)
	}
	if task.Priority != PriorityNormal {
		t.Fatalf("expected priority normal, got %s", task.Priority)
	}
	if task.CreatedAt.IsZero() {
		t.Fatal("createdAt not set")
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := newQueue(t)

	if _, err := q.Enqueue("", "any", PriorityNormal); !coord.IsValidation(err) {
		t.Fatalf("expected validation error for empty description, got %v", err)
	}
	if _, err := q.Enqueue("task", "any", Priority("asap")); !coord.IsValidation(err) {
		t.Fatalf("expected validation error for bad priority, got %v", err)
	}
}

func TestListClaimablePriorityOrder(t *testing.T) {
	q := newQueue(t)

	for _, p := range []Priority{PriorityLow, PriorityUrgent, PriorityNormal} {
		if _, err := q.Enqueue("task "+string(p), AssignAny, p); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimable, err := q.ListClaimable("w1")
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(claimable) != 3 {
		t.Fatalf("expected 3 claimable tasks, got %d", len(claimable))
	}
	want := []Priority{PriorityUrgent, PriorityNormal, PriorityLow}
	for i, p := range want {
		if claimable[i].Priority != p {
			t.Fatalf("position %d: expected %s, got %s", i, p, claimable[i].Priority)
		}
	}
}

func TestListClaimableTiesKeepInsertionOrder(t *testing.T) {
	q := newQueue(t)

	first, _ := q.Enqueue("first", AssignAny, PriorityNormal)
	second, _ := q.Enqueue("second", AssignAny, PriorityNormal)

	claimable, err := q.ListClaimable("w1")
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if claimable[0].ID != first.ID || claimable[1].ID != second.ID {
		t.Fatal("equal-priority tasks reordered")
	}
}

func TestListClaimableFiltersAssignee(t *testing.T) {
	q := newQueue(t)

	q.Enqueue("for anyone", AssignAny, PriorityNormal)
	q.Enqueue("for w1", "w1", PriorityNormal)
	q.Enqueue("for w2", "w2", PriorityNormal)

	claimable, err := q.ListClaimable("w1")
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(claimable) != 2 {
		t.Fatalf("expected 2 claimable tasks for w1, got %d", len(claimable))
	}
}

func TestClaimTransitions(t *testing.T) {
	q := newQueue(t)

	task, _ := q.Enqueue("work", AssignAny, PriorityHigh)

	claimed, err := q.Claim(task.ID, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusInProgress {
		t.Fatalf("expected in-progress, got %s", claimed.Status)
	}
	if claimed.ClaimedBy != "w1" || claimed.ClaimedAt == nil {
		t.Fatalf("claim metadata missing: %+v", claimed)
	}
}

func TestClaimConflictLeavesTaskUnchanged(t *testing.T) {
	q := newQueue(t)

	task, _ := q.Enqueue("work", AssignAny, PriorityNormal)
	if _, err := q.Claim(task.ID, "w1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := q.Claim(task.ID, "w2")
	if !errors.Is(err, coord.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := q.Get(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClaimedBy != "w1" || got.Status != StatusInProgress {
		t.Fatalf("losing claim mutated the task: %+v", got)
	}
}

func TestClaimUnknownTask(t *testing.T) {
	q := newQueue(t)

	if _, err := q.Claim("nope", "w1"); !errors.Is(err, coord.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimNextPicksMostUrgent(t *testing.T) {
	q := newQueue(t)

	q.Enqueue("later", AssignAny, PriorityLow)
	urgent, _ := q.Enqueue("now", AssignAny, PriorityUrgent)

	claimed, err := q.ClaimNext("w1")
	if err != nil {
		t.Fatalf("claim next: %v", err)
	}
	if claimed.ID != urgent.ID {
		t.Fatalf("expected urgent task, got %s", claimed.Description)
	}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	q := newQueue(t)

	if _, err := q.ClaimNext("w1"); !errors.Is(err, coord.ErrNotFound) {
		t.Fatalf("expected not found on empty queue, got %v", err)
	}
}

func TestSubmitCompletesAndLogsOutput(t *testing.T) {
	q := newQueue(t)

	task, _ := q.EnqueueTask(Task{Description: "analyze", Cluster: "alpha"})
	if _, err := q.Claim(task.ID, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	done, err := q.Submit(task.ID, "w1", "the findings")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Status != StatusCompleted || done.Output != "the findings" {
		t.Fatalf("unexpected completed task: %+v", done)
	}
	if done.CompletedBy != "w1" || done.CompletedAt == nil {
		t.Fatalf("completion metadata missing: %+v", done)
	}

	outputs, err := q.Outputs()
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output record, got %d", len(outputs))
	}
	rec := outputs[0]
	if rec.TaskID != task.ID || rec.WorkerID != "w1" || rec.Cluster != "alpha" || rec.Content != "the findings" {
		t.Fatalf("unexpected output record: %+v", rec)
	}
}

func TestSubmitUnknownTask(t *testing.T) {
	q := newQueue(t)

	if _, err := q.Submit("missing", "w1", "out"); !errors.Is(err, coord.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReassignForce(t *testing.T) {
	q := newQueue(t)

	t1, _ := q.Enqueue("a", AssignAny, PriorityNormal)
	t2, _ := q.Enqueue("b", AssignAny, PriorityNormal)
	q.Claim(t1.ID, "w1")
	q.Claim(t2.ID, "w2")

	released, err := q.Reassign("w1", true)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released, got %d", released)
	}

	got, _ := q.Get(t1.ID)
	if got.Status != StatusAssigned || got.ClaimedBy != "" || got.ClaimedAt != nil {
		t.Fatalf("claim not cleared: %+v", got)
	}

	other, _ := q.Get(t2.ID)
	if other.ClaimedBy != "w2" {
		t.Fatalf("unrelated task touched: %+v", other)
	}
}

func TestReassignWithoutForceKeepsClaims(t *testing.T) {
	q := newQueue(t)

	task, _ := q.Enqueue("a", AssignAny, PriorityNormal)
	q.Claim(task.ID, "w1")

	released, err := q.Reassign("w1", false)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected no releases, got %d", released)
	}

	got, _ := q.Get(task.ID)
	if got.Status != StatusInProgress || got.ClaimedBy != "w1" {
		t.Fatalf("non-forced reassign mutated the task: %+v", got)
	}
}

func TestOutputsByCluster(t *testing.T) {
	q := newQueue(t)

	for i, cluster := range []string{"x", "x", "y", ""} {
		task, _ := q.EnqueueTask(Task{Description: "t", Cluster: cluster})
		q.Claim(task.ID, "w1")
		if _, err := q.Submit(task.ID, "w1", "out"); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	groups, err := q.OutputsByCluster()
	if err != nil {
		t.Fatalf("outputs by cluster: %v", err)
	}
	if len(groups["x"]) != 2 || len(groups["y"]) != 1 || len(groups["unclustered"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", groups)
	}
}
