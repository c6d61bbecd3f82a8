package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIntervalJobFiresOnSchedule(t *testing.T) {
	s := New(nil, 0)

	runs := 0
	s.Add(Job{
		Name:  "poll",
		Every: 10 * time.Second,
		Run: func(context.Context) error {
			runs++
			return nil
		},
	})

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// First tick fires immediately, then not again until the interval passes.
	if ran := s.Tick(ctx, base); len(ran) != 1 {
		t.Fatalf("first tick: ran %v", ran)
	}
	if ran := s.Tick(ctx, base.Add(5*time.Second)); len(ran) != 0 {
		t.Fatalf("early tick fired: %v", ran)
	}
	if ran := s.Tick(ctx, base.Add(10*time.Second)); len(ran) != 1 {
		t.Fatalf("due tick did not fire: %v", ran)
	}
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
}

func TestManySimulatedTicks(t *testing.T) {
	s := New(nil, 0)

	runs := 0
	s.Add(Job{
		Name:  "wake",
		Every: time.Minute,
		Run: func(context.Context) error {
			runs++
			return nil
		},
	})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 600; i++ {
		s.Tick(context.Background(), now)
		now = now.Add(time.Second)
	}
	if runs != 10 {
		t.Fatalf("expected 10 runs over 10 minutes, got %d", runs)
	}
}

func TestCronJob(t *testing.T) {
	expr, err := ParseCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("parse cron: %v", err)
	}

	s := New(nil, 0)
	runs := 0
	s.Add(Job{
		Name: "report",
		Cron: expr,
		Run: func(context.Context) error {
			runs++
			return nil
		},
	})

	ctx := context.Background()
	at00 := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)
	at03 := time.Date(2025, 1, 1, 10, 3, 0, 0, time.UTC)
	at05 := time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)

	s.Tick(ctx, at00)
	s.Tick(ctx, at00.Add(time.Second)) // same minute, must not re-fire
	s.Tick(ctx, at03)
	s.Tick(ctx, at05)

	if runs != 2 {
		t.Fatalf("expected 2 runs (:00 and :05), got %d", runs)
	}
}

func TestFailingJobKeepsTicking(t *testing.T) {
	s := New(nil, 0)

	runs := 0
	s.Add(Job{
		Name:  "flaky",
		Every: time.Second,
		Run: func(context.Context) error {
			runs++
			return errors.New("boom")
		},
	})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Tick(context.Background(), now)
		now = now.Add(time.Second)
	}
	if runs != 3 {
		t.Fatalf("failures stopped the job: %d runs", runs)
	}
}

func TestJobsRunInRegistrationOrder(t *testing.T) {
	s := New(nil, 0)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Add(Job{
			Name:  name,
			Every: time.Second,
			Run: func(context.Context) error {
				order = append(order, name)
				return nil
			},
		})
	}

	s.Tick(context.Background(), time.Now())
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestParseCron(t *testing.T) {
	if _, err := ParseCron("not a cron"); err == nil {
		t.Fatal("expected error for invalid expression")
	}

	expr, err := ParseCron("0 12 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	next := expr.Next(base)
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
	if !expr.Matches(time.Date(2025, 6, 15, 12, 0, 45, 0, time.UTC)) {
		t.Fatal("expected match at noon")
	}
	if expr.Matches(time.Date(2025, 6, 15, 12, 1, 0, 0, time.UTC)) {
		t.Fatal("expected no match at 12:01")
	}
}
