package liveness

import (
	"testing"
	"time"

	"github.com/triad-sh/triad/internal/store"
)

func TestBeatThenActive(t *testing.T) {
	s := store.New(t.TempDir())
	tracker := NewTracker(s, nil)

	if err := tracker.Beat("w1"); err != nil {
		t.Fatalf("beat: %v", err)
	}
	if err := tracker.Beat("w2"); err != nil {
		t.Fatalf("beat: %v", err)
	}

	active, err := tracker.ActiveWorkers(0)
	if err != nil {
		t.Fatalf("active workers: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active workers, got %d", len(active))
	}
	if active[0].ID != "w1" || active[1].ID != "w2" {
		t.Fatalf("expected sorted ids [w1 w2], got [%s %s]", active[0].ID, active[1].ID)
	}
	if active[0].LastSeen.IsZero() {
		t.Fatal("lastSeen not set")
	}
}

func TestStaleWorkerExcluded(t *testing.T) {
	s := store.New(t.TempDir())
	tracker := NewTracker(s, nil)

	beats := map[string]Record{
		"fresh": {LastSeen: time.Now()},
		"stale": {LastSeen: time.Now().Add(-10 * time.Minute)},
	}
	if err := s.Write(store.DocHeartbeats, beats); err != nil {
		t.Fatalf("write heartbeats: %v", err)
	}

	active, err := tracker.ActiveWorkers(DefaultThreshold)
	if err != nil {
		t.Fatalf("active workers: %v", err)
	}
	if len(active) != 1 || active[0].ID != "fresh" {
		t.Fatalf("expected only fresh worker, got %+v", active)
	}
}

func TestBeatOverwritesRecord(t *testing.T) {
	s := store.New(t.TempDir())
	tracker := NewTracker(s, nil)

	if err := tracker.Beat("w1"); err != nil {
		t.Fatalf("beat: %v", err)
	}
	first, err := tracker.ActiveWorkers(0)
	if err != nil {
		t.Fatalf("active workers: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := tracker.Beat("w1"); err != nil {
		t.Fatalf("second beat: %v", err)
	}
	second, err := tracker.ActiveWorkers(0)
	if err != nil {
		t.Fatalf("active workers: %v", err)
	}

	if !second[0].LastSeen.After(first[0].LastSeen) {
		t.Fatal("second beat did not advance lastSeen")
	}
}

func TestEmptyWorkerIDIgnored(t *testing.T) {
	s := store.New(t.TempDir())
	tracker := NewTracker(s, nil)

	if err := tracker.Beat(""); err != nil {
		t.Fatalf("beat: %v", err)
	}
	active, err := tracker.ActiveWorkers(0)
	if err != nil {
		t.Fatalf("active workers: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no records, got %+v", active)
	}
}
