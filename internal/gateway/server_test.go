package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/triad-sh/triad/internal/coordinator"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/messaging"
	"github.com/triad-sh/triad/internal/store"
	"github.com/triad-sh/triad/internal/tasks"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	c := coordinator.New(store.New(t.TempDir()), bus)
	srv := NewServer(c, bus, "localhost", 0)
	t.Cleanup(func() { srv.hub.Close() })
	return srv
}

func (s *Server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestStatusEmpty(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	st := decode[coordinator.Status](t, w)
	if st.Status != "operational" {
		t.Fatalf("expected operational, got %q", st.Status)
	}
	if st.Tasks.Total != 0 || st.Messages.Total != 0 {
		t.Fatalf("expected empty counts, got %+v", st)
	}
	if st.ActiveWorkers == nil {
		t.Fatal("expected non-nil active workers")
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/task", map[string]string{
		"description": "survey the API",
		"priority":    "high",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[tasks.Task](t, w)
	if created.ID == "" || created.Status != tasks.StatusAssigned {
		t.Fatalf("unexpected task: %+v", created)
	}

	w = srv.do(t, http.MethodGet, "/tasks/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = srv.do(t, http.MethodPost, "/task/"+created.ID+"/claim", map[string]string{"workerId": "w1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	claimed := decode[tasks.Task](t, w)
	if claimed.Status != tasks.StatusInProgress || claimed.ClaimedBy != "w1" {
		t.Fatalf("unexpected claim result: %+v", claimed)
	}

	// Second claim conflicts
	w = srv.do(t, http.MethodPost, "/task/"+created.ID+"/claim", map[string]string{"workerId": "w2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = srv.do(t, http.MethodPost, "/task/"+created.ID+"/complete", map[string]string{
		"workerId": "w1",
		"output":   "survey results",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	done := decode[tasks.Task](t, w)
	if done.Status != tasks.StatusCompleted || done.Output != "survey results" {
		t.Fatalf("unexpected completion: %+v", done)
	}

	w = srv.do(t, http.MethodGet, "/outputs?project=demo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	merged := decode[coordinator.MergeResult](t, w)
	if merged.Project != "demo" || len(merged.Outputs) != 1 {
		t.Fatalf("unexpected merge: %+v", merged)
	}
	if merged.Outputs[0].Task != "survey the API" {
		t.Fatalf("expected task description in merge, got %q", merged.Outputs[0].Task)
	}
}

func TestClaimNext(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodPost, "/task", map[string]string{"description": "low", "priority": "low"})
	srv.do(t, http.MethodPost, "/task", map[string]string{"description": "urgent", "priority": "urgent"})

	w := srv.do(t, http.MethodPost, "/task/next/claim", map[string]string{"workerId": "w1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	claimed := decode[tasks.Task](t, w)
	if claimed.Description != "urgent" {
		t.Fatalf("expected urgent task first, got %q", claimed.Description)
	}
}

func TestAssignTaskMissingDescription(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/task", map[string]string{"priority": "high"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if !strings.Contains(body["error"], "description") {
		t.Fatalf("expected error to name the missing field, got %q", body["error"])
	}
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/tasks/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/message", map[string]string{
		"to": "w1", "body": "hello", "from": "coordinator",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodGet, "/messages/w1", nil)
	msgs := decode[[]messaging.Message](t, w)
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	// Receive marks messages read, the second call is empty.
	w = srv.do(t, http.MethodGet, "/messages/w1", nil)
	msgs = decode[[]messaging.Message](t, w)
	if len(msgs) != 0 {
		t.Fatalf("expected no unread messages, got %d", len(msgs))
	}
}

func TestBroadcastMissingBody(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/broadcast", map[string]string{"from": "coordinator"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWakeWithoutBody(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/wake/w3", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	msg := decode[messaging.Message](t, w)
	if msg.Type != "wake" || msg.To != "w3" {
		t.Fatalf("unexpected wake message: %+v", msg)
	}

	w = srv.do(t, http.MethodGet, "/outputs", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no outputs exist, got %d", w.Code)
	}
}
