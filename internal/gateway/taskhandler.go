package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/triad-sh/triad/internal/tasks"
)

// Task routes. Assignment, claiming, and completion all go through the
// shared queue, so HTTP workers and in-process workers obey the same claim
// protocol.

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.coord.Queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		AssignedTo  string `json:"assignedTo"`
		Priority    string `json:"priority"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.coord.Queue.Enqueue(req.Description, req.AssignedTo, tasks.Priority(req.Priority))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleClaimTask claims a specific task when the path id names one, or the
// highest-priority claimable task when the id is "next".
func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID string `json:"workerId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		t   tasks.Task
		err error
	)
	if id == "next" {
		t, err = s.coord.Queue.ClaimNext(req.WorkerID)
	} else {
		t, err = s.coord.Queue.Claim(id, req.WorkerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerID string `json:"workerId"`
		Output   string `json:"output"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.coord.Queue.Submit(chi.URLParam(r, "id"), req.WorkerID, req.Output)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
