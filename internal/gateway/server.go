package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/coordinator"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/gateway/ws"
	"github.com/triad-sh/triad/internal/messaging"
)

// Server exposes the worker-facing coordination operations over HTTP, plus
// a WebSocket event stream for monitors.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	coord      *coordinator.Coordinator
	host       string
	port       int
}

// NewServer creates a new gateway server bound to the coordinator.
func NewServer(c *coordinator.Coordinator, bus *events.Bus, host string, port int) *Server {
	hub := ws.NewHub(bus)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:   hub,
		bus:   bus,
		coord: c,
		host:  host,
		port:  port,
	}

	r.Get("/status", s.handleStatus)
	r.Get("/messages/{id}", s.handleReceive)
	r.Post("/message", s.handleSend)
	r.Post("/broadcast", s.handleBroadcast)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Post("/task", s.handleAssignTask)
	r.Post("/task/{id}/claim", s.handleClaimTask)
	r.Post("/task/{id}/complete", s.handleCompleteTask)
	r.Get("/outputs", s.handleOutputs)
	r.Post("/wake/{id}", s.handleWake)

	// Monitoring
	r.Get("/events", s.handleEvents)
	r.Get("/ws", hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("triad gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the coordination error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case coord.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, coord.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coord.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, coord.ErrBudgetExhausted):
		status = http.StatusPaymentRequired
	case errors.Is(err, coord.ErrTransientStore):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody parses a JSON request body, rejecting malformed payloads with
// a validation error so the route answers 400.
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return &coord.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.coord.Mailbox.Receive(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To   string `json:"to"`
		Body string `json:"body"`
		From string `json:"from"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.coord.Mailbox.Send(req.To, req.Body, req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
		From string `json:"from"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := s.coord.Mailbox.SendBroadcast(req.Body, req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	res, err := s.coord.MergeOutputs(r.URL.Query().Get("project"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		From   string `json:"from"`
	}
	// The body is optional for wake; an empty reason gets the default.
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	msg, err := s.coord.Mailbox.Wake(chi.URLParam(r, "id"), req.Reason, req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	history := s.bus.History(limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}
