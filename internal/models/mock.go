package models

import (
	"context"
	"fmt"
	"sync"
)

// MockCompleter is the "mock" driver: deterministic completions for tests
// and offline runs. Cost is computed with the same pricing as real calls.
type MockCompleter struct {
	mu    sync.Mutex
	calls []Request

	// Reply generates the response text; defaults to an echo.
	Reply func(req Request) string
	// Err, when set, fails every call.
	Err error
	// Tokens per call, fixed. Zero values default to 100 in, 200 out.
	InputTokens  int
	OutputTokens int
}

// NewMock creates a MockCompleter with echo replies.
func NewMock() *MockCompleter {
	return &MockCompleter{}
}

func (m *MockCompleter) Complete(_ context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Err != nil {
		return Result{}, delegateError(m.Err)
	}

	text := fmt.Sprintf("synthesized: %.60s", req.Prompt)
	if m.Reply != nil {
		text = m.Reply(req)
	}

	in, out := m.InputTokens, m.OutputTokens
	if in == 0 {
		in = 100
	}
	if out == 0 {
		out = 200
	}
	return Result{
		Text:  text,
		Usage: Usage{InputTokens: in, OutputTokens: out},
		Cost:  Cost(in, out),
	}, nil
}

// Calls returns every request seen so far.
func (m *MockCompleter) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
