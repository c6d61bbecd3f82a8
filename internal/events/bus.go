// Package events provides an in-memory event bus for coordination
// observability. Events describe the local process's view of the shared
// store; they are not a cross-process transport.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("event bus is closed")

// EventType represents the type of event.
type EventType string

const (
	// Task queue lifecycle
	EventTaskAssigned  EventType = "task.assigned"
	EventTaskClaimed   EventType = "task.claimed"
	EventTaskCompleted EventType = "task.completed"
	EventTaskReleased  EventType = "task.released"

	// Messaging
	EventMessageSent EventType = "message.sent"
	EventWakeSignal  EventType = "message.wake"

	// Liveness
	EventWorkerBeat EventType = "worker.beat"

	// Accounts
	EventUsageTracked    EventType = "account.usage"
	EventAccountDepleted EventType = "account.depleted"

	// Convergence
	EventConvergenceReady     EventType = "convergence.ready"
	EventConvergenceCompleted EventType = "convergence.completed"

	// Orchestration
	EventPhaseStarted   EventType = "orchestration.phase.started"
	EventPhaseCompleted EventType = "orchestration.phase.completed"

	// Scheduler
	EventJobTrigger EventType = "job.trigger"
)

// Event represents a coordination event observed by this process.
type Event struct {
	ID        string         `json:"id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, workerID string, payload map[string]any) Event {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return Event{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq),
		WorkerID:  workerID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	eventTypes []EventType
	handler    Subscriber
}

// Bus is an in-memory event bus backed by a dispatch goroutine and a ring
// buffer of recent history.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	ring        *ringBuffer
	closed      bool
	done        chan struct{}
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(bufferSize int) *Bus {
	b := &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		ring:        newRingBuffer(bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case event := <-b.eventChan:
			b.ring.add(event)
			b.notify(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notify(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.matches(event) {
			go sub.handler(event)
		}
	}
}

func (s *subscription) matches(event Event) bool {
	if len(s.eventTypes) == 0 {
		return true
	}
	for _, t := range s.eventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Publish sends an event to the bus. Drops the event if the buffer is full.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return
	}

	select {
	case b.eventChan <- event:
	default:
	}
}

// PublishAsync sends an event with context cancellation support.
func (b *Bus) PublishAsync(ctx context.Context, event Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for specific event types (all types when
// none are given). Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = &subscription{eventTypes: eventTypes, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.ring.get(limit)
}

// Close shuts down the event bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// ringBuffer is a circular buffer of recent events.
type ringBuffer struct {
	mu     sync.RWMutex
	events []Event
	size   int
	pos    int
	count  int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{events: make([]Event, size), size: size}
}

func (r *ringBuffer) add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.pos] = event
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *ringBuffer) get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Event, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.events[(start+i)%r.size]
	}
	return result
}
