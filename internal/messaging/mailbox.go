// Package messaging implements point-to-point and broadcast notes between
// workers, plus the wake signal used to prod an idle worker into re-polling
// the task queue. Messages live in the shared store as an append-only log;
// the only mutation is flipping read flags on receive.
package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/liveness"
	"github.com/triad-sh/triad/internal/store"
)

// Broadcast is the recipient value that addresses every worker.
const Broadcast = "all"

// TypeWake marks a message as a wake signal.
const TypeWake = "wake"

// Message is one note in the shared log. Never deleted; read state flips
// exactly once per recipient fetch.
type Message struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Body      string     `json:"body"`
	Type      string     `json:"type,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Read      bool       `json:"read"`
	ReadBy    string     `json:"readBy,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// Mailbox sends and receives messages over the shared store.
type Mailbox struct {
	store   *store.Store
	tracker *liveness.Tracker
	bus     *events.Bus
}

// NewMailbox creates a Mailbox. tracker and bus may be nil.
func NewMailbox(s *store.Store, tracker *liveness.Tracker, bus *events.Bus) *Mailbox {
	return &Mailbox{store: s, tracker: tracker, bus: bus}
}

// Send appends a point-to-point message.
func (m *Mailbox) Send(to, body, from string) (Message, error) {
	return m.append(to, body, from, "")
}

// SendBroadcast appends a message addressed to every worker.
func (m *Mailbox) SendBroadcast(body, from string) (Message, error) {
	return m.append(Broadcast, body, from, "")
}

// Wake sends a wake signal to one worker. Delivery has no latency guarantee,
// only eventual visibility on the target's next Receive.
func (m *Mailbox) Wake(targetID, reason, from string) (Message, error) {
	if reason == "" {
		reason = "new tasks available"
	}
	msg, err := m.append(targetID, reason, from, TypeWake)
	if err != nil {
		return Message{}, err
	}
	if m.bus != nil {
		m.bus.Publish(events.NewEvent(events.EventWakeSignal, targetID, map[string]any{
			"reason": reason,
		}))
	}
	return msg, nil
}

func (m *Mailbox) append(to, body, from, msgType string) (Message, error) {
	if to == "" {
		return Message{}, coord.MissingField("to")
	}
	if body == "" {
		return Message{}, coord.MissingField("body")
	}

	msg := Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Body:      body,
		Type:      msgType,
		Timestamp: time.Now(),
	}
	if err := store.Append(m.store, store.DocMessages, msg); err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	if m.bus != nil {
		m.bus.Publish(events.NewEvent(events.EventMessageSent, from, map[string]any{
			"to": to, "id": msg.ID,
		}))
	}
	return msg, nil
}

// Receive returns every unread message addressed to workerID or to all,
// marking each read. A second call with nothing new returns the empty set.
// Receiving counts as worker activity, so it beats the liveness tracker.
func (m *Mailbox) Receive(workerID string) ([]Message, error) {
	if workerID == "" {
		return nil, coord.MissingField("workerId")
	}

	m.store.Lock()

	var all []Message
	if err := m.store.Read(store.DocMessages, &all); err != nil {
		m.store.Unlock()
		return nil, fmt.Errorf("receive: %w", err)
	}

	now := time.Now()
	var unread []Message
	for i := range all {
		msg := &all[i]
		if msg.Read || (msg.To != workerID && msg.To != Broadcast) {
			continue
		}
		msg.Read = true
		msg.ReadBy = workerID
		msg.ReadAt = &now
		unread = append(unread, *msg)
	}

	if len(unread) > 0 {
		if err := m.store.Write(store.DocMessages, all); err != nil {
			m.store.Unlock()
			return nil, fmt.Errorf("mark read: %w", err)
		}
	}
	m.store.Unlock()

	if m.tracker != nil {
		if err := m.tracker.Beat(workerID); err != nil {
			return unread, err
		}
	}
	return unread, nil
}

// Unread counts pending messages for a worker without marking them read.
func (m *Mailbox) Unread(workerID string) (int, error) {
	m.store.RLock()
	defer m.store.RUnlock()

	var all []Message
	if err := m.store.Read(store.DocMessages, &all); err != nil {
		return 0, fmt.Errorf("unread: %w", err)
	}

	n := 0
	for _, msg := range all {
		if !msg.Read && (msg.To == workerID || msg.To == Broadcast) {
			n++
		}
	}
	return n, nil
}
