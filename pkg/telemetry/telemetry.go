// Package telemetry fans mission events out to in-process subscribers such
// as the /events websocket stream.
package telemetry

import (
	"sync"
	"time"

	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/storage"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventStateTransition EventType = "state.transition"
	EventRunRecorded     EventType = "run.recorded"
	EventControlChanged  EventType = "control.changed"
)

// Event describes mission telemetry that UIs can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"runId,omitempty"`
	Machine   string         `json:"machine,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{}), buffer: 64}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, h.buffer)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}

// OnTransition publishes every state change, so a Hub can be attached to a
// state machine as an fsm.Observer.
func (h *Hub) OnTransition(machine string, from, to fsm.State) {
	h.Publish(Event{
		Type:    EventStateTransition,
		Machine: machine,
		From:    from.String(),
		To:      to.String(),
	})
}

// HandleStorageEvent forwards recorded runs, so a Hub can observe a
// storage.Store.
func (h *Hub) HandleStorageEvent(e storage.Event) {
	if e.Type != storage.EventRunRecorded {
		return
	}
	event := Event{Type: EventRunRecorded, Timestamp: e.Timestamp, RunID: e.RunID}
	if summary, ok := e.Data.(storage.RunSummary); ok {
		event.Data = map[string]any{
			"status":      summary.Status,
			"utterance":   summary.Utterance,
			"invocations": summary.Invocations,
		}
	}
	h.Publish(event)
}

// ControlChanged publishes a run/pause change.
func (h *Hub) ControlChanged(state, reason string) {
	h.Publish(Event{
		Type: EventControlChanged,
		Data: map[string]any{"state": state, "reason": reason},
	})
}
