// Package utterance holds recognized speech waiting to be consumed by the
// mission. The recognizer produces concurrently; orchestrator states poll
// with a timed wait.
package utterance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/gpsr/pkg/bus"
)

// Queue is a FIFO of recognized utterances safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an utterance. Blank input is ignored.
func (q *Queue) Push(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the oldest utterance, if any.
func (q *Queue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	text := q.items[0]
	q.items = q.items[1:]
	return text, true
}

// TakeAndClear removes the oldest utterance and discards the rest in one
// step. Anything that arrived after the taken utterance is dropped: at most
// one utterance is consumed per cycle.
func (q *Queue) TakeAndClear() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	text := q.items[0]
	q.items = nil
	return text, true
}

// Clear discards all queued utterances.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Len returns the number of queued utterances.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait blocks until the queue is non-empty, d elapses, or ctx is done. It
// reports whether an utterance is available.
func (q *Queue) Wait(ctx context.Context, d time.Duration) bool {
	if q.Len() > 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if q.Len() > 0 {
				return true
			}
		case <-timer.C:
			return q.Len() > 0
		case <-ctx.Done():
			return false
		}
	}
}

// Subscribe feeds the queue from a recognizer subject on the bus.
func (q *Queue) Subscribe(ctx context.Context, b bus.MessageBus, subject string) (bus.Subscription, error) {
	return b.Subscribe(ctx, subject, func(msg *bus.Message) []byte {
		q.Push(string(msg.Data))
		return nil
	})
}
