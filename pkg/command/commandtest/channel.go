// Package commandtest provides a scripted command.Channel for tests.
package commandtest

import (
	"context"
	"sync"
	"time"

	"github.com/odvcencio/gpsr/pkg/command"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
)

// Outcome is a scripted subsystem reply.
type Outcome struct {
	OK      bool
	Payload string
	Timeout bool
}

var (
	// OK is a successful reply.
	OK = Outcome{OK: true}
	// Fail is a reply with OK=false.
	Fail = Outcome{}
	// TimedOut never replies.
	TimedOut = Outcome{Timeout: true}
)

// Reply is a successful outcome carrying a payload.
func Reply(payload string) Outcome {
	return Outcome{OK: true, Payload: payload}
}

// Call records one Send.
type Call struct {
	Kind    command.Kind
	Payload string
}

// Channel answers each Send from a per-kind script. Once a kind's script is
// used up, its default outcome applies; kinds without a default succeed.
type Channel struct {
	mu       sync.Mutex
	scripts  map[command.Kind][]Outcome
	defaults map[command.Kind]Outcome
	pending  map[command.Kind]Outcome
	calls    []Call
}

// New returns a channel on which every command succeeds.
func New() *Channel {
	return &Channel{
		scripts:  make(map[command.Kind][]Outcome),
		defaults: make(map[command.Kind]Outcome),
		pending:  make(map[command.Kind]Outcome),
	}
}

// Script queues outcomes for successive sends of kind.
func (c *Channel) Script(kind command.Kind, outcomes ...Outcome) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[kind] = append(c.scripts[kind], outcomes...)
	return c
}

// Default sets the outcome used once the script of kind is exhausted.
func (c *Channel) Default(kind command.Kind, o Outcome) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults[kind] = o
	return c
}

func (c *Channel) Send(ctx context.Context, kind command.Kind, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.pending[kind]; busy {
		return gerrors.Newf(gerrors.ErrCodeChannelBusy, "%s outstanding", kind)
	}
	c.calls = append(c.calls, Call{Kind: kind, Payload: payload})

	o, ok := c.defaults[kind]
	if !ok {
		o = OK
	}
	if script := c.scripts[kind]; len(script) > 0 {
		o = script[0]
		c.scripts[kind] = script[1:]
	}
	c.pending[kind] = o
	return nil
}

func (c *Channel) AwaitResponse(ctx context.Context, kind command.Kind, timeout time.Duration) (command.Response, error) {
	c.mu.Lock()
	o, ok := c.pending[kind]
	delete(c.pending, kind)
	c.mu.Unlock()

	if !ok {
		return command.Response{}, gerrors.Newf(gerrors.ErrCodeNoPendingRequest, "%s: nothing to await", kind)
	}
	if o.Timeout {
		return command.Response{Kind: kind}, gerrors.Newf(gerrors.ErrCodeTimeout, "%s: scripted timeout", kind)
	}
	return command.Response{Kind: kind, OK: o.OK, Payload: o.Payload}, nil
}

// Calls returns every send in order.
func (c *Channel) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Payloads returns the payloads sent for kind, in order.
func (c *Channel) Payloads(kind command.Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if call.Kind == kind {
			out = append(out, call.Payload)
		}
	}
	return out
}

// Count returns how many times kind was sent.
func (c *Channel) Count(kind command.Kind) int {
	return len(c.Payloads(kind))
}

// Reset forgets recorded calls.
func (c *Channel) Reset() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}
