// Package sim stands in for the robot's subsystem controllers. A Responder
// answers every command published on the bus so a mission can run end to end
// without hardware.
package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/odvcencio/gpsr/pkg/bus"
	"github.com/odvcencio/gpsr/pkg/command"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/observability"
)

// Outcome is how the simulated subsystem answers one command.
type Outcome struct {
	OK      bool
	Payload string
	Delay   time.Duration
	// Drop leaves the command unanswered so the caller times out.
	Drop bool
}

var (
	// Succeed answers OK immediately.
	Succeed = Outcome{OK: true}
	// Fail answers with OK=false.
	Fail = Outcome{}
	// Silent never answers.
	Silent = Outcome{Drop: true}
)

// Responder answers commands from per-kind scripts. Once a script is used
// up the kind's default applies; kinds without a default succeed.
type Responder struct {
	bus     bus.MessageBus
	log     *observability.Logger
	grammar *Grammar
	delay   time.Duration

	mu       sync.Mutex
	scripts  map[command.Kind][]Outcome
	defaults map[command.Kind]Outcome
	counts   map[command.Kind]int
	sub      bus.Subscription

	wg sync.WaitGroup
}

// Option configures a Responder.
type Option func(*Responder)

// WithLogger sets the logger.
func WithLogger(log *observability.Logger) Option {
	return func(r *Responder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithGrammar answers lang.process_string from g.
func WithGrammar(g *Grammar) Option {
	return func(r *Responder) { r.grammar = g }
}

// WithLatency delays every reply that has no delay of its own.
func WithLatency(d time.Duration) Option {
	return func(r *Responder) { r.delay = d }
}

// NewResponder creates a responder on b. Call Start to begin answering.
func NewResponder(b bus.MessageBus, opts ...Option) *Responder {
	r := &Responder{
		bus:      b,
		log:      observability.Discard(),
		scripts:  make(map[command.Kind][]Outcome),
		defaults: make(map[command.Kind]Outcome),
		counts:   make(map[command.Kind]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Script queues outcomes for successive commands of kind.
func (r *Responder) Script(kind command.Kind, outcomes ...Outcome) *Responder {
	r.mu.Lock()
	r.scripts[kind] = append(r.scripts[kind], outcomes...)
	r.mu.Unlock()
	return r
}

// Default sets the outcome used once kind's script is exhausted.
func (r *Responder) Default(kind command.Kind, o Outcome) *Responder {
	r.mu.Lock()
	r.defaults[kind] = o
	r.mu.Unlock()
	return r
}

// Count returns how many commands of kind were received.
func (r *Responder) Count(kind command.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Start subscribes to every command subject.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}
	sub, err := r.bus.Subscribe(ctx, bus.CommandWildcard, func(msg *bus.Message) []byte {
		r.handle(ctx, msg)
		return nil
	})
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeTransport, "subscribe commands")
	}
	r.sub = sub
	r.log.Info("simulated subsystems listening", "subject", bus.CommandWildcard)
	return nil
}

// Stop unsubscribes and waits for delayed replies to finish.
func (r *Responder) Stop() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	r.wg.Wait()
	return err
}

func (r *Responder) next(kind command.Kind) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[kind]++
	if script := r.scripts[kind]; len(script) > 0 {
		r.scripts[kind] = script[1:]
		return script[0]
	}
	if o, ok := r.defaults[kind]; ok {
		return o
	}
	return Succeed
}

// handle replies off the subscription goroutine so a slow kind never holds
// up the others.
func (r *Responder) handle(ctx context.Context, msg *bus.Message) {
	var req command.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.log.Warn("malformed command", "subject", msg.Subject, "error", err.Error())
		return
	}
	if msg.ReplyTo == "" {
		r.log.Warn("command without reply subject", "kind", req.Kind, "id", req.ID)
		return
	}

	if req.Kind == command.KindSay {
		r.log.Info("robot says", "text", req.Payload)
	}
	out := r.next(req.Kind)
	if out.Drop {
		r.log.Debug("command dropped", "kind", req.Kind, "id", req.ID)
		return
	}
	if out.OK && out.Payload == "" && req.Kind == command.KindProcessString && r.grammar != nil {
		seq, ok := r.grammar.Interpret(req.Payload)
		out.OK = ok
		out.Payload = seq
	}
	delay := out.Delay
	if delay == 0 {
		delay = r.delay
	}

	resp, err := json.Marshal(command.Response{ID: req.ID, Kind: req.Kind, OK: out.OK, Payload: out.Payload})
	if err != nil {
		r.log.Error("encode reply", "error", err.Error())
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if err := r.bus.Publish(ctx, msg.ReplyTo, resp); err != nil {
			r.log.Warn("reply failed", "kind", req.Kind, "error", err.Error())
			return
		}
		r.log.Debug("command answered", "kind", req.Kind, "ok", out.OK, "payload", req.Payload)
	}()
}
