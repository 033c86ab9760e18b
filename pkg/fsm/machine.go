// Package fsm provides the cooperative state-machine runtime that every
// primitive behavior and the mission orchestrator are built on.
//
// A Machine is a table of named states. Each state has a handler that
// returns the next state and, optionally, a terminal status. Every handler
// declares the states it may transition to when it is registered, so an
// unknown target is rejected by Build rather than discovered at run time.
package fsm

import (
	"context"
	"fmt"
	"slices"
	"time"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
)

// State identifies a state within a Machine.
type State string

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Transition is what a handler returns: the next state and the status the
// machine should report if it stops after this step. A zero Status leaves
// the previously reported status untouched.
type Transition struct {
	Next   State
	Status Status
}

// Go is shorthand for a transition that does not change the status.
func Go(next State) Transition {
	return Transition{Next: next}
}

// Finish is shorthand for a transition into a final state with a status.
func Finish(next State, status Status) Transition {
	return Transition{Next: next, Status: status}
}

// Handler runs one step of a state. Handlers must not panic or return
// errors; failure is encoded as a target state.
type Handler func(ctx context.Context) Transition

// Observer is notified after every transition.
type Observer interface {
	OnTransition(machine string, from, to State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(machine string, from, to State)

// OnTransition calls f.
func (f ObserverFunc) OnTransition(machine string, from, to State) {
	f(machine, from, to)
}

type stateEntry struct {
	id      State
	handler Handler
	targets []State
}

// DefaultPauseQuantum bounds a single wait while the gate reports paused.
const DefaultPauseQuantum = 100 * time.Millisecond

// Machine executes registered states until a final state is reached.
type Machine struct {
	name      string
	states    map[State]*stateEntry
	order     []State
	start     State
	finals    map[State]bool
	gate      Gate
	observers []Observer
	quantum   time.Duration
	built     bool

	current State
	status  Status
	steps   int
}

// New creates an empty machine. The name is used for logs and telemetry.
func New(name string) *Machine {
	return &Machine{
		name:    name,
		states:  make(map[State]*stateEntry),
		finals:  make(map[State]bool),
		gate:    AlwaysRun{},
		quantum: DefaultPauseQuantum,
		status:  StatusReady,
	}
}

// Name returns the machine name.
func (m *Machine) Name() string {
	return m.name
}

// AddState registers a state, its handler, and the states it may move to.
// A state listing no targets may only transition to itself.
func (m *Machine) AddState(id State, handler Handler, targets ...State) *Machine {
	if _, dup := m.states[id]; dup {
		// recorded as nil so Build reports the duplicate
		m.states[id] = nil
		return m
	}
	m.states[id] = &stateEntry{id: id, handler: handler, targets: targets}
	m.order = append(m.order, id)
	return m
}

// SetStart designates the initial state.
func (m *Machine) SetStart(id State) *Machine {
	m.start = id
	return m
}

// SetFinal marks one or more states as terminal. Reaching a terminal state
// stops execution without running its handler again.
func (m *Machine) SetFinal(ids ...State) *Machine {
	for _, id := range ids {
		m.finals[id] = true
	}
	return m
}

// WithGate sets the run/pause predicate consulted before every step.
func (m *Machine) WithGate(g Gate) *Machine {
	if g != nil {
		m.gate = g
	}
	return m
}

// WithPauseQuantum sets how long a single wait lasts while paused.
func (m *Machine) WithPauseQuantum(d time.Duration) *Machine {
	if d > 0 {
		m.quantum = d
	}
	return m
}

// Observe adds a transition observer.
func (m *Machine) Observe(o Observer) *Machine {
	if o != nil {
		m.observers = append(m.observers, o)
	}
	return m
}

// Build validates the state table. It must succeed before Execute.
func (m *Machine) Build() error {
	if m.start == "" {
		return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: no start state", m.name)
	}
	if len(m.finals) == 0 {
		return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: no final state", m.name)
	}
	for id, entry := range m.states {
		if entry == nil {
			return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: state %q registered twice", m.name, id)
		}
		if entry.handler == nil && !m.finals[id] {
			return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: state %q has no handler", m.name, id)
		}
	}
	if _, ok := m.states[m.start]; !ok {
		return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: start state %q not registered", m.name, m.start)
	}
	for id := range m.finals {
		if _, ok := m.states[id]; !ok {
			return gerrors.Newf(gerrors.ErrCodeUnregisteredState, "%s: final state %q not registered", m.name, id)
		}
	}
	for _, id := range m.order {
		for _, target := range m.states[id].targets {
			if _, ok := m.states[target]; !ok {
				return gerrors.Newf(gerrors.ErrCodeUnregisteredState,
					"%s: state %q declares unregistered target %q", m.name, id, target)
			}
		}
	}
	m.current = m.start
	m.status = StatusReady
	m.steps = 0
	m.built = true
	return nil
}

// MustBuild is Build for state tables fixed at compile time.
func (m *Machine) MustBuild() *Machine {
	if err := m.Build(); err != nil {
		panic(err)
	}
	return m
}

// Current returns the state that will run next.
func (m *Machine) Current() State {
	return m.current
}

// Status returns the last status reported by a handler.
func (m *Machine) Status() Status {
	return m.status
}

// Steps returns how many handler invocations have run.
func (m *Machine) Steps() int {
	return m.steps
}

// Finished reports whether the machine sits in a final state.
func (m *Machine) Finished() bool {
	return m.finals[m.current]
}

// Execute runs steps until a final state is reached, the gate stops the
// machine, or ctx is cancelled. The returned error is non-nil only when the
// machine did not reach a final state.
func (m *Machine) Execute(ctx context.Context) (Status, error) {
	if !m.built {
		if err := m.Build(); err != nil {
			return StatusFailed, err
		}
	}
	if m.status == StatusReady {
		m.status = StatusRunning
	}

	for !m.Finished() {
		if err := ctx.Err(); err != nil {
			return m.status, gerrors.Wrap(err, gerrors.ErrCodeHalted, m.name+": context done")
		}
		if !m.gate.Running() {
			return m.status, gerrors.Newf(gerrors.ErrCodeHalted, "%s: stopped in state %s", m.name, m.current)
		}
		if m.gate.Paused() {
			m.waitWhilePaused(ctx)
			continue
		}
		if err := m.step(ctx); err != nil {
			m.status = StatusFailed
			return m.status, err
		}
	}
	return m.status, nil
}

// Step runs exactly one handler. It is exported for tests that need to
// inspect intermediate states.
func (m *Machine) Step(ctx context.Context) error {
	if !m.built {
		if err := m.Build(); err != nil {
			return err
		}
	}
	if m.Finished() {
		return nil
	}
	return m.step(ctx)
}

func (m *Machine) step(ctx context.Context) error {
	entry := m.states[m.current]
	tr := entry.handler(ctx)
	m.steps++

	if tr.Next != m.current && !slices.Contains(entry.targets, tr.Next) {
		return gerrors.Newf(gerrors.ErrCodeInvalidTransition, "%s: %s -> %s not declared", m.name, m.current, tr.Next).
			WithContext("declared", fmt.Sprint(entry.targets))
	}
	if tr.Status != StatusUnset {
		m.status = tr.Status
	}

	from := m.current
	m.current = tr.Next
	for _, o := range m.observers {
		o.OnTransition(m.name, from, tr.Next)
	}
	return nil
}

func (m *Machine) waitWhilePaused(ctx context.Context) {
	timer := time.NewTimer(m.quantum)
	defer timer.Stop()
	select {
	case <-m.gate.Changed():
	case <-timer.C:
	case <-ctx.Done():
	}
}
