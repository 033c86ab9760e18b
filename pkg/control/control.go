// Package control implements the external run/pause predicate the state
// machines poll between steps, and a watcher that drives it from a YAML
// control file.
package control

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/observability"
)

// File is the content of a control file.
//
//	paused: true
//	running: true
//	reason: "operator asked to wait"
//
// A missing running key means running.
type File struct {
	Paused  bool   `yaml:"paused"`
	Running *bool  `yaml:"running"`
	Reason  string `yaml:"reason"`
}

// IsRunning reports the effective running flag.
func (f *File) IsRunning() bool {
	return f.Running == nil || *f.Running
}

// LoadFile reads and parses a control file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeConfigLoad, "reading control file")
	}
	return ParseFile(data)
}

// ParseFile parses control YAML. Empty input is a running, unpaused file.
func ParseFile(data []byte) (*File, error) {
	f := &File{}
	if len(data) == 0 {
		return f, nil
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeConfigParse, "parsing control file")
	}
	return f, nil
}

// Control is a concurrency-safe fsm.Gate. Changed is closed and replaced on
// every state change so any number of waiters wake up.
type Control struct {
	mu      sync.Mutex
	running bool
	paused  bool
	reason  string
	changed chan struct{}
	log     *observability.Logger

	listeners []func(state, reason string)
}

// New returns a running, unpaused control.
func New(log *observability.Logger) *Control {
	if log == nil {
		log = observability.Discard()
	}
	return &Control{running: true, changed: make(chan struct{}), log: log}
}

// Running implements fsm.Gate.
func (c *Control) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Paused implements fsm.Gate.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Changed implements fsm.Gate.
func (c *Control) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Reason returns why the control was last paused or stopped.
func (c *Control) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Pause holds every machine sharing this control before its next step.
func (c *Control) Pause(reason string) {
	c.set(c.Running(), true, reason)
}

// Resume releases a pause.
func (c *Control) Resume() {
	c.set(c.Running(), false, "")
}

// Stop makes every machine sharing this control halt at its next step.
// A stopped control cannot be restarted.
func (c *Control) Stop(reason string) {
	c.set(false, false, reason)
}

// Apply sets the state from a control file.
func (c *Control) Apply(f *File) {
	if f == nil {
		return
	}
	c.set(f.IsRunning(), f.Paused, f.Reason)
}

// OnChange registers fn to be called with State and Reason after every change.
func (c *Control) OnChange(fn func(state, reason string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns "running", "paused" or "stopped".
func (c *Control) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Control) state() string {
	switch {
	case !c.running:
		return "stopped"
	case c.paused:
		return "paused"
	default:
		return "running"
	}
}

// String describes the current state.
func (c *Control) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.running:
		return fmt.Sprintf("stopped (%s)", c.reason)
	case c.paused:
		return fmt.Sprintf("paused (%s)", c.reason)
	default:
		return "running"
	}
}

func (c *Control) set(running, paused bool, reason string) {
	c.mu.Lock()
	if !c.running {
		running = false
	}
	if c.running == running && c.paused == paused && c.reason == reason {
		c.mu.Unlock()
		return
	}
	c.running = running
	c.paused = paused
	c.reason = reason
	close(c.changed)
	c.changed = make(chan struct{})
	state := c.state()
	listeners := append(([]func(string, string))(nil), c.listeners...)
	c.mu.Unlock()

	if paused && running {
		observability.MissionPaused.Set(1)
	} else {
		observability.MissionPaused.Set(0)
	}
	c.log.Info("control changed", "running", running, "paused", paused, "reason", reason)
	for _, fn := range listeners {
		fn(state, reason)
	}
}
