// Package bus is the transport beneath the command channel. Subsystem
// controllers (arms, base, speech) and the speech recognizer talk to the
// orchestrator over subjects on a message bus. The production implementation
// uses NATS; MemoryBus serves tests and the simulator.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoResponders is returned when no subscriber is listening for a request.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Well-known subjects.
const (
	// CommandPrefix prefixes every subsystem command subject; the command
	// kind follows, e.g. "gpsr.cmd.spg.say".
	CommandPrefix = "gpsr.cmd."

	// CommandWildcard matches every subsystem command.
	CommandWildcard = "gpsr.cmd.>"

	// RecognizedSpeech carries utterances from the speech recognizer.
	RecognizedSpeech = "gpsr.speech.recognized"

	// Events carries telemetry events for external observers.
	Events = "gpsr.events"
)

// CommandSubject returns the subject for a command kind.
func CommandSubject(kind string) string {
	return CommandPrefix + kind
}

// MessageBus is the transport interface. Implementations must be safe for
// concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishRequest publishes a message that expects its reply on the
	// given reply subject. The caller owns the reply subscription.
	PublishRequest(ctx context.Context, subject, reply string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Supports wildcards: "gpsr.cmd.*" matches "gpsr.cmd.abc" and
	// "gpsr.cmd.>" matches any depth.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// NewInbox returns a unique subject suitable for replies.
	NewInbox() string

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
// For request/reply, return data to send as response; return nil for no response.
type MessageHandler func(msg *Message) []byte

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string // Set if sender expects a response
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored for in-memory bus.
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the connect timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "gpsr",
		Timeout: 5 * time.Second,
	}
}
