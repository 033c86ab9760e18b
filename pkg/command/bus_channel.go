package command

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/gpsr/pkg/bus"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/observability"
)

type pendingRequest struct {
	id    string
	sent  time.Time
	reply chan Response
}

// BusChannel is a Channel over a message bus. Requests are published on
// "gpsr.cmd.<kind>" with a private reply inbox. At most one request per kind
// is outstanding; a second Send for the same kind before its AwaitResponse
// resolves fails with CHANNEL_BUSY.
type BusChannel struct {
	bus   bus.MessageBus
	inbox string
	sub   bus.Subscription
	log   *observability.Logger

	mu      sync.Mutex
	pending map[Kind]*pendingRequest
}

// NewBusChannel subscribes a reply inbox on b and returns a ready channel.
func NewBusChannel(ctx context.Context, b bus.MessageBus, log *observability.Logger) (*BusChannel, error) {
	if log == nil {
		log = observability.Discard()
	}
	c := &BusChannel{
		bus:     b,
		inbox:   b.NewInbox(),
		log:     log,
		pending: make(map[Kind]*pendingRequest),
	}
	sub, err := b.Subscribe(ctx, c.inbox, c.handleReply)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeTransport, "subscribe reply inbox")
	}
	c.sub = sub
	return c, nil
}

// Send publishes a request for kind.
func (c *BusChannel) Send(ctx context.Context, kind Kind, payload string) error {
	p := &pendingRequest{
		id:    ulid.Make().String(),
		sent:  time.Now(),
		reply: make(chan Response, 1),
	}

	c.mu.Lock()
	if existing, busy := c.pending[kind]; busy {
		c.mu.Unlock()
		observability.CommandResults.WithLabelValues(string(kind), "busy").Inc()
		return gerrors.Newf(gerrors.ErrCodeChannelBusy, "%s: request %s still outstanding", kind, existing.id).
			WithContext("kind", kind)
	}
	c.pending[kind] = p
	c.mu.Unlock()

	data, err := json.Marshal(Request{ID: p.id, Kind: kind, Payload: payload, IssuedAt: p.sent})
	if err != nil {
		c.release(kind, p.id)
		return gerrors.Wrap(err, gerrors.ErrCodeInternal, "encode request")
	}

	if err := c.bus.PublishRequest(ctx, bus.CommandSubject(string(kind)), c.inbox, data); err != nil {
		c.release(kind, p.id)
		return gerrors.Wrap(err, gerrors.ErrCodeTransport, "publish "+string(kind)).WithRetryable(true)
	}

	observability.CommandsSent.WithLabelValues(string(kind)).Inc()
	c.log.Debug("command sent", "kind", kind, "id", p.id, "payload", payload)
	return nil
}

// AwaitResponse waits for the reply to the outstanding request of kind.
// The kind is free again once this returns, whatever the outcome. Replies
// that arrive after a timeout are discarded.
func (c *BusChannel) AwaitResponse(ctx context.Context, kind Kind, timeout time.Duration) (Response, error) {
	c.mu.Lock()
	p, ok := c.pending[kind]
	c.mu.Unlock()
	if !ok {
		return Response{}, gerrors.Newf(gerrors.ErrCodeNoPendingRequest, "%s: nothing to await", kind)
	}
	defer c.release(kind, p.id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.reply:
		observability.CommandLatency.WithLabelValues(string(kind)).Observe(time.Since(p.sent).Seconds())
		result := "ok"
		if !resp.OK {
			result = "failed"
		}
		observability.CommandResults.WithLabelValues(string(kind), result).Inc()
		return resp, nil
	case <-timer.C:
		observability.CommandResults.WithLabelValues(string(kind), "timeout").Inc()
		c.log.CommandTimedOut(string(kind), timeout)
		return Response{ID: p.id, Kind: kind}, gerrors.Newf(gerrors.ErrCodeTimeout, "%s: no response within %s", kind, timeout).
			WithRetryable(true)
	case <-ctx.Done():
		return Response{ID: p.id, Kind: kind}, gerrors.Wrap(ctx.Err(), gerrors.ErrCodeHalted, string(kind)+": await cancelled")
	}
}

// Outstanding reports whether a request of kind awaits resolution.
func (c *BusChannel) Outstanding(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[kind]
	return ok
}

// Close drops the reply subscription.
func (c *BusChannel) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

func (c *BusChannel) release(kind Kind, id string) {
	c.mu.Lock()
	if p, ok := c.pending[kind]; ok && p.id == id {
		delete(c.pending, kind)
	}
	c.mu.Unlock()
}

func (c *BusChannel) handleReply(msg *bus.Message) []byte {
	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		c.log.Warn("malformed command reply", "error", err.Error())
		return nil
	}

	c.mu.Lock()
	p, ok := c.pending[resp.Kind]
	c.mu.Unlock()
	if !ok || p.id != resp.ID {
		c.log.Debug("late command reply discarded", "kind", resp.Kind, "id", resp.ID)
		return nil
	}

	select {
	case p.reply <- resp:
	default:
	}
	return nil
}
