package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/gpsr/pkg/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// SubscribeMessage is a filter request from a client. An empty type list
// means every event.
type SubscribeMessage struct {
	Action     string   `json:"action"` // "subscribe" or "unsubscribe"
	EventTypes []string `json:"event_types,omitempty"`
}

// EventStream serves hub events to websocket clients. Clients receive every
// event until they send a subscribe message narrowing the types.
type EventStream struct {
	hub    *Hub
	logger *observability.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]bool
	upgrader    websocket.Upgrader
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	eventTypes map[EventType]bool
	muted      bool
	writeMu    sync.Mutex
}

// NewEventStream starts relaying hub events until ctx is done.
func NewEventStream(ctx context.Context, hub *Hub, logger *observability.Logger) *EventStream {
	if logger == nil {
		logger = observability.Discard()
	}
	s := &EventStream{
		hub:         hub,
		logger:      logger,
		subscribers: make(map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	go s.broadcast(ctx)
	return s
}

// ServeHTTP upgrades the connection and starts its pumps.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	// the request context ends once the handler returns
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		conn:       conn,
		send:       make(chan Event, 100),
		ctx:        ctx,
		cancel:     cancel,
		eventTypes: make(map[EventType]bool),
	}

	s.mu.Lock()
	s.subscribers[sub] = true
	s.mu.Unlock()

	s.logger.Info("event stream connected", "remote_addr", r.RemoteAddr)
	observability.ActiveEventStreamConnections.Inc()

	go sub.writePump()
	go s.readPump(sub)
}

func (s *EventStream) readPump(sub *subscriber) {
	defer func() {
		s.remove(sub)
		sub.writeMu.Lock()
		sub.conn.Close()
		sub.writeMu.Unlock()
		observability.ActiveEventStreamConnections.Dec()
	}()

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg SubscribeMessage
		if err := sub.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("event stream read ended", "error", err.Error())
			}
			return
		}
		switch msg.Action {
		case "subscribe":
			sub.mu.Lock()
			sub.muted = false
			sub.eventTypes = make(map[EventType]bool, len(msg.EventTypes))
			for _, t := range msg.EventTypes {
				sub.eventTypes[EventType(t)] = true
			}
			sub.mu.Unlock()
		case "unsubscribe":
			sub.mu.Lock()
			sub.muted = true
			sub.mu.Unlock()
		default:
			s.logger.Debug("unknown event stream action", "action", msg.Action)
		}
	}
}

func (sub *subscriber) wants(t EventType) bool {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	return !sub.muted && (len(sub.eventTypes) == 0 || sub.eventTypes[t])
}

func (sub *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.cancel()
	}()

	for {
		select {
		case event, ok := <-sub.send:
			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				sub.writeMu.Unlock()
				return
			}
			err := sub.conn.WriteJSON(event)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}
			observability.EventStreamMessagesSent.Inc()

		case <-ticker.C:
			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sub.conn.WriteMessage(websocket.PingMessage, nil)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-sub.ctx.Done():
			return
		}
	}
}

func (s *EventStream) broadcast(ctx context.Context) {
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case event, ok := <-events:
			if !ok {
				s.Shutdown()
				return
			}
			s.mu.RLock()
			for sub := range s.subscribers {
				if !sub.wants(event.Type) {
					continue
				}
				select {
				case sub.send <- event:
				default:
					observability.EventStreamBackpressureDrops.Inc()
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *EventStream) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[sub] {
		delete(s.subscribers, sub)
		close(sub.send)
		s.logger.Info("event stream closed")
	}
}

// ActiveConnections returns the number of connected clients.
func (s *EventStream) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Shutdown closes every client connection.
func (s *EventStream) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		sub.cancel()
		sub.writeMu.Lock()
		sub.conn.Close()
		sub.writeMu.Unlock()
		close(sub.send)
		delete(s.subscribers, sub)
	}
}
