package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"andon-board/internal/observability/metrics"
)

// Transports a session can use.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const defaultClientBuffer = 64

// Frame is one queued event. Data is already JSON encoded.
type Frame struct {
	Type string
	Data json.RawMessage
}

// Envelope is the WebSocket wire shape of a Frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Backend serves snapshots and inbound commands for sessions.
type Backend interface {
	// Snapshot returns the stations_data payload sent on connect.
	Snapshot(ctx context.Context) (any, error)
	// ApplyStatus runs a status change requested over the socket.
	ApplyStatus(ctx context.Context, stationID, status, source string) error
}

// Client is one connected dashboard session.
type Client struct {
	ID        string
	Transport string
	send      chan Frame
	closed    bool
}

// Frames returns the session queue. It is closed when the session is
// unsubscribed or evicted.
func (c *Client) Frames() <-chan Frame {
	return c.send
}

// Hub fans events out to dashboard sessions. Every session owns a bounded
// FIFO queue; a session whose queue is full is evicted rather than skipped,
// so a connected client never misses an event silently.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	buffer  int
	logger  zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithClientBuffer sets the per-session queue length.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub constructs a hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		buffer:  defaultClientBuffer,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new session.
func (h *Hub) Subscribe(transport string) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		Transport: transport,
		send:      make(chan Frame, h.buffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.AddRealtimeClients(transport, 1)
	h.logger.Debug().Str("client_id", c.ID).Str("transport", transport).Msg("session connected")
	return c
}

// Unsubscribe removes a session. Safe to call after eviction.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if removed {
		h.logger.Debug().Str("client_id", c.ID).Msg("session disconnected")
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish broadcasts an event to every session. It never blocks.
func (h *Hub) Publish(eventType string, data any) {
	frame, err := encodeFrame(eventType, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("encode event failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.deliverLocked(c, frame)
	}
}

// SendTo queues an event for a single session.
func (h *Hub) SendTo(c *Client, eventType string, data any) {
	frame, err := encodeFrame(eventType, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("encode event failed")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliverLocked(c, frame)
}

func (h *Hub) deliverLocked(c *Client, frame Frame) {
	select {
	case c.send <- frame:
	default:
		h.removeLocked(c)
		metrics.IncRealtimeEviction(c.Transport)
		h.logger.Warn().Str("client_id", c.ID).Str("transport", c.Transport).Msg("session evicted: queue full")
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok || c.closed {
		return false
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	metrics.AddRealtimeClients(c.Transport, -1)
	return true
}

func encodeFrame(eventType string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: eventType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: eventType, Data: raw}, nil
}
