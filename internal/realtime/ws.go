package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	stations "andon-board/internal/stations/domain"
)

// Inbound and reply message types on the WebSocket channel.
const (
	MsgRequestStations      = "request_stations"
	MsgUpdateStationStatus  = "update_station_status"
	MsgStatusUpdatedSuccess = "station_status_updated_success"
	MsgError                = "error"
)

// SourceSocket is recorded in the audit log for socket-originated changes.
const SourceSocket = "socket"

const (
	defaultWriteWait       = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	inboundCommandTimeout  = 10 * time.Second
	maxInboundMessageBytes = 4096
)

type updateStatusRequest struct {
	StationID string `json:"station_id"`
	Status    string `json:"status"`
}

// ErrorReply is sent when an inbound command fails.
type ErrorReply struct {
	Message string   `json:"message"`
	Details string   `json:"details,omitempty"`
	Valid   []string `json:"valid_statuses,omitempty"`
}

// WSHandler serves dashboard sessions over WebSocket.
type WSHandler struct {
	hub          *Hub
	backend      Backend
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       zerolog.Logger
}

// WSOption configures the WebSocket handler.
type WSOption func(*WSHandler)

// WithAllowedOrigins restricts browser origins. "*" or empty allows all.
func WithAllowedOrigins(origins []string) WSOption {
	return func(h *WSHandler) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "*" {
				return
			}
			allowed[o] = true
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewWSHandler constructs a WebSocket handler.
func NewWSHandler(hub *Hub, backend Backend, logger zerolog.Logger, opts ...WSOption) (*WSHandler, error) {
	if hub == nil {
		return nil, errors.New("realtime: nil hub")
	}
	if backend == nil {
		return nil, errors.New("realtime: nil backend")
	}
	h := &WSHandler{
		hub:     hub,
		backend: backend,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: defaultPingInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP upgrades GET /ws.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := h.hub.Subscribe(TransportWebSocket)

	go h.writeLoop(conn, client)
	h.sendSnapshot(r.Context(), client)
	h.readLoop(conn, client)
	h.hub.Unsubscribe(client)
}

func (h *WSHandler) readLoop(conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(maxInboundMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		var msg Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket read failed")
			}
			return
		}
		h.handleInbound(client, msg)
	}
}

func (h *WSHandler) handleInbound(client *Client, msg Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundCommandTimeout)
	defer cancel()

	switch msg.Type {
	case MsgRequestStations:
		h.sendSnapshot(ctx, client)
	case MsgUpdateStationStatus:
		var req updateStatusRequest
		if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &req) != nil || req.StationID == "" || req.Status == "" {
			h.hub.SendTo(client, MsgError, ErrorReply{Message: "station_id and status are required"})
			return
		}
		if err := h.backend.ApplyStatus(ctx, req.StationID, req.Status, SourceSocket); err != nil {
			h.hub.SendTo(client, MsgError, errorReply(err))
			return
		}
		h.hub.SendTo(client, MsgStatusUpdatedSuccess, map[string]any{"success": true, "station_id": req.StationID})
	default:
		h.hub.SendTo(client, MsgError, ErrorReply{Message: "unknown message type", Details: msg.Type})
	}
}

func (h *WSHandler) sendSnapshot(ctx context.Context, client *Client) {
	snapshot, err := h.backend.Snapshot(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket snapshot failed")
		h.hub.SendTo(client, MsgError, ErrorReply{Message: "could not load stations"})
		return
	}
	h.hub.SendTo(client, EventStationsData, snapshot)
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(Envelope{Type: frame.Type, Data: frame.Data}); err != nil {
				h.hub.Unsubscribe(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(client)
				return
			}
		}
	}
}

func errorReply(err error) ErrorReply {
	switch {
	case errors.Is(err, stations.ErrInvalidStatus):
		return ErrorReply{Message: "invalid status", Details: err.Error(), Valid: stations.StatusStrings()}
	case errors.Is(err, stations.ErrStationNotFound):
		return ErrorReply{Message: "station not found"}
	default:
		return ErrorReply{Message: "could not update station status", Details: err.Error()}
	}
}
