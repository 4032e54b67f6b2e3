package realtime

import (
	"net/http"

	"github.com/rs/zerolog"
)

// EventStationsData is sent to every session right after it connects.
const EventStationsData = "stations_data"

// StreamHandler serves the dashboard event stream over SSE.
type StreamHandler struct {
	hub     *Hub
	backend Backend
	logger  zerolog.Logger
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(hub *Hub, backend Backend, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, backend: backend, logger: logger}
}

// ServeHTTP handles GET /api/stations/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hub == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.hub.Subscribe(TransportSSE)
	defer h.hub.Unsubscribe(client)

	if h.backend != nil {
		snapshot, err := h.backend.Snapshot(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("stream snapshot failed")
			return
		}
		frame, err := encodeFrame(EventStationsData, snapshot)
		if err != nil {
			return
		}
		writeSSE(w, frame)
		flusher.Flush()
	}

	done := r.Context().Done()
	for {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				return
			}
			writeSSE(w, frame)
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, frame Frame) {
	_, _ = w.Write([]byte("event: " + frame.Type + "\n"))
	_, _ = w.Write([]byte("data: "))
	if len(frame.Data) == 0 {
		_, _ = w.Write([]byte("{}"))
	} else {
		_, _ = w.Write(frame.Data)
	}
	_, _ = w.Write([]byte("\n\n"))
}
