package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"andon-board/internal/audit"
	"andon-board/internal/observability/metrics"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "andon-board"

// Mountable is implemented by every bounded-context HTTP handler.
type Mountable interface {
	Routes() chi.Router
}

// Config assembles the public router.
type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
	Clock          func() time.Time

	Stations   Mountable
	Alerts     Mountable
	Statistics Mountable
	// Realtime serves the WebSocket channel at /ws. Nil disables it.
	Realtime http.Handler
}

// NewRouter builds the API router with shared middleware, health and metrics.
func NewRouter(cfg Config) chi.Router {
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(cfg.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(timeoutExceptStreams(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", audit.ActorHeader},
		MaxAge:         300,
	}))

	r.Method(http.MethodGet, "/health", &HealthHandler{now: cfg.Clock})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if cfg.Realtime != nil {
		r.Method(http.MethodGet, "/ws", cfg.Realtime)
	}
	if cfg.Stations != nil {
		r.Mount("/api/stations", cfg.Stations.Routes())
	}
	if cfg.Alerts != nil {
		r.Mount("/api/alerts", cfg.Alerts.Routes())
	}
	if cfg.Statistics != nil {
		r.Mount("/api/statistics", cfg.Statistics.Routes())
	}
	return r
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	now func() time.Time
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// accessLog logs one line per request and feeds the HTTP metrics, labelled
// by chi route pattern so ids do not explode cardinality.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTP(r.Method, route, status, elapsed)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Dur("duration", elapsed).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// timeoutExceptStreams bounds ordinary requests. Long-lived SSE and
// WebSocket sessions bypass the deadline.
func timeoutExceptStreams(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isStream(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func isStream(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, "/stream") || websocket.IsWebSocketUpgrade(r)
}
