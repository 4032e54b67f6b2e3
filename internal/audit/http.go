package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ActorHeader carries the operator name sent by the dashboard.
const ActorHeader = "X-Andon-Operator"

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Recorder fills request details into entries and never fails the caller.
type Recorder struct {
	logger Logger
	log    zerolog.Logger
}

// NewRecorder constructs a recorder. A nil logger makes Record a no-op.
func NewRecorder(logger Logger, log zerolog.Logger) *Recorder {
	return &Recorder{logger: logger, log: log}
}

// Record writes entry enriched with the request's actor, ip and user agent.
func (r *Recorder) Record(req *http.Request, entry Entry) {
	if r == nil || r.logger == nil {
		return
	}
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
		if entry.Actor == "" {
			entry.Actor = strings.TrimSpace(req.Header.Get(ActorHeader))
		}
		if entry.IP == "" {
			entry.IP = ClientIP(req)
		}
		if entry.UserAgent == "" {
			entry.UserAgent = req.UserAgent()
		}
	}
	if entry.Actor == "" {
		entry.Actor = "dashboard"
	}
	entry = normalize(entry)
	if err := r.logger.Log(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("action", entry.Action).Str("resource_id", entry.ResourceID).Msg("audit write failed")
	}
}
