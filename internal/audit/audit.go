package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Admin actions recorded in the audit trail.
const (
	ActionStationCreate = "station.create"
	ActionStationDelete = "station.delete"
	ActionStationsReset = "stations.reset_all"
	ActionAlertCreate   = "alert.create"
	ActionAlertAck      = "alert.acknowledge"
	ActionAlertResolve  = "alert.resolve"
	ActionProduction    = "production.record"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Action        string
	ResourceType  string
	ResourceID    string
	StationID     string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(ctx context.Context, entry Entry) error

// Log calls f.
func (f LoggerFunc) Log(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metadata marshals v, returning nil on failure.
func Metadata(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
