package stations

import (
	"context"
	"time"
)

// StatusTx is the transactional view used by status transitions.
type StatusTx interface {
	// LockStation returns the station with its row locked for the rest of the
	// transaction, or nil when absent.
	LockStation(ctx context.Context, id string) (*Station, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	AppendLog(ctx context.Context, entry *StatusLogEntry) error
}

// Repository persists stations and their audit log.
type Repository interface {
	ListStations(ctx context.Context) ([]Station, error)
	GetStation(ctx context.Context, id string) (*Station, error)
	ListNonNormal(ctx context.Context) ([]Station, error)
	CreateStation(ctx context.Context, station *Station) error
	UpsertStation(ctx context.Context, station *Station) error
	DeleteStation(ctx context.Context, id string) error
	AppendLog(ctx context.Context, entry *StatusLogEntry) error
	// ListStatusLog returns change_status points for a station within
	// [from, to), ascending by time.
	ListStatusLog(ctx context.Context, stationID string, from, to time.Time) ([]StatusPoint, error)
	WithinTx(ctx context.Context, fn func(tx StatusTx) error) error
}
