package alerts

import (
	"context"
	"time"

	stations "andon-board/internal/stations/domain"
)

// Repository persists alerts.
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	// Get returns nil, nil when the alert does not exist.
	Get(ctx context.Context, id string) (*Alert, error)
	// List returns alerts newest first, joined with station name and code.
	List(ctx context.Context, filter Filter) ([]Alert, error)
	// Transition applies the alert's new state only if the stored status is
	// one of from. It reports false when no row matched.
	Transition(ctx context.Context, alert *Alert, from []Status) (bool, error)
	Statistics(ctx context.Context, since time.Time) ([]SeverityStats, error)
	ActiveByStation(ctx context.Context) (map[string]stations.AlertSummary, error)
}
