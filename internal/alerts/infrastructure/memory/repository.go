package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alerts "andon-board/internal/alerts/domain"
	stations "andon-board/internal/stations/domain"
)

// Repository is an in-memory alert store for demo/testing.
type Repository struct {
	mu     sync.RWMutex
	alerts map[string]alerts.Alert
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{alerts: make(map[string]alerts.Alert)}
}

// Create stores a new alert.
func (r *Repository) Create(_ context.Context, alert *alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = *alert
	return nil
}

// Get returns nil, nil when the alert does not exist.
func (r *Repository) Get(_ context.Context, id string) (*alerts.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// List returns matching alerts newest first.
func (r *Repository) List(_ context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]alerts.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.StationID != "" && a.StationID != filter.StationID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Transition stores alert if its current status is one of from.
func (r *Repository) Transition(_ context.Context, alert *alerts.Alert, from []alerts.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.alerts[alert.ID]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if current.Status == s {
			r.alerts[alert.ID] = *alert
			return true, nil
		}
	}
	return false, nil
}

// Statistics counts alerts created at or after since, grouped by severity.
func (r *Repository) Statistics(_ context.Context, since time.Time) ([]alerts.SeverityStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bySeverity := make(map[alerts.Severity]*alerts.SeverityStats)
	for _, a := range r.alerts {
		if a.CreatedAt.Before(since) {
			continue
		}
		st, ok := bySeverity[a.Severity]
		if !ok {
			st = &alerts.SeverityStats{Severity: a.Severity}
			bySeverity[a.Severity] = st
		}
		st.Count++
		switch a.Status {
		case alerts.StatusActive:
			st.ActiveCount++
		case alerts.StatusResolved:
			st.ResolvedCount++
		}
	}
	out := make([]alerts.SeverityStats, 0, len(bySeverity))
	for _, st := range bySeverity {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Severity < out[j].Severity })
	return out, nil
}

// ActiveByStation counts active alerts per station.
func (r *Repository) ActiveByStation(_ context.Context) (map[string]stations.AlertSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]stations.AlertSummary)
	for _, a := range r.alerts {
		if a.Status != alerts.StatusActive {
			continue
		}
		sum := out[a.StationID]
		sum.ActiveAlerts++
		if sum.LastAlertTime == nil || a.CreatedAt.After(*sum.LastAlertTime) {
			created := a.CreatedAt
			sum.LastAlertTime = &created
		}
		out[a.StationID] = sum
	}
	return out, nil
}
