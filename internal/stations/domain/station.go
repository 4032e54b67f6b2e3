package stations

import (
	"errors"
	"time"
)

// Station is a physical work position on the factory floor.
type Station struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Zone        string    `json:"zone"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if !s.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Transition describes one committed status change.
type Transition struct {
	StationID string    `json:"station_id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"status"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	// Seq is the audit row id; it orders transitions of one station.
	Seq int64 `json:"seq"`
}

// ResetResult summarises a bulk reset.
type ResetResult struct {
	ResetCount  int
	Transitions []Transition
	Failed      map[string]error
	Timestamp   time.Time
}

// AlertSummary is the alert badge shown next to a station on the board.
type AlertSummary struct {
	ActiveAlerts  int        `json:"active_alerts"`
	LastAlertTime *time.Time `json:"last_alert_time"`
}
