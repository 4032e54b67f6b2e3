package alerts

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var allSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// SeverityStrings lists valid severities for error replies.
func SeverityStrings() []string {
	out := make([]string, 0, len(allSeverities))
	for _, s := range allSeverities {
		out = append(out, string(s))
	}
	return out
}

// ParseSeverity accepts an exact severity name.
func ParseSeverity(raw string) (Severity, error) {
	for _, s := range allSeverities {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, raw)
}

// Status is the alert lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// ParseStatus accepts an exact status name.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidAlert, raw)
}

// Alert is an operator-raised or line-raised problem at a station.
type Alert struct {
	ID             string     `json:"id"`
	StationID      string     `json:"station_id"`
	StationName    string     `json:"station_name"`
	StationCode    string     `json:"station_code"`
	AlertType      string     `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Status         Status     `json:"status"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate checks the fields required on creation.
func (a Alert) Validate() error {
	if strings.TrimSpace(a.StationID) == "" || strings.TrimSpace(a.AlertType) == "" || strings.TrimSpace(a.Message) == "" {
		return fmt.Errorf("%w: station_id, alert_type, severity and message are required", ErrInvalidAlert)
	}
	if _, err := ParseSeverity(string(a.Severity)); err != nil {
		return err
	}
	return nil
}

// Acknowledge moves an active alert to acknowledged.
func (a *Alert) Acknowledge(by string, at time.Time) error {
	if a.Status != StatusActive {
		return ErrInvalidTransition
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &at
	return nil
}

// Resolve closes an active or acknowledged alert.
func (a *Alert) Resolve(by string, at time.Time) error {
	if a.Status == StatusResolved {
		return ErrInvalidTransition
	}
	a.Status = StatusResolved
	a.ResolvedBy = by
	a.ResolvedAt = &at
	return nil
}

// AllowedFrom lists the states an action may start from.
func AllowedFrom(target Status) []Status {
	switch target {
	case StatusAcknowledged:
		return []Status{StatusActive}
	case StatusResolved:
		return []Status{StatusActive, StatusAcknowledged}
	default:
		return nil
	}
}

// Filter narrows alert listings.
type Filter struct {
	Status    Status
	StationID string
	Limit     int
}

// SeverityStats counts alerts of one severity in a period.
type SeverityStats struct {
	Severity      Severity `json:"severity"`
	Count         int      `json:"count"`
	ActiveCount   int      `json:"active_count"`
	ResolvedCount int      `json:"resolved_count"`
}
