package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alerts "andon-board/internal/alerts/domain"
	"andon-board/internal/observability/metrics"
	stations "andon-board/internal/stations/domain"
)

// Alert lifecycle events pushed to dashboards.
const (
	EventNewAlert          = "new_alert"
	EventAlertAcknowledged = "alert_acknowledged"
	EventAlertResolved     = "alert_resolved"
)

const (
	DefaultListLimit = 50
	maxListLimit     = 500
	DefaultStatsDays = 7
	maxStatsDays     = 365
)

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Notifier publishes alert lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event AlertEvent)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event AlertEvent) {
	if f != nil {
		f(ctx, event)
	}
}

// Publisher is a typed broadcast sink such as the realtime hub.
type Publisher interface {
	Publish(eventType string, data any)
}

// PublisherNotifier forwards alert events to a Publisher.
func PublisherNotifier(p Publisher) Notifier {
	return NotifierFunc(func(_ context.Context, event AlertEvent) {
		if p != nil {
			p.Publish(event.Type, event.Alert)
		}
	})
}

// StationLookup resolves the station an alert is raised against.
type StationLookup interface {
	GetStation(ctx context.Context, id string) (*stations.Station, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service handles alert creation and state transitions.
type Service struct {
	repo      alerts.Repository
	stations  StationLookup
	notifiers []Notifier
	clock     Clock
	logger    zerolog.Logger
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier adds a notifier. Notifiers run in the order added.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		if notifier != nil {
			s.notifiers = append(s.notifiers, notifier)
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs an alert service.
func NewService(repo alerts.Repository, lookup StationLookup, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if lookup == nil {
		return nil, errors.New("alerts: nil station lookup")
	}
	s := &Service{
		repo:     repo,
		stations: lookup,
		clock:    systemClock{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAlertInput carries the fields of a new alert.
type CreateAlertInput struct {
	StationID string
	AlertType string
	Severity  string
	Message   string
}

// CreateAlert raises a new active alert against an existing station.
func (s *Service) CreateAlert(ctx context.Context, in CreateAlertInput) (*alerts.Alert, error) {
	alert := &alerts.Alert{
		StationID: strings.TrimSpace(in.StationID),
		AlertType: strings.TrimSpace(in.AlertType),
		Severity:  alerts.Severity(strings.TrimSpace(in.Severity)),
		Message:   strings.TrimSpace(in.Message),
		Status:    alerts.StatusActive,
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	st, err := s.stations.GetStation(ctx, alert.StationID)
	if err != nil {
		return nil, err
	}
	alert.ID = uuid.NewString()
	alert.StationName = st.Name
	alert.StationCode = st.Code
	alert.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	s.logger.Info().
		Str("alert_id", alert.ID).
		Str("station_id", alert.StationID).
		Str("severity", string(alert.Severity)).
		Msg("alert raised")
	s.emit(ctx, EventNewAlert, *alert)
	return alert, nil
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if filter.Status != "" {
		if _, err := alerts.ParseStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, filter)
}

// ActiveAlerts returns every active alert.
func (s *Service) ActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	return s.repo.List(ctx, alerts.Filter{Status: alerts.StatusActive})
}

// Acknowledge marks an active alert as seen by an operator.
func (s *Service) Acknowledge(ctx context.Context, id, by string) (*alerts.Alert, error) {
	return s.transition(ctx, id, by, alerts.StatusAcknowledged, EventAlertAcknowledged)
}

// Resolve closes an active or acknowledged alert.
func (s *Service) Resolve(ctx context.Context, id, by string) (*alerts.Alert, error) {
	return s.transition(ctx, id, by, alerts.StatusResolved, EventAlertResolved)
}

func (s *Service) transition(ctx context.Context, id, by string, target alerts.Status, eventType string) (*alerts.Alert, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return nil, fmt.Errorf("%w: operator name is required", alerts.ErrInvalidAlert)
	}
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	now := s.clock.Now().UTC()
	switch target {
	case alerts.StatusAcknowledged:
		err = alert.Acknowledge(by, now)
	case alerts.StatusResolved:
		err = alert.Resolve(by, now)
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.Transition(ctx, alert, alerts.AllowedFrom(target))
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	if !ok {
		// Another operator handled it between the read and the update.
		return nil, alerts.ErrInvalidTransition
	}
	s.logger.Info().Str("alert_id", id).Str("status", string(target)).Str("by", by).Msg("alert updated")
	s.emit(ctx, eventType, *alert)
	return alert, nil
}

// Statistics groups alerts raised in the last days by severity.
func (s *Service) Statistics(ctx context.Context, days int) ([]alerts.SeverityStats, error) {
	days = ClampDays(days, DefaultStatsDays)
	since := s.clock.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return s.repo.Statistics(ctx, since)
}

// ActiveByStation returns the alert badge of every station with active alerts.
func (s *Service) ActiveByStation(ctx context.Context) (map[string]stations.AlertSummary, error) {
	return s.repo.ActiveByStation(ctx)
}

// ClampDays bounds a look-back window, using def when days is not positive.
func ClampDays(days, def int) int {
	switch {
	case days <= 0:
		return def
	case days > maxStatsDays:
		return maxStatsDays
	default:
		return days
	}
}

func (s *Service) emit(ctx context.Context, eventType string, alert alerts.Alert) {
	metrics.IncAlertEvent(eventType)
	event := AlertEvent{Type: eventType, Alert: alert}
	for _, n := range s.notifiers {
		n.Notify(ctx, event)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
