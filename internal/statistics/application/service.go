package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	alertapp "andon-board/internal/alerts/application"
	"andon-board/internal/export"
	stations "andon-board/internal/stations/domain"
	statistics "andon-board/internal/statistics/domain"
)

const (
	DefaultAlertDays       = 7
	DefaultPerformanceDays = 30
	overviewWindow         = 24 * time.Hour
)

// StationSource gives access to stations and their reconstructed days.
type StationSource interface {
	GetStation(ctx context.Context, id string) (*stations.Station, error)
	Timelines(ctx context.Context, day time.Time) ([]stations.Station, []stations.Timeline, error)
	ParseDay(raw string) (time.Time, error)
	Location() *time.Location
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service computes dashboard statistics and daily reports.
type Service struct {
	repo     statistics.Repository
	stations StationSource
	clock    Clock
	logger   zerolog.Logger
}

// ServiceOption customizes the statistics service.
type ServiceOption func(*Service)

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

// NewService constructs a statistics service.
func NewService(repo statistics.Repository, source StationSource, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("statistics: nil repository")
	}
	if source == nil {
		return nil, errors.New("statistics: nil station source")
	}
	s := &Service{repo: repo, stations: source, clock: systemClock{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Overview counts stations per status and alerts raised in the last 24h.
func (s *Service) Overview(ctx context.Context) (statistics.Overview, error) {
	now := s.clock.Now().UTC()
	counts, err := s.repo.StationCounts(ctx)
	if err != nil {
		return statistics.Overview{}, fmt.Errorf("station counts: %w", err)
	}
	alertCounts, err := s.repo.AlertCounts(ctx, now.Add(-overviewWindow))
	if err != nil {
		return statistics.Overview{}, fmt.Errorf("alert counts: %w", err)
	}
	return statistics.Overview{Stations: counts, Alerts: alertCounts, Timestamp: now}, nil
}

// StationAlerts returns per-station alert totals over the last days.
func (s *Service) StationAlerts(ctx context.Context, days int) ([]statistics.StationAlertStats, error) {
	days = alertapp.ClampDays(days, DefaultAlertDays)
	since := s.clock.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return s.repo.StationAlerts(ctx, since)
}

// Performance sums production over the last days, counted in factory days.
func (s *Service) Performance(ctx context.Context, days int) (statistics.Performance, error) {
	days = alertapp.ClampDays(days, DefaultPerformanceDays)
	since := s.today().AddDate(0, 0, -days)
	rows, err := s.repo.Performance(ctx, since)
	if err != nil {
		return statistics.Performance{}, err
	}
	return statistics.Summarize(rows), nil
}

// ProductionInput is the body of a production upsert. Date is YYYY-MM-DD
// and defaults to today in the factory timezone.
type ProductionInput struct {
	StationID       string
	Date            string
	TotalProducts   int
	DefectProducts  int
	DowntimeMinutes int
}

// RecordProduction upserts a station's figures for one day.
func (s *Service) RecordProduction(ctx context.Context, in ProductionInput) (statistics.ProductionRecord, error) {
	rec := statistics.ProductionRecord{
		StationID:       strings.TrimSpace(in.StationID),
		TotalProducts:   in.TotalProducts,
		DefectProducts:  in.DefectProducts,
		DowntimeMinutes: in.DowntimeMinutes,
	}
	if strings.TrimSpace(in.Date) == "" {
		rec.Date = s.today()
	} else {
		day, err := s.stations.ParseDay(in.Date)
		if err != nil {
			return statistics.ProductionRecord{}, fmt.Errorf("%w: %v", statistics.ErrInvalidProduction, err)
		}
		rec.Date = day
	}
	if err := rec.Validate(); err != nil {
		return statistics.ProductionRecord{}, err
	}
	if _, err := s.stations.GetStation(ctx, rec.StationID); err != nil {
		return statistics.ProductionRecord{}, err
	}
	if err := s.repo.UpsertProduction(ctx, rec); err != nil {
		return statistics.ProductionRecord{}, fmt.Errorf("upsert production: %w", err)
	}
	s.logger.Info().
		Str("station_id", rec.StationID).
		Str("date", rec.Date.Format("2006-01-02")).
		Int("total_products", rec.TotalProducts).
		Msg("production recorded")
	return rec, nil
}

// DailyReport builds the time-in-status report for one factory day.
func (s *Service) DailyReport(ctx context.Context, rawDay string) (export.DailyReport, error) {
	day := s.today()
	if strings.TrimSpace(rawDay) != "" {
		parsed, err := s.stations.ParseDay(rawDay)
		if err != nil {
			return export.DailyReport{}, fmt.Errorf("%w: %v", statistics.ErrInvalidDate, err)
		}
		day = parsed
	}
	list, timelines, err := s.stations.Timelines(ctx, day)
	if err != nil {
		return export.DailyReport{}, err
	}
	return export.NewDailyReport(day.Format("2006-01-02"), list, timelines, s.clock.Now().UTC()), nil
}

func (s *Service) today() time.Time {
	now := s.clock.Now().In(s.stations.Location())
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
