package statistics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidProduction wraps malformed production figures.
	ErrInvalidProduction = errors.New("production: invalid record")
	// ErrInvalidDate is returned for a report date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("statistics: invalid date")
)

// StationCounts is the number of stations in each status.
type StationCounts struct {
	Total       int `json:"total_stations"`
	Normal      int `json:"normal_stations"`
	Warning     int `json:"warning_stations"`
	Error       int `json:"error_stations"`
	Maintenance int `json:"maintenance_stations"`
}

// AlertCounts summarises alerts raised in a window.
type AlertCounts struct {
	Total        int `json:"total_alerts"`
	Active       int `json:"active_alerts"`
	Acknowledged int `json:"acknowledged_alerts"`
	Resolved     int `json:"resolved_alerts"`
	Critical     int `json:"critical_alerts"`
}

// Overview is the dashboard header block.
type Overview struct {
	Stations  StationCounts `json:"stations"`
	Alerts    AlertCounts   `json:"alerts"`
	Timestamp time.Time     `json:"timestamp"`
}

// StationAlertStats is one station's alert activity in a window.
type StationAlertStats struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	Status         string     `json:"status"`
	TotalAlerts    int        `json:"total_alerts"`
	ActiveAlerts   int        `json:"active_alerts"`
	CriticalAlerts int        `json:"critical_alerts"`
	LastAlertTime  *time.Time `json:"last_alert_time"`
}

// ProductionRecord is one station's output for one day.
type ProductionRecord struct {
	StationID       string    `json:"station_id"`
	Date            time.Time `json:"date"`
	TotalProducts   int       `json:"total_products"`
	DefectProducts  int       `json:"defect_products"`
	DowntimeMinutes int       `json:"downtime_minutes"`
}

// Validate checks production figures.
func (r ProductionRecord) Validate() error {
	if r.StationID == "" {
		return fmt.Errorf("%w: station_id is required", ErrInvalidProduction)
	}
	if r.TotalProducts < 0 || r.DefectProducts < 0 || r.DowntimeMinutes < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidProduction)
	}
	if r.DefectProducts > r.TotalProducts {
		return fmt.Errorf("%w: defect_products exceeds total_products", ErrInvalidProduction)
	}
	if r.DowntimeMinutes > 24*60 {
		return fmt.Errorf("%w: downtime_minutes exceeds one day", ErrInvalidProduction)
	}
	return nil
}

// StationPerformance is a station's production totals over a window.
type StationPerformance struct {
	StationID       string  `json:"station_id"`
	StationName     string  `json:"station_name"`
	StationCode     string  `json:"station_code"`
	TotalProducts   int     `json:"total_products"`
	DefectProducts  int     `json:"defect_products"`
	DowntimeMinutes int     `json:"downtime_minutes"`
	QualityRate     float64 `json:"quality_rate"`
}

// PerformanceTotals sums every station.
type PerformanceTotals struct {
	TotalProducts   int     `json:"total_products"`
	DefectProducts  int     `json:"defect_products"`
	DowntimeMinutes int     `json:"downtime_minutes"`
	QualityRate     float64 `json:"quality_rate"`
}

// Performance is the production report body.
type Performance struct {
	Stations []StationPerformance `json:"stations"`
	Totals   PerformanceTotals    `json:"totals"`
}

// QualityRate is the share of good products as a percentage with two
// decimals. It is zero when nothing was produced.
func QualityRate(total, defect int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(total-defect) * 100 / float64(total)
	return math.Round(rate*100) / 100
}

// Summarize fills quality rates and computes totals.
func Summarize(rows []StationPerformance) Performance {
	out := Performance{Stations: make([]StationPerformance, 0, len(rows))}
	for _, row := range rows {
		row.QualityRate = QualityRate(row.TotalProducts, row.DefectProducts)
		out.Totals.TotalProducts += row.TotalProducts
		out.Totals.DefectProducts += row.DefectProducts
		out.Totals.DowntimeMinutes += row.DowntimeMinutes
		out.Stations = append(out.Stations, row)
	}
	out.Totals.QualityRate = QualityRate(out.Totals.TotalProducts, out.Totals.DefectProducts)
	return out
}

// Repository reads aggregates for the statistics pages.
type Repository interface {
	StationCounts(ctx context.Context) (StationCounts, error)
	AlertCounts(ctx context.Context, since time.Time) (AlertCounts, error)
	// StationAlerts returns every station, busiest first.
	StationAlerts(ctx context.Context, since time.Time) ([]StationAlertStats, error)
	// Performance sums production rows dated on or after since, per station.
	Performance(ctx context.Context, since time.Time) ([]StationPerformance, error)
	UpsertProduction(ctx context.Context, rec ProductionRecord) error
}
