package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	statistics "andon-board/internal/statistics/domain"
)

// Repository reads statistics aggregates from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StationCounts counts stations per status.
func (r *Repository) StationCounts(ctx context.Context) (statistics.StationCounts, error) {
	var out statistics.StationCounts
	if r == nil || r.db == nil {
		return out, errors.New("statistics repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE status = 'normal'),
	COUNT(*) FILTER (WHERE status = 'warning'),
	COUNT(*) FILTER (WHERE status = 'error'),
	COUNT(*) FILTER (WHERE status = 'maintenance')
FROM stations`).Scan(&out.Total, &out.Normal, &out.Warning, &out.Error, &out.Maintenance)
	return out, err
}

// AlertCounts counts alerts created since the given time.
func (r *Repository) AlertCounts(ctx context.Context, since time.Time) (statistics.AlertCounts, error) {
	var out statistics.AlertCounts
	if r == nil || r.db == nil {
		return out, errors.New("statistics repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE status = 'active'),
	COUNT(*) FILTER (WHERE status = 'acknowledged'),
	COUNT(*) FILTER (WHERE status = 'resolved'),
	COUNT(*) FILTER (WHERE severity = 'critical' AND status = 'active')
FROM alerts
WHERE created_at >= $1`, since).Scan(&out.Total, &out.Active, &out.Acknowledged, &out.Resolved, &out.Critical)
	return out, err
}

// StationAlerts returns every station with its alert totals since the
// given time, busiest first.
func (r *Repository) StationAlerts(ctx context.Context, since time.Time) ([]statistics.StationAlertStats, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statistics repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.name, s.code, s.status,
	COUNT(a.id) AS total_alerts,
	COUNT(a.id) FILTER (WHERE a.status = 'active') AS active_alerts,
	COUNT(a.id) FILTER (WHERE a.severity = 'critical') AS critical_alerts,
	MAX(a.created_at)
FROM stations s
LEFT JOIN alerts a ON a.station_id = s.id AND a.created_at >= $1
GROUP BY s.id, s.name, s.code, s.status
ORDER BY active_alerts DESC, total_alerts DESC, s.id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []statistics.StationAlertStats
	for rows.Next() {
		var (
			st   statistics.StationAlertStats
			last sql.NullTime
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Code, &st.Status, &st.TotalAlerts, &st.ActiveAlerts, &st.CriticalAlerts, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time.UTC()
			st.LastAlertTime = &t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Performance sums production rows dated on or after since, per station.
func (r *Repository) Performance(ctx context.Context, since time.Time) ([]statistics.StationPerformance, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statistics repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.name, s.code,
	COALESCE(SUM(ps.total_products), 0),
	COALESCE(SUM(ps.defect_products), 0),
	COALESCE(SUM(ps.downtime_minutes), 0)
FROM stations s
LEFT JOIN production_stats ps ON ps.station_id = s.id AND ps.date >= $1
GROUP BY s.id, s.name, s.code
ORDER BY s.name, s.id`, dateOnly(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []statistics.StationPerformance
	for rows.Next() {
		var p statistics.StationPerformance
		if err := rows.Scan(&p.StationID, &p.StationName, &p.StationCode, &p.TotalProducts, &p.DefectProducts, &p.DowntimeMinutes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProduction inserts or replaces a station's figures for one day.
func (r *Repository) UpsertProduction(ctx context.Context, rec statistics.ProductionRecord) error {
	if r == nil || r.db == nil {
		return errors.New("statistics repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO production_stats (station_id, date, total_products, defect_products, downtime_minutes, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (station_id, date)
DO UPDATE SET
	total_products = EXCLUDED.total_products,
	defect_products = EXCLUDED.defect_products,
	downtime_minutes = EXCLUDED.downtime_minutes,
	updated_at = EXCLUDED.updated_at`,
		rec.StationID,
		dateOnly(rec.Date),
		rec.TotalProducts,
		rec.DefectProducts,
		rec.DowntimeMinutes,
	)
	return err
}

// dateOnly keeps the calendar date of t as seen in its own location.
func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
