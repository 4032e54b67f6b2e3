package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alerts "andon-board/internal/alerts/domain"
	stations "andon-board/internal/stations/domain"
)

const selectAlerts = `
SELECT a.id, a.station_id, s.name, s.code, a.alert_type, a.severity, a.message, a.status,
	a.acknowledged_by, a.acknowledged_at, a.resolved_by, a.resolved_at, a.created_at
FROM alerts a
JOIN stations s ON s.id = a.station_id`

// Repository persists alerts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new alert.
func (r *Repository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (id, station_id, alert_type, severity, message, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.ID,
		alert.StationID,
		alert.AlertType,
		string(alert.Severity),
		alert.Message,
		string(alert.Status),
		alert.CreatedAt,
	)
	return err
}

// Get returns nil, nil when the alert does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectAlerts+` WHERE a.id = $1`, id)
	if err != nil {
		return nil, err
	}
	list, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// List returns alerts newest first.
func (r *Repository) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.StationID != "" {
		args = append(args, filter.StationID)
		where = append(where, fmt.Sprintf("a.station_id = $%d", len(args)))
	}
	query := selectAlerts
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// Transition updates status and handler fields when the stored status is
// one of from.
func (r *Repository) Transition(ctx context.Context, alert *alerts.Alert, from []alerts.Status) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alert repo: nil db")
	}
	if alert == nil || len(from) == 0 {
		return false, errors.New("alert repo: nothing to transition")
	}
	args := []any{
		alert.ID,
		string(alert.Status),
		nullString(alert.AcknowledgedBy),
		nullTime(alert.AcknowledgedAt),
		nullString(alert.ResolvedBy),
		nullTime(alert.ResolvedAt),
	}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $2,
	acknowledged_by = $3,
	acknowledged_at = $4,
	resolved_by = $5,
	resolved_at = $6
WHERE id = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Statistics counts alerts created since the given time, grouped by severity.
func (r *Repository) Statistics(ctx context.Context, since time.Time) ([]alerts.SeverityStats, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT severity,
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'active'),
	COUNT(*) FILTER (WHERE status = 'resolved')
FROM alerts
WHERE created_at >= $1
GROUP BY severity
ORDER BY severity`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.SeverityStats
	for rows.Next() {
		var (
			st       alerts.SeverityStats
			severity string
		)
		if err := rows.Scan(&severity, &st.Count, &st.ActiveCount, &st.ResolvedCount); err != nil {
			return nil, err
		}
		st.Severity = alerts.Severity(severity)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ActiveByStation counts active alerts per station.
func (r *Repository) ActiveByStation(ctx context.Context) (map[string]stations.AlertSummary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT station_id, COUNT(*), MAX(created_at)
FROM alerts
WHERE status = 'active'
GROUP BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]stations.AlertSummary)
	for rows.Next() {
		var (
			stationID string
			sum       stations.AlertSummary
			last      sql.NullTime
		)
		if err := rows.Scan(&stationID, &sum.ActiveAlerts, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time.UTC()
			sum.LastAlertTime = &t
		}
		out[stationID] = sum
	}
	return out, rows.Err()
}

func scanAlerts(rows *sql.Rows) ([]alerts.Alert, error) {
	defer rows.Close()
	var out []alerts.Alert
	for rows.Next() {
		var (
			a              alerts.Alert
			severity       string
			status         string
			acknowledgedBy sql.NullString
			acknowledgedAt sql.NullTime
			resolvedBy     sql.NullString
			resolvedAt     sql.NullTime
		)
		if err := rows.Scan(
			&a.ID,
			&a.StationID,
			&a.StationName,
			&a.StationCode,
			&a.AlertType,
			&severity,
			&a.Message,
			&status,
			&acknowledgedBy,
			&acknowledgedAt,
			&resolvedBy,
			&resolvedAt,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.Severity = alerts.Severity(severity)
		a.Status = alerts.Status(status)
		a.AcknowledgedBy = acknowledgedBy.String
		a.ResolvedBy = resolvedBy.String
		if acknowledgedAt.Valid {
			t := acknowledgedAt.Time.UTC()
			a.AcknowledgedAt = &t
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			a.ResolvedAt = &t
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
