package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	stations "andon-board/internal/stations/domain"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by queries.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is a Postgres implementation of the station store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const stationColumns = `id, name, code, description, zone, status, last_updated, created_at`

// ListStations returns stations ordered by id.
func (r *Repository) ListStations(ctx context.Context) ([]stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	return queryStations(ctx, r.db, `SELECT `+stationColumns+` FROM stations ORDER BY id`)
}

// ListNonNormal returns stations whose status is not normal.
func (r *Repository) ListNonNormal(ctx context.Context) ([]stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	return queryStations(ctx, r.db, `SELECT `+stationColumns+` FROM stations WHERE status <> 'normal' ORDER BY id`)
}

// GetStation loads a station by id, nil when absent.
func (r *Repository) GetStation(ctx context.Context, id string) (*stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
	return scanStation(row)
}

// CreateStation inserts a new station.
func (r *Repository) CreateStation(ctx context.Context, station *stations.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO stations (id, name, code, description, zone, status, last_updated, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
		station.ID, station.Name, station.Code, station.Description, station.Zone,
		string(station.Status), station.LastUpdated, station.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stations.ErrStationExists
	}
	return nil
}

// UpsertStation inserts or refreshes catalogue fields. Status and
// last_updated of an existing row are left alone.
func (r *Repository) UpsertStation(ctx context.Context, station *stations.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO stations (id, name, code, description, zone, status, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	code = EXCLUDED.code,
	description = EXCLUDED.description,
	zone = EXCLUDED.zone`,
		station.ID, station.Name, station.Code, station.Description, station.Zone,
		string(station.Status), station.LastUpdated)
	return err
}

// DeleteStation removes a station.
func (r *Repository) DeleteStation(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stations.ErrStationNotFound
	}
	return nil
}

// AppendLog appends an audit row outside a status transaction.
func (r *Repository) AppendLog(ctx context.Context, entry *stations.StatusLogEntry) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	return appendLog(ctx, r.db, entry)
}

// ListStatusLog returns change points for one station within [from, to).
func (r *Repository) ListStatusLog(ctx context.Context, stationID string, from, to time.Time) ([]stations.StatusPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT time, new_status
FROM logs
WHERE station_id = $1
	AND event_type IN ('change_status', 'reset_all')
	AND new_status IS NOT NULL
	AND time >= $2 AND time < $3
ORDER BY time ASC, id ASC`, stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stations.StatusPoint
	for rows.Next() {
		var p stations.StatusPoint
		var status string
		if err := rows.Scan(&p.Time, &status); err != nil {
			return nil, err
		}
		p.NewStatus = stations.Status(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// WithinTx runs fn inside a read-committed transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx stations.StatusTx) error) (err error) {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(&statusTx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type statusTx struct {
	tx *sql.Tx
}

// LockStation takes a row lock held until commit or rollback.
func (t *statusTx) LockStation(ctx context.Context, id string) (*stations.Station, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1 FOR UPDATE`, id)
	return scanStation(row)
}

func (t *statusTx) UpdateStatus(ctx context.Context, id string, status stations.Status, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE stations
SET status = $1, last_updated = GREATEST(last_updated, $2)
WHERE id = $3`, string(status), at, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return stations.ErrStationNotFound
	}
	return nil
}

func (t *statusTx) AppendLog(ctx context.Context, entry *stations.StatusLogEntry) error {
	return appendLog(ctx, t.tx, entry)
}

func appendLog(ctx context.Context, db DBTX, entry *stations.StatusLogEntry) error {
	if entry == nil {
		return errors.New("station repo: nil log entry")
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	return db.QueryRowContext(ctx, `
INSERT INTO logs (event_type, source, station_id, old_status, new_status, time)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		string(entry.EventType),
		entry.Source,
		nullableString(entry.StationID),
		nullableStatus(entry.OldStatus),
		nullableStatus(entry.NewStatus),
		entry.Time,
	).Scan(&entry.ID)
}

type stationScanner interface {
	Scan(dest ...any) error
}

func scanStation(row stationScanner) (*stations.Station, error) {
	var st stations.Station
	var status string
	if err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Code,
		&st.Description,
		&st.Zone,
		&status,
		&st.LastUpdated,
		&st.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	st.Status = stations.Status(status)
	st.LastUpdated = st.LastUpdated.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func queryStations(ctx context.Context, db DBTX, query string, args ...any) ([]stations.Station, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stations.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullableStatus(value *stations.Status) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*value), Valid: true}
}
