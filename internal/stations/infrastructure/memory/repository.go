package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	stations "andon-board/internal/stations/domain"
)

// Operation names passed to a FaultFunc.
const (
	OpLock          = "lock"
	OpUpdate        = "update"
	OpAppendLog     = "append_log"
	OpCommit        = "commit"
	OpListNonNormal = "list_non_normal"
	OpAppendSummary = "append_summary"
)

// FaultFunc lets tests inject store failures. stationID is empty for
// operations that are not station scoped.
type FaultFunc func(op, stationID string) error

// Repository is an in-memory station store for demo/testing. Transactions
// are serialised and staged; nothing is visible until commit.
type Repository struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	stations map[string]stations.Station
	logs     []stations.StatusLogEntry
	nextID   int64
	fault    FaultFunc
}

// NewRepository constructs a repository seeded with the given stations.
func NewRepository(seed ...stations.Station) *Repository {
	r := &Repository{stations: make(map[string]stations.Station)}
	for _, st := range seed {
		r.stations[st.ID] = st
	}
	return r
}

// SetFault installs a fault hook; nil clears it.
func (r *Repository) SetFault(fn FaultFunc) {
	r.mu.Lock()
	r.fault = fn
	r.mu.Unlock()
}

func (r *Repository) check(op, stationID string) error {
	r.mu.RLock()
	fn := r.fault
	r.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op, stationID)
}

// ListStations returns stations ordered by id.
func (r *Repository) ListStations(_ context.Context) ([]stations.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(stations.Station) bool { return true }), nil
}

// GetStation returns nil when absent.
func (r *Repository) GetStation(_ context.Context, id string) (*stations.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// ListNonNormal returns stations whose status is not normal.
func (r *Repository) ListNonNormal(_ context.Context) ([]stations.Station, error) {
	if err := r.check(OpListNonNormal, ""); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(st stations.Station) bool { return st.Status != stations.StatusNormal }), nil
}

// CreateStation inserts a new station.
func (r *Repository) CreateStation(_ context.Context, station *stations.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[station.ID]; ok {
		return stations.ErrStationExists
	}
	r.stations[station.ID] = *station
	return nil
}

// UpsertStation inserts or updates catalogue fields, keeping status.
func (r *Repository) UpsertStation(_ context.Context, station *stations.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.stations[station.ID]; ok {
		existing.Name = station.Name
		existing.Code = station.Code
		existing.Description = station.Description
		existing.Zone = station.Zone
		r.stations[station.ID] = existing
		return nil
	}
	r.stations[station.ID] = *station
	return nil
}

// DeleteStation removes a station; log rows lose their station reference
// the way ON DELETE SET NULL does.
func (r *Repository) DeleteStation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[id]; !ok {
		return stations.ErrStationNotFound
	}
	delete(r.stations, id)
	for i := range r.logs {
		if r.logs[i].StationID != nil && *r.logs[i].StationID == id {
			r.logs[i].StationID = nil
		}
	}
	return nil
}

// AppendLog appends an entry outside of a status transaction.
func (r *Repository) AppendLog(_ context.Context, entry *stations.StatusLogEntry) error {
	if err := r.check(OpAppendSummary, ""); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(entry)
	return nil
}

// ListStatusLog returns change points within [from, to).
func (r *Repository) ListStatusLog(_ context.Context, stationID string, from, to time.Time) ([]stations.StatusPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []stations.StatusPoint
	for _, e := range r.logs {
		if e.StationID == nil || *e.StationID != stationID || e.NewStatus == nil {
			continue
		}
		if e.EventType != stations.EventChangeStatus && e.EventType != stations.EventResetAll {
			continue
		}
		if e.Time.Before(from) || !e.Time.Before(to) {
			continue
		}
		out = append(out, stations.StatusPoint{Time: e.Time, NewStatus: *e.NewStatus})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Logs returns a copy of the full audit log in append order.
func (r *Repository) Logs() []stations.StatusLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stations.StatusLogEntry, len(r.logs))
	copy(out, r.logs)
	return out
}

// WithinTx runs fn in a serialised transaction. Staged writes are applied
// only when fn and the commit hook both succeed.
func (r *Repository) WithinTx(_ context.Context, fn func(tx stations.StatusTx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memTx{repo: r, updates: make(map[string]stations.Station)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := r.check(OpCommit, tx.stationID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, st := range tx.updates {
		if _, ok := r.stations[id]; ok {
			r.stations[id] = st
		}
	}
	r.logs = append(r.logs, tx.logs...)
	return nil
}

func (r *Repository) appendLocked(entry *stations.StatusLogEntry) {
	r.nextID++
	entry.ID = r.nextID
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	r.logs = append(r.logs, *entry)
}

func (r *Repository) sortedLocked(keep func(stations.Station) bool) []stations.Station {
	out := make([]stations.Station, 0, len(r.stations))
	for _, st := range r.stations {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTx struct {
	repo      *Repository
	stationID string
	updates   map[string]stations.Station
	logs      []stations.StatusLogEntry
}

func (t *memTx) LockStation(ctx context.Context, id string) (*stations.Station, error) {
	t.stationID = id
	if err := t.repo.check(OpLock, id); err != nil {
		return nil, err
	}
	if st, ok := t.updates[id]; ok {
		return &st, nil
	}
	return t.repo.GetStation(ctx, id)
}

func (t *memTx) UpdateStatus(ctx context.Context, id string, status stations.Status, at time.Time) error {
	if err := t.repo.check(OpUpdate, id); err != nil {
		return err
	}
	st, ok := t.updates[id]
	if !ok {
		current, err := t.repo.GetStation(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return stations.ErrStationNotFound
		}
		st = *current
	}
	st.Status = status
	st.LastUpdated = at
	t.updates[id] = st
	return nil
}

func (t *memTx) AppendLog(_ context.Context, entry *stations.StatusLogEntry) error {
	stationID := ""
	if entry.StationID != nil {
		stationID = *entry.StationID
	}
	if err := t.repo.check(OpAppendLog, stationID); err != nil {
		return err
	}
	t.repo.mu.Lock()
	t.repo.nextID++
	entry.ID = t.repo.nextID
	t.repo.mu.Unlock()
	t.logs = append(t.logs, *entry)
	return nil
}

