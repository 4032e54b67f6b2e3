package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"andon-board/internal/logging"
	"andon-board/internal/observability/metrics"
	stations "andon-board/internal/stations/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service owns every station status mutation.
type Service struct {
	repo     stations.Repository
	locks    *keyedMutex
	clock    Clock
	location *time.Location
	logger   zerolog.Logger
}

// ServiceOption customizes the station service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the factory timezone used for day boundaries.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a station service.
func NewService(repo stations.Repository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("stations: nil repository")
	}
	s := &Service{
		repo:     repo,
		locks:    newKeyedMutex(),
		clock:    systemClock{},
		location: time.UTC,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Location returns the factory timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

// ApplyStatusChange validates, persists and logs one station transition.
// onCommit, when set, runs after the commit while the station lock is still
// held, so callbacks for one station observe commit order.
func (s *Service) ApplyStatusChange(ctx context.Context, stationID, requested, source string, onCommit CommitFunc) (stations.Transition, error) {
	status, err := stations.ParseStatus(requested)
	if err != nil {
		return stations.Transition{}, err
	}
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return stations.Transition{}, stations.ErrStationNotFound
	}
	if source == "" {
		source = stations.SourceServer
	}

	unlock := s.locks.Lock(stationID)
	defer unlock()

	var tr stations.Transition
	err = s.repo.WithinTx(ctx, func(tx stations.StatusTx) error {
		current, err := tx.LockStation(ctx, stationID)
		if err != nil {
			return fmt.Errorf("lock station: %w", err)
		}
		if current == nil {
			return stations.ErrStationNotFound
		}
		at := s.clock.Now().UTC()
		if at.Before(current.LastUpdated) {
			at = current.LastUpdated
		}
		if err := tx.UpdateStatus(ctx, stationID, status, at); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		entry := stations.NewChangeEntry(stationID, current.Status, status, source, at)
		if err := tx.AppendLog(ctx, entry); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		tr = stations.Transition{
			StationID: stationID,
			Name:      current.Name,
			Code:      current.Code,
			OldStatus: current.Status,
			NewStatus: status,
			Source:    source,
			Timestamp: at,
			Seq:       entry.ID,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, stations.ErrStationNotFound) {
			return stations.Transition{}, err
		}
		logger := logging.WithStation(s.logger, stationID)
		logger.Error().Err(err).Str("status", string(status)).Msg("status change failed")
		return stations.Transition{}, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}

	metrics.IncStatusTransition(string(status), source)
	s.logger.Info().
		Str("station_id", stationID).
		Str("old_status", string(tr.OldStatus)).
		Str("status", string(tr.NewStatus)).
		Str("source", source).
		Int64("seq", tr.Seq).
		Msg("station status changed")

	if onCommit != nil {
		onCommit(ctx, tr)
	}
	return tr, nil
}

// ResetAllToNormal sets every non-normal station back to normal. It is best
// effort: a failing station is recorded in Failed and the rest proceed.
// A clear_all summary row is appended once all stations were attempted.
func (s *Service) ResetAllToNormal(ctx context.Context, source string, onCommit CommitFunc) (stations.ResetResult, error) {
	if source == "" {
		source = stations.SourceServer
	}
	result := stations.ResetResult{Failed: make(map[string]error)}

	snapshot, err := s.repo.ListNonNormal(ctx)
	if err != nil {
		metrics.IncResetAll(metrics.ResultError)
		return result, fmt.Errorf("%w: list non-normal stations: %w", stations.ErrPersistence, err)
	}

	for _, st := range snapshot {
		tr, err := s.ApplyStatusChange(ctx, st.ID, string(stations.StatusNormal), source, onCommit)
		if err != nil {
			result.Failed[st.ID] = err
			s.logger.Warn().Err(err).Str("station_id", st.ID).Msg("reset station failed")
			continue
		}
		result.Transitions = append(result.Transitions, tr)
		if tr.OldStatus != stations.StatusNormal {
			result.ResetCount++
		}
	}

	result.Timestamp = s.clock.Now().UTC()
	if err := s.repo.AppendLog(ctx, stations.NewSummaryEntry(stations.EventClearAll, source, result.Timestamp)); err != nil {
		metrics.IncResetAll(metrics.ResultError)
		return result, fmt.Errorf("%w: append summary: %w", stations.ErrPersistence, err)
	}

	switch {
	case len(result.Failed) > 0:
		metrics.IncResetAll(metrics.ResultPartial)
	default:
		metrics.IncResetAll(metrics.ResultSuccess)
	}
	s.logger.Info().
		Int("reset_count", result.ResetCount).
		Int("failed", len(result.Failed)).
		Str("source", source).
		Msg("stations reset to normal")
	return result, nil
}

// ListStations returns all stations ordered by id.
func (s *Service) ListStations(ctx context.Context) ([]stations.Station, error) {
	list, err := s.repo.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}
	return list, nil
}

// GetStation loads one station.
func (s *Service) GetStation(ctx context.Context, id string) (*stations.Station, error) {
	st, err := s.repo.GetStation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}
	if st == nil {
		return nil, stations.ErrStationNotFound
	}
	return st, nil
}

// CreateStationInput carries the admin "add station" fields.
type CreateStationInput struct {
	Name        string
	Code        string
	Description string
	Zone        string
}

// CreateStation registers a new station in normal status. The code doubles
// as the station id.
func (s *Service) CreateStation(ctx context.Context, in CreateStationInput) (*stations.Station, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if in.Name == "" || in.Code == "" {
		return nil, errors.New("station: name and code are required")
	}
	now := s.clock.Now().UTC()
	st := &stations.Station{
		ID:          in.Code,
		Name:        in.Name,
		Code:        in.Code,
		Description: in.Description,
		Zone:        in.Zone,
		Status:      stations.StatusNormal,
		LastUpdated: now,
		CreatedAt:   now,
	}
	if err := s.repo.CreateStation(ctx, st); err != nil {
		if errors.Is(err, stations.ErrStationExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}
	s.logger.Info().Str("station_id", st.ID).Msg("station created")
	return st, nil
}

// DeleteStation removes a station. Its log rows are kept.
func (s *Service) DeleteStation(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.repo.DeleteStation(ctx, id); err != nil {
		if errors.Is(err, stations.ErrStationNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}
	s.logger.Info().Str("station_id", id).Msg("station deleted")
	return nil
}

// ImportStations upserts catalogue entries. Existing rows keep their status.
func (s *Service) ImportStations(ctx context.Context, list []stations.Station) (int, error) {
	now := s.clock.Now().UTC()
	imported := 0
	for i := range list {
		st := list[i]
		if st.ID == "" {
			st.ID = st.Code
		}
		if st.Code == "" {
			st.Code = st.ID
		}
		if st.Status == "" {
			st.Status = stations.StatusNormal
		}
		if st.LastUpdated.IsZero() {
			st.LastUpdated = now
		}
		if err := st.Validate(); err != nil {
			return imported, fmt.Errorf("station %q: %w", st.ID, err)
		}
		if err := s.repo.UpsertStation(ctx, &st); err != nil {
			return imported, fmt.Errorf("%w: upsert %s: %w", stations.ErrPersistence, st.ID, err)
		}
		imported++
	}
	return imported, nil
}

// ZoneGroup is a zone with its stations in id order.
type ZoneGroup struct {
	Zone     string             `json:"zone"`
	Stations []stations.Station `json:"stations"`
}

// GroupByZone groups stations by zone, preserving first-seen zone order.
func GroupByZone(list []stations.Station) []ZoneGroup {
	index := make(map[string]int)
	var groups []ZoneGroup
	for _, st := range list {
		i, ok := index[st.Zone]
		if !ok {
			i = len(groups)
			index[st.Zone] = i
			groups = append(groups, ZoneGroup{Zone: st.Zone})
		}
		groups[i].Stations = append(groups[i].Stations, st)
	}
	return groups
}

// DayBounds returns [start, end) of the given calendar day in the factory
// timezone.
func (s *Service) DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.location)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses a YYYY-MM-DD date in the factory timezone.
func (s *Service) ParseDay(raw string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return day, nil
}

// StatusLog returns the day's change_status points in ascending order.
func (s *Service) StatusLog(ctx context.Context, stationID string, day time.Time) ([]stations.StatusPoint, error) {
	from, to := s.DayBounds(day)
	points, err := s.repo.ListStatusLog(ctx, stationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// Timeline reconstructs one station's day.
func (s *Service) Timeline(ctx context.Context, stationID string, day time.Time) (stations.Timeline, error) {
	if _, err := s.GetStation(ctx, stationID); err != nil {
		return stations.Timeline{}, err
	}
	points, err := s.StatusLog(ctx, stationID, day)
	if err != nil {
		return stations.Timeline{}, err
	}
	from, to := s.DayBounds(day)
	return stations.BuildTimeline(stationID, from, to, points, s.clock.Now().In(s.location)), nil
}

// Timelines reconstructs the day for every station, ordered by id.
func (s *Service) Timelines(ctx context.Context, day time.Time) ([]stations.Station, []stations.Timeline, error) {
	list, err := s.ListStations(ctx)
	if err != nil {
		return nil, nil, err
	}
	from, to := s.DayBounds(day)
	now := s.clock.Now().In(s.location)
	out := make([]stations.Timeline, 0, len(list))
	for _, st := range list {
		points, err := s.repo.ListStatusLog(ctx, st.ID, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", stations.ErrPersistence, err)
		}
		out = append(out, stations.BuildTimeline(st.ID, from, to, points, now))
	}
	return list, out, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
