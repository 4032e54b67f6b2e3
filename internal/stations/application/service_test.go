package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andon-board/internal/stations/application"
	stations "andon-board/internal/stations/domain"
	"andon-board/internal/stations/infrastructure/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func seedStation(id string, status stations.Status) stations.Station {
	return stations.Station{
		ID:          id,
		Name:        "Station " + id,
		Code:        id,
		Zone:        "Paint",
		Status:      status,
		LastUpdated: epoch.Add(-time.Hour),
	}
}

func newService(t *testing.T, seed ...stations.Station) (*application.Service, *memory.Repository, *fakeClock) {
	t.Helper()
	repo := memory.NewRepository(seed...)
	clock := &fakeClock{now: epoch}
	svc, err := application.NewService(repo, application.WithClock(clock))
	require.NoError(t, err)
	return svc, repo, clock
}

func TestApplyStatusChangeRejectsInvalidStatus(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusWarning))
	called := false

	_, err := svc.ApplyStatusChange(context.Background(), "S1", "bogus", "test", func(context.Context, stations.Transition) { called = true })

	require.ErrorIs(t, err, stations.ErrInvalidStatus)
	assert.False(t, called)
	assert.Empty(t, repo.Logs())
	st, _ := repo.GetStation(context.Background(), "S1")
	assert.Equal(t, stations.StatusWarning, st.Status)
}

func TestApplyStatusChangeHappyPath(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusWarning))
	var committed []stations.Transition

	tr, err := svc.ApplyStatusChange(context.Background(), "S1", "normal", "test", func(_ context.Context, t stations.Transition) {
		committed = append(committed, t)
	})

	require.NoError(t, err)
	assert.Equal(t, stations.StatusWarning, tr.OldStatus)
	assert.Equal(t, stations.StatusNormal, tr.NewStatus)
	assert.Equal(t, "Station S1", tr.Name)
	require.Len(t, committed, 1)
	assert.Equal(t, tr, committed[0])

	st, _ := repo.GetStation(context.Background(), "S1")
	assert.Equal(t, stations.StatusNormal, st.Status)
	assert.True(t, st.LastUpdated.After(epoch.Add(-time.Hour)))

	logs := repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, stations.EventChangeStatus, logs[0].EventType)
	assert.Equal(t, "test", logs[0].Source)
	assert.Equal(t, stations.StatusWarning, *logs[0].OldStatus)
	assert.Equal(t, stations.StatusNormal, *logs[0].NewStatus)
	assert.Equal(t, logs[0].ID, tr.Seq)
}

func TestApplyStatusChangeNoOpIsLogged(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusNormal))

	tr, err := svc.ApplyStatusChange(context.Background(), "S1", "normal", "test", nil)

	require.NoError(t, err)
	assert.Equal(t, stations.StatusNormal, tr.OldStatus)
	logs := repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, stations.StatusNormal, *logs[0].OldStatus)
	assert.Equal(t, stations.StatusNormal, *logs[0].NewStatus)
}

func TestApplyStatusChangeUnknownStation(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusNormal))

	_, err := svc.ApplyStatusChange(context.Background(), "no-such-id", "normal", "test", nil)

	require.ErrorIs(t, err, stations.ErrStationNotFound)
	assert.Empty(t, repo.Logs())
}

func TestApplyStatusChangeDefaultsSource(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusNormal))

	_, err := svc.ApplyStatusChange(context.Background(), "S1", "error", "", nil)

	require.NoError(t, err)
	assert.Equal(t, stations.SourceServer, repo.Logs()[0].Source)
}

func TestApplyStatusChangeRollsBackOnStoreFailure(t *testing.T) {
	for _, op := range []string{memory.OpLock, memory.OpUpdate, memory.OpAppendLog, memory.OpCommit} {
		t.Run(op, func(t *testing.T) {
			svc, repo, _ := newService(t, seedStation("S1", stations.StatusWarning))
			repo.SetFault(func(got, _ string) error {
				if got == op {
					return errors.New("disk on fire")
				}
				return nil
			})
			called := false

			_, err := svc.ApplyStatusChange(context.Background(), "S1", "error", "test", func(context.Context, stations.Transition) { called = true })

			require.ErrorIs(t, err, stations.ErrPersistence)
			assert.False(t, called)
			assert.Empty(t, repo.Logs())
			st, _ := repo.GetStation(context.Background(), "S1")
			assert.Equal(t, stations.StatusWarning, st.Status)
		})
	}
}

func TestApplyStatusChangeFailureLogsStation(t *testing.T) {
	var buf bytes.Buffer
	repo := memory.NewRepository(seedStation("S7", stations.StatusNormal))
	repo.SetFault(func(op, _ string) error {
		if op == memory.OpUpdate {
			return errors.New("connection reset")
		}
		return nil
	})
	svc, err := application.NewService(repo,
		application.WithClock(&fakeClock{now: epoch}),
		application.WithLogger(zerolog.New(&buf)),
	)
	require.NoError(t, err)

	_, err = svc.ApplyStatusChange(context.Background(), "S7", "maintenance", "test", nil)

	require.ErrorIs(t, err, stations.ErrPersistence)
	assert.Contains(t, buf.String(), `"station_id":"S7"`)
	assert.Contains(t, buf.String(), `"status":"maintenance"`)
	assert.Contains(t, buf.String(), "status change failed")
}

func TestApplyStatusChangeLastUpdatedNeverDecreases(t *testing.T) {
	seed := seedStation("S1", stations.StatusNormal)
	seed.LastUpdated = epoch.Add(time.Hour)
	svc, repo, _ := newService(t, seed)

	_, err := svc.ApplyStatusChange(context.Background(), "S1", "warning", "test", nil)

	require.NoError(t, err)
	st, _ := repo.GetStation(context.Background(), "S1")
	assert.Equal(t, epoch.Add(time.Hour), st.LastUpdated)
}

func TestResetAllToNormal(t *testing.T) {
	svc, repo, _ := newService(t,
		seedStation("A", stations.StatusWarning),
		seedStation("B", stations.StatusError),
		seedStation("C", stations.StatusNormal),
	)
	var committed []string

	result, err := svc.ResetAllToNormal(context.Background(), "test", func(_ context.Context, t stations.Transition) {
		committed = append(committed, t.StationID)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.ResetCount)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []string{"A", "B"}, committed)

	list, _ := repo.ListStations(context.Background())
	for _, st := range list {
		assert.Equal(t, stations.StatusNormal, st.Status, st.ID)
	}

	logs := repo.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, stations.EventChangeStatus, logs[0].EventType)
	assert.Equal(t, "A", *logs[0].StationID)
	assert.Equal(t, stations.StatusWarning, *logs[0].OldStatus)
	assert.Equal(t, stations.EventChangeStatus, logs[1].EventType)
	assert.Equal(t, stations.StatusError, *logs[1].OldStatus)
	assert.Equal(t, stations.EventClearAll, logs[2].EventType)
	assert.Nil(t, logs[2].StationID)
	for _, e := range logs {
		if e.StationID != nil {
			assert.NotEqual(t, "C", *e.StationID)
		}
	}
}

func TestResetAllToNormalContinuesPastFailures(t *testing.T) {
	svc, repo, _ := newService(t,
		seedStation("A", stations.StatusWarning),
		seedStation("B", stations.StatusError),
		seedStation("C", stations.StatusMaintenance),
	)
	repo.SetFault(func(op, stationID string) error {
		if op == memory.OpUpdate && stationID == "B" {
			return errors.New("lock timeout")
		}
		return nil
	})

	result, err := svc.ResetAllToNormal(context.Background(), "test", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.ResetCount)
	require.Contains(t, result.Failed, "B")
	assert.ErrorIs(t, result.Failed["B"], stations.ErrPersistence)

	b, _ := repo.GetStation(context.Background(), "B")
	assert.Equal(t, stations.StatusError, b.Status)
	logs := repo.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, stations.EventClearAll, logs[2].EventType)
}

func TestResetAllToNormalSnapshotFailure(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("A", stations.StatusWarning))
	repo.SetFault(func(op, _ string) error {
		if op == memory.OpListNonNormal {
			return errors.New("connection refused")
		}
		return nil
	})

	_, err := svc.ResetAllToNormal(context.Background(), "test", nil)

	require.ErrorIs(t, err, stations.ErrPersistence)
	assert.Empty(t, repo.Logs())
}

func TestResetAllToNormalNothingToDo(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("A", stations.StatusNormal))

	result, err := svc.ResetAllToNormal(context.Background(), "", nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.ResetCount)
	logs := repo.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, stations.EventClearAll, logs[0].EventType)
	assert.Equal(t, stations.SourceServer, logs[0].Source)
}

func TestPerStationOrderingUnderConcurrentLoad(t *testing.T) {
	seed := []stations.Station{seedStation("S1", stations.StatusNormal)}
	for i := 0; i < 8; i++ {
		seed = append(seed, seedStation(fmt.Sprintf("X%d", i), stations.StatusNormal))
	}
	svc, repo, _ := newService(t, seed...)

	var mu sync.Mutex
	var broadcast []stations.Status
	onCommit := func(_ context.Context, tr stations.Transition) {
		if tr.StationID != "S1" {
			return
		}
		mu.Lock()
		broadcast = append(broadcast, tr.NewStatus)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = svc.ApplyStatusChange(context.Background(), id, "error", "noise", onCommit)
			}
		}(fmt.Sprintf("X%d", i))
	}

	for round := 0; round < 20; round++ {
		_, err := svc.ApplyStatusChange(context.Background(), "S1", "warning", "test", onCommit)
		require.NoError(t, err)
		_, err = svc.ApplyStatusChange(context.Background(), "S1", "error", "test", onCommit)
		require.NoError(t, err)
	}
	wg.Wait()

	require.Len(t, broadcast, 40)
	for i := 0; i < len(broadcast); i += 2 {
		assert.Equal(t, stations.StatusWarning, broadcast[i])
		assert.Equal(t, stations.StatusError, broadcast[i+1])
	}

	var logged []stations.Status
	var lastSeq int64
	for _, e := range repo.Logs() {
		if e.StationID == nil || *e.StationID != "S1" {
			continue
		}
		assert.Greater(t, e.ID, lastSeq)
		lastSeq = e.ID
		logged = append(logged, *e.NewStatus)
	}
	assert.Equal(t, broadcast, logged)
}

func TestCreateAndDeleteStation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	st, err := svc.CreateStation(ctx, application.CreateStationInput{Name: "Edge banding", Code: "C4", Zone: "Carcass"})
	require.NoError(t, err)
	assert.Equal(t, "C4", st.ID)
	assert.Equal(t, stations.StatusNormal, st.Status)

	_, err = svc.CreateStation(ctx, application.CreateStationInput{Name: "dup", Code: "C4"})
	assert.ErrorIs(t, err, stations.ErrStationExists)

	_, err = svc.CreateStation(ctx, application.CreateStationInput{Name: "", Code: "C5"})
	assert.Error(t, err)

	require.NoError(t, svc.DeleteStation(ctx, "C4"))
	assert.ErrorIs(t, svc.DeleteStation(ctx, "C4"), stations.ErrStationNotFound)
	_, err = svc.GetStation(ctx, "C4")
	assert.ErrorIs(t, err, stations.ErrStationNotFound)
}

func TestImportStationsKeepsStatus(t *testing.T) {
	svc, repo, _ := newService(t, seedStation("S1", stations.StatusError))

	n, err := svc.ImportStations(context.Background(), []stations.Station{
		{ID: "S1", Name: "Hanging line", Zone: "Paint"},
		{Code: "S2", Name: "UV board", Zone: "Paint"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	s1, _ := repo.GetStation(context.Background(), "S1")
	assert.Equal(t, stations.StatusError, s1.Status)
	assert.Equal(t, "Hanging line", s1.Name)
	s2, _ := repo.GetStation(context.Background(), "S2")
	require.NotNil(t, s2)
	assert.Equal(t, stations.StatusNormal, s2.Status)
}

func TestStatusLogAndTimelineUseFactoryDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	seed := seedStation("S1", stations.StatusNormal)
	seed.LastUpdated = time.Time{}
	repo := memory.NewRepository(seed)
	clock := &fakeClock{now: time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)} // 08:00 local
	svc, err := application.NewService(repo, application.WithClock(clock), application.WithLocation(loc))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.ApplyStatusChange(ctx, "S1", "warning", "test", nil)
	require.NoError(t, err)
	clock.Advance(90 * time.Minute)
	_, err = svc.ApplyStatusChange(ctx, "S1", "normal", "test", nil)
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	day, err := svc.ParseDay("2026-03-02")
	require.NoError(t, err)
	points, err := svc.StatusLog(ctx, "S1", day)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, stations.StatusWarning, points[0].NewStatus)

	tl, err := svc.Timeline(ctx, "S1", day)
	require.NoError(t, err)
	require.Len(t, tl.Segments, 3)
	assert.Equal(t, 8, tl.Segments[1].Start.In(loc).Hour())
	assert.Equal(t, int64(90*60), tl.Seconds["warning"])

	other, err := svc.ParseDay("2026-03-01")
	require.NoError(t, err)
	points, err = svc.StatusLog(ctx, "S1", other)
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = svc.ParseDay("03/02/2026")
	assert.Error(t, err)
}

func TestGroupByZone(t *testing.T) {
	groups := application.GroupByZone([]stations.Station{
		{ID: "C1", Zone: "Carcass"},
		{ID: "P1", Zone: "Packing"},
		{ID: "C2", Zone: "Carcass"},
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "Carcass", groups[0].Zone)
	assert.Len(t, groups[0].Stations, 2)
	assert.Equal(t, "Packing", groups[1].Zone)
}
