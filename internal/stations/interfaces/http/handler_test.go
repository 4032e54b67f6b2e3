package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andon-board/internal/audit"
	"andon-board/internal/export"
	stationapp "andon-board/internal/stations/application"
	stations "andon-board/internal/stations/domain"
	"andon-board/internal/stations/infrastructure/memory"
	stationhttp "andon-board/internal/stations/interfaces/http"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []stationapp.StationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event stationapp.StationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type stubAlerts struct {
	summaries map[string]stations.AlertSummary
	err       error
}

func (s stubAlerts) ActiveByStation(context.Context) (map[string]stations.AlertSummary, error) {
	return s.summaries, s.err
}

type auditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (l *auditLog) Log(_ context.Context, e audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *auditLog) all() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Entry(nil), l.entries...)
}

type fixture struct {
	server   *httptest.Server
	repo     *memory.Repository
	notifier *recordingNotifier
	audits   *auditLog
	handler  *stationhttp.Handler
}

func newFixture(t *testing.T, alerts stationhttp.AlertSummaries) fixture {
	t.Helper()
	repo := memory.NewRepository(
		stations.Station{ID: "S1", Name: "Paint 1", Code: "S1", Zone: "Paint", Status: stations.StatusWarning, LastUpdated: now.Add(-time.Hour)},
		stations.Station{ID: "S2", Name: "Paint 2", Code: "S2", Zone: "Paint", Status: stations.StatusNormal, LastUpdated: now.Add(-time.Hour)},
		stations.Station{ID: "C1", Name: "Carcass 1", Code: "C1", Zone: "Carcass", Status: stations.StatusError, LastUpdated: now.Add(-time.Hour)},
	)
	svc, err := stationapp.NewService(repo, stationapp.WithClock(fixedClock{now: now}))
	require.NoError(t, err)

	audits := &auditLog{}
	recorder := audit.NewRecorder(audits, zerolog.Nop())

	notifier := &recordingNotifier{}
	opts := []stationhttp.HandlerOption{
		stationhttp.WithNotifier(notifier),
		stationhttp.WithAuditRecorder(recorder),
	}
	if alerts != nil {
		opts = append(opts, stationhttp.WithAlertSummaries(alerts))
	}
	h, err := stationhttp.NewHandler(svc, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return fixture{server: srv, repo: repo, notifier: notifier, audits: audits, handler: h}
}

func (f fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(audit.ActorHeader, "line-lead")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPut, "/S1/status", `{"status":"error"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "S1", body["stationId"])
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "warning", body["oldStatus"])
	assert.NotEmpty(t, body["timestamp"])

	assert.Equal(t, []string{stationapp.EventStationStatusUpdated}, f.notifier.types())
	st, _ := f.repo.GetStation(context.Background(), "S1")
	assert.Equal(t, stations.StatusError, st.Status)
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPut, "/S1/status", `{"status":"broken"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []any{"normal", "warning", "error", "maintenance"}, body["validStatuses"])

	resp, _ = f.do(t, http.MethodPut, "/S1/status", `{"status":"error","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/S1/status", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/NOPE/status", `{"status":"error"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Empty(t, f.notifier.types())
	assert.Empty(t, f.repo.Logs())
}

func TestUpdateStatusPersistenceFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.SetFault(func(op, _ string) error {
		if op == memory.OpAppendLog {
			return errors.New("disk full")
		}
		return nil
	})

	resp, body := f.do(t, http.MethodPut, "/S1/status", `{"status":"error"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, f.notifier.types())
}

func TestResetAll(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/reset-all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["resetCount"])
	assert.NotContains(t, body, "failedStations")

	assert.Equal(t, []string{
		stationapp.EventStationStatusUpdated,
		stationapp.EventStationStatusUpdated,
		stationapp.EventStationsReset,
	}, f.notifier.types())

	logged := f.audits.all()
	require.Len(t, logged, 1)
	assert.Equal(t, audit.ActionStationsReset, logged[0].Action)
	assert.Equal(t, "line-lead", logged[0].Actor)
}

func TestResetAllReportsFailedStations(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.SetFault(func(op, id string) error {
		if op == memory.OpUpdate && id == "C1" {
			return errors.New("locked")
		}
		return nil
	})

	resp, body := f.do(t, http.MethodPost, "/reset-all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["resetCount"])
	assert.Equal(t, []any{"C1"}, body["failedStations"])
}

func TestListIncludesAlertBadges(t *testing.T) {
	last := now.Add(-5 * time.Minute)
	f := newFixture(t, stubAlerts{summaries: map[string]stations.AlertSummary{
		"S1": {ActiveAlerts: 2, LastAlertTime: &last},
	}})

	resp, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["count"])

	data := body["data"].([]any)
	byID := make(map[string]map[string]any)
	for _, raw := range data {
		row := raw.(map[string]any)
		byID[row["id"].(string)] = row
	}
	assert.EqualValues(t, 2, byID["S1"]["active_alerts"])
	assert.NotNil(t, byID["S1"]["last_alert_time"])
	assert.EqualValues(t, 0, byID["S2"]["active_alerts"])
	assert.Nil(t, byID["S2"]["last_alert_time"])
}

func TestListToleratesAlertFailure(t *testing.T) {
	f := newFixture(t, stubAlerts{err: errors.New("alerts down")})

	resp, body := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["count"])
}

func TestZonesAndGet(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/zones", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])

	resp, body = f.do(t, http.MethodGet, "/S2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Paint 2", body["data"].(map[string]any)["name"])

	resp, _ = f.do(t, http.MethodGet, "/NOPE", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAndDeleteStation(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/", `{"name":"Packing 1","code":"P1","zone":"Packing"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "P1", data["id"])
	assert.Equal(t, "normal", data["status"])

	resp, _ = f.do(t, http.MethodPost, "/", `{"name":"Dup","code":"P1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/", `{"name":"","code":"P9"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/P1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/P1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	logged := f.audits.all()
	require.Len(t, logged, 2)
	assert.Equal(t, audit.ActionStationCreate, logged[0].Action)
	assert.Equal(t, audit.ActionStationDelete, logged[1].Action)
}

func TestStatusLogAndTimeline(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodPut, "/S2/status", `{"status":"maintenance"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/S2/status-log", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/S2/status-log?date=02-03-2026", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/S2/status-log?date=2026-03-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "maintenance", data[0].(map[string]any)["new_status"])

	resp, body = f.do(t, http.MethodGet, "/S2/status-log?date=2026-03-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, body = f.do(t, http.MethodGet, "/S2/timeline?date=2026-03-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	seconds := body["data"].(map[string]any)["seconds"].(map[string]any)
	assert.EqualValues(t, 10*3600, seconds["normal"])
	assert.EqualValues(t, 14*3600, seconds["future"])
}

func TestTimelineXLSX(t *testing.T) {
	f := newFixture(t, nil)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/S1/timeline.xlsx?date=2026-03-02", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentTypeXLSX, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "timeline-S1-2026-03-02.xlsx")
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}

func TestStreamDisabledByDefault(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodGet, "/stream", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBackendSnapshotAndApply(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.handler.ApplyStatus(ctx, "S2", "error", "socket"))
	assert.ErrorIs(t, f.handler.ApplyStatus(ctx, "S2", "nope", "socket"), stations.ErrInvalidStatus)

	snap, err := f.handler.Snapshot(ctx)
	require.NoError(t, err)
	views := snap.([]stationhttp.StationView)
	require.Len(t, views, 3)
	for _, v := range views {
		if v.ID == "S2" {
			assert.Equal(t, stations.StatusError, v.Status)
		}
	}
	assert.Equal(t, []string{stationapp.EventStationStatusUpdated}, f.notifier.types())
}
