package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andon-board/internal/export"
	stationapp "andon-board/internal/stations/application"
	stations "andon-board/internal/stations/domain"
	"andon-board/internal/stations/infrastructure/memory"
	statsapp "andon-board/internal/statistics/application"
	statistics "andon-board/internal/statistics/domain"
	statshttp "andon-board/internal/statistics/interfaces/http"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubRepo struct {
	mu      sync.Mutex
	upserts []statistics.ProductionRecord
}

func (r *stubRepo) recorded() []statistics.ProductionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statistics.ProductionRecord(nil), r.upserts...)
}

func (r *stubRepo) StationCounts(context.Context) (statistics.StationCounts, error) {
	return statistics.StationCounts{Total: 1, Warning: 1}, nil
}

func (r *stubRepo) AlertCounts(context.Context, time.Time) (statistics.AlertCounts, error) {
	return statistics.AlertCounts{Total: 4, Active: 1}, nil
}

func (r *stubRepo) StationAlerts(context.Context, time.Time) ([]statistics.StationAlertStats, error) {
	return nil, nil
}

func (r *stubRepo) Performance(context.Context, time.Time) ([]statistics.StationPerformance, error) {
	return []statistics.StationPerformance{{StationID: "S1", TotalProducts: 200, DefectProducts: 3}}, nil
}

func (r *stubRepo) UpsertProduction(_ context.Context, rec statistics.ProductionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, rec)
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *stubRepo) {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	stationSvc, err := stationapp.NewService(memory.NewRepository(
		stations.Station{ID: "S1", Name: "Paint 1", Code: "S1", Zone: "Paint", Status: stations.StatusWarning},
	), stationapp.WithClock(clock))
	require.NoError(t, err)
	repo := &stubRepo{}
	svc, err := statsapp.NewService(repo, stationSvc, statsapp.WithClock(clock))
	require.NoError(t, err)
	h, err := statshttp.NewHandler(svc, nil, zerolog.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, repo
}

func getJSON(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestOverviewAndStations(t *testing.T) {
	srv, _ := newServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/overview", "")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["stations"].(map[string]any)["warning_stations"])
	assert.EqualValues(t, 4, data["alerts"].(map[string]any)["total_alerts"])

	code, body = getJSON(t, srv, http.MethodGet, "/stations?days=3", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "last 3 days", body["period"])
	assert.Equal(t, []any{}, body["data"])

	code, _ = getJSON(t, srv, http.MethodGet, "/stations?days=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = getJSON(t, srv, http.MethodGet, "/stations?days=5000", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "last 365 days", body["period"])
}

func TestPerformance(t *testing.T) {
	srv, _ := newServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/performance", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "last 30 days", body["period"])
	totals := body["data"].(map[string]any)["totals"].(map[string]any)
	assert.EqualValues(t, 200, totals["total_products"])
	assert.EqualValues(t, 98.5, totals["quality_rate"])
}

func TestProduction(t *testing.T) {
	srv, repo := newServer(t)

	code, body := getJSON(t, srv, http.MethodPost, "/production", `{"station_id":"S1","total_products":120,"defect_products":4,"downtime_minutes":15}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-02", body["data"].(map[string]any)["date"])
	upserts := repo.recorded()
	require.Len(t, upserts, 1)
	assert.Equal(t, 15, upserts[0].DowntimeMinutes)

	code, _ = getJSON(t, srv, http.MethodPost, "/production", `{"station_id":"S1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = getJSON(t, srv, http.MethodPost, "/production", `{"station_id":"S9","total_products":1}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = getJSON(t, srv, http.MethodPost, "/production", `{"station_id":"S1","total_products":1,"shift":"A"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReports(t *testing.T) {
	srv, _ := newServer(t)

	for path, contentType := range map[string]string{
		"/report.pdf?date=2026-03-01":  export.ContentTypePDF,
		"/report.xlsx?date=2026-03-01": export.ContentTypeXLSX,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, contentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "andon-report-2026-03-01")
		assert.NotEmpty(t, data)
		if contentType == export.ContentTypePDF {
			assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
		}
	}

	code, _ := getJSON(t, srv, http.MethodGet, "/report.pdf?date=March", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
