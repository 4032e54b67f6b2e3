package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"andon-board/internal/audit"
	"andon-board/internal/export"
	"andon-board/internal/observability/metrics"
	stationapp "andon-board/internal/stations/application"
	stations "andon-board/internal/stations/domain"
)

const maxBodyBytes = 1 << 20

// AlertSummaries reports active alert badges keyed by station id.
type AlertSummaries interface {
	ActiveByStation(ctx context.Context) (map[string]stations.AlertSummary, error)
}

// StationView is a station enriched with its alert badge.
type StationView struct {
	stations.Station
	stations.AlertSummary
}

// Handler provides station HTTP endpoints and backs the realtime channel.
type Handler struct {
	service  *stationapp.Service
	notifier stationapp.Notifier
	alerts   AlertSummaries
	audit    *audit.Recorder
	stream   http.Handler
	logger   zerolog.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithNotifier sets the sink for committed station events.
func WithNotifier(n stationapp.Notifier) HandlerOption {
	return func(h *Handler) {
		h.notifier = n
	}
}

// WithAlertSummaries enables alert badges in station listings.
func WithAlertSummaries(a AlertSummaries) HandlerOption {
	return func(h *Handler) {
		h.alerts = a
	}
}

// WithAuditRecorder records admin actions.
func WithAuditRecorder(r *audit.Recorder) HandlerOption {
	return func(h *Handler) {
		h.audit = r
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a handler.
func NewHandler(service *stationapp.Service, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("stations handler: nil service")
	}
	h := &Handler{service: service, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// SetStream mounts the SSE stream after construction. The stream needs the
// handler as its backend, so it is usually created second.
func (h *Handler) SetStream(stream http.Handler) {
	h.stream = stream
}

// Routes returns the router mounted at /api/stations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/zones", h.handleZones)
	r.Post("/reset-all", h.handleResetAll)
	r.Get("/stream", h.handleStream)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Put("/status", h.handleUpdateStatus)
		r.Get("/status-log", h.handleStatusLog)
		r.Get("/timeline", h.handleTimeline)
		r.Get("/timeline.xlsx", h.handleTimelineXLSX)
	})
	return r
}

// Snapshot returns the enriched station list pushed as stations_data.
func (h *Handler) Snapshot(ctx context.Context) (any, error) {
	return h.views(ctx)
}

// ApplyStatus applies a status change coming from the realtime channel.
func (h *Handler) ApplyStatus(ctx context.Context, stationID, status, source string) error {
	_, err := h.service.ApplyStatusChange(ctx, stationID, status, source, stationapp.NotifyOnCommit(h.notifier))
	return err
}

func (h *Handler) views(ctx context.Context) ([]StationView, error) {
	list, err := h.service.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	var summaries map[string]stations.AlertSummary
	if h.alerts != nil {
		summaries, err = h.alerts.ActiveByStation(ctx)
		if err != nil {
			// The board stays usable without badges.
			h.logger.Warn().Err(err).Msg("load alert summaries failed")
			summaries = nil
		}
	}
	out := make([]StationView, 0, len(list))
	for _, st := range list {
		out = append(out, StationView{Station: st, AlertSummary: summaries[st.ID]})
	}
	return out, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.views(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    list,
		"count":   len(list),
	})
}

func (h *Handler) handleZones(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListStations(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	groups := stationapp.GroupByZone(list)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    groups,
		"count":   len(groups),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": st})
}

type createStationRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Zone        string `json:"zone"`
}

func (req *createStationRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		return errors.New("name and code are required")
	}
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createStationRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.service.CreateStation(r.Context(), stationapp.CreateStationInput{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Zone:        req.Zone,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Action:       audit.ActionStationCreate,
		ResourceType: "station",
		ResourceID:   st.ID,
		StationID:    st.ID,
		Metadata:     audit.Metadata(req),
	})
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "data": st})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteStation(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Action:       audit.ActionStationDelete,
		ResourceType: "station",
		ResourceID:   id,
		StationID:    id,
	})
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "stationId": id})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (req *updateStatusRequest) Validate() error {
	_, err := stations.ParseStatus(req.Status)
	return err
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		if errors.Is(err, stations.ErrInvalidStatus) {
			respondInvalidStatus(w)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tr, err := h.service.ApplyStatusChange(r.Context(), chi.URLParam(r, "id"), req.Status, stations.SourceServer, stationapp.NotifyOnCommit(h.notifier))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"stationId": tr.StationID,
		"status":    tr.NewStatus,
		"oldStatus": tr.OldStatus,
		"timestamp": tr.Timestamp,
	})
}

func (h *Handler) handleResetAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ResetAllToNormal(r.Context(), stations.SourceServer, stationapp.NotifyOnCommit(h.notifier))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(r.Context(), stationapp.ResetEvent(result, stations.SourceServer))
	}
	failed := make([]string, 0, len(result.Failed))
	for id := range result.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	h.audit.Record(r, audit.Entry{
		Action:       audit.ActionStationsReset,
		ResourceType: "stations",
		ResourceID:   "all",
		Metadata:     audit.Metadata(map[string]any{"reset_count": result.ResetCount, "failed": failed}),
	})
	body := map[string]any{
		"success":    true,
		"resetCount": result.ResetCount,
	}
	if len(failed) > 0 {
		body["failedStations"] = failed
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *Handler) handleStatusLog(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDate(w, r)
	if !ok {
		return
	}
	points, err := h.service.StatusLog(r.Context(), chi.URLParam(r, "id"), day)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if points == nil {
		points = []stations.StatusPoint{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": points})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDate(w, r)
	if !ok {
		return
	}
	tl, err := h.service.Timeline(r.Context(), chi.URLParam(r, "id"), day)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": tl})
}

func (h *Handler) handleTimelineXLSX(w http.ResponseWriter, r *http.Request) {
	day, ok := h.parseDate(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	st, err := h.service.GetStation(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	tl, err := h.service.Timeline(r.Context(), id, day)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	data, err := export.BuildTimelineXLSX(*st, tl, h.service.Location())
	if err != nil {
		metrics.IncExport("xlsx", metrics.ResultError)
		h.logger.Error().Err(err).Str("station_id", id).Msg("timeline export failed")
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.IncExport("xlsx", metrics.ResultSuccess)
	filename := fmt.Sprintf("timeline-%s-%s.xlsx", id, day.Format("2006-01-02"))
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondError(w, http.StatusNotFound, "stream not enabled")
		return
	}
	h.stream.ServeHTTP(w, r)
}

func (h *Handler) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "date is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	day, err := h.service.ParseDay(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return day, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stations.ErrInvalidStatus):
		respondInvalidStatus(w)
	case errors.Is(err, stations.ErrStationNotFound):
		respondError(w, http.StatusNotFound, "station not found")
	case errors.Is(err, stations.ErrStationExists):
		respondError(w, http.StatusConflict, "station code already exists")
	case errors.Is(err, stations.ErrPersistence):
		h.logger.Error().Err(err).Msg("station request failed")
		respondError(w, http.StatusInternalServerError, "database error")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

type validator interface {
	Validate() error
}

func decodeRequest(r *http.Request, v validator) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return v.Validate()
}

func respondInvalidStatus(w http.ResponseWriter) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error":         "invalid status",
		"validStatuses": stations.StatusStrings(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
