package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	alertapp "andon-board/internal/alerts/application"
	alerts "andon-board/internal/alerts/domain"
	"andon-board/internal/audit"
	stations "andon-board/internal/stations/domain"
)

const maxBodyBytes = 1 << 20

// Handler provides alert HTTP endpoints.
type Handler struct {
	service *alertapp.Service
	audit   *audit.Recorder
	logger  zerolog.Logger
}

// NewHandler constructs a handler. recorder may be nil.
func NewHandler(service *alertapp.Service, recorder *audit.Recorder, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	return &Handler{service: service, audit: recorder, logger: logger}, nil
}

// Routes returns the router mounted at /api/alerts.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/active", h.handleActive)
	r.Get("/statistics", h.handleStatistics)
	r.Put("/{id}/acknowledge", h.handleAcknowledge)
	r.Put("/{id}/resolve", h.handleResolve)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := h.service.ListAlerts(r.Context(), alerts.Filter{
		Status:    alerts.Status(q.Get("status")),
		StationID: q.Get("station_id"),
		Limit:     limit,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ActiveAlerts(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}
	days = alertapp.ClampDays(days, alertapp.DefaultStatsDays)
	stats, err := h.service.Statistics(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if stats == nil {
		stats = []alerts.SeverityStats{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    stats,
		"period":  fmt.Sprintf("last %d days", days),
	})
}

type createAlertRequest struct {
	StationID string `json:"station_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

func (req *createAlertRequest) Validate() error {
	a := alerts.Alert{
		StationID: req.StationID,
		AlertType: req.AlertType,
		Severity:  alerts.Severity(req.Severity),
		Message:   req.Message,
	}
	return a.Validate()
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeRequest(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	alert, err := h.service.CreateAlert(r.Context(), alertapp.CreateAlertInput{
		StationID: req.StationID,
		AlertType: req.AlertType,
		Severity:  req.Severity,
		Message:   req.Message,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Action:       audit.ActionAlertCreate,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		StationID:    alert.StationID,
		Metadata:     audit.Metadata(req),
	})
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "alert created",
		"data":    alert,
	})
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (req *acknowledgeRequest) Validate() error {
	if req.AcknowledgedBy == "" {
		return fmt.Errorf("%w: acknowledged_by is required", alerts.ErrInvalidAlert)
	}
	return nil
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (req *resolveRequest) Validate() error {
	if req.ResolvedBy == "" {
		return fmt.Errorf("%w: resolved_by is required", alerts.ErrInvalidAlert)
	}
	return nil
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	alert, err := h.service.Acknowledge(r.Context(), chi.URLParam(r, "id"), req.AcknowledgedBy)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Actor:        req.AcknowledgedBy,
		Action:       audit.ActionAlertAck,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		StationID:    alert.StationID,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "alert acknowledged",
		"data":    alert,
	})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeRequest(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	alert, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Actor:        req.ResolvedBy,
		Action:       audit.ActionAlertResolve,
		ResourceType: "alert",
		ResourceID:   alert.ID,
		StationID:    alert.StationID,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "alert resolved",
		"data":    alert,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerts.ErrInvalidSeverity):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "invalid severity",
			"validSeverities": alerts.SeverityStrings(),
		})
	case errors.Is(err, alerts.ErrInvalidAlert), errors.Is(err, errBadBody):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alerts.ErrNotFound):
		respondError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, stations.ErrStationNotFound):
		respondError(w, http.StatusNotFound, "station not found")
	case errors.Is(err, alerts.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "alert already handled")
	default:
		h.logger.Error().Err(err).Msg("alert request failed")
		respondError(w, http.StatusInternalServerError, "database error")
	}
}

var errBadBody = errors.New("invalid request body")

type validator interface {
	Validate() error
}

func decodeRequest(r *http.Request, v validator) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return v.Validate()
}

func respondList(w http.ResponseWriter, list []alerts.Alert) {
	if list == nil {
		list = []alerts.Alert{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    list,
		"count":   len(list),
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
