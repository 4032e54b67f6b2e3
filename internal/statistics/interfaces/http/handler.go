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
	"andon-board/internal/audit"
	"andon-board/internal/export"
	"andon-board/internal/observability/metrics"
	stations "andon-board/internal/stations/domain"
	statsapp "andon-board/internal/statistics/application"
	statistics "andon-board/internal/statistics/domain"
)

const maxBodyBytes = 1 << 20

// Handler provides statistics and report endpoints.
type Handler struct {
	service *statsapp.Service
	audit   *audit.Recorder
	logger  zerolog.Logger
}

// NewHandler constructs a handler. recorder may be nil.
func NewHandler(service *statsapp.Service, recorder *audit.Recorder, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("statistics handler: nil service")
	}
	return &Handler{service: service, audit: recorder, logger: logger}, nil
}

// Routes returns the router mounted at /api/statistics.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/overview", h.handleOverview)
	r.Get("/stations", h.handleStations)
	r.Get("/performance", h.handlePerformance)
	r.Post("/production", h.handleProduction)
	r.Get("/report.pdf", h.handleReportPDF)
	r.Get("/report.xlsx", h.handleReportXLSX)
	return r
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": overview})
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r, statsapp.DefaultAlertDays)
	if !ok {
		return
	}
	rows, err := h.service.StationAlerts(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []statistics.StationAlertStats{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    rows,
		"period":  fmt.Sprintf("last %d days", days),
	})
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r, statsapp.DefaultPerformanceDays)
	if !ok {
		return
	}
	perf, err := h.service.Performance(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    perf,
		"period":  fmt.Sprintf("last %d days", days),
	})
}

type productionRequest struct {
	StationID       string `json:"station_id"`
	Date            string `json:"date"`
	TotalProducts   *int   `json:"total_products"`
	DefectProducts  int    `json:"defect_products"`
	DowntimeMinutes int    `json:"downtime_minutes"`
}

func (req *productionRequest) Validate() error {
	if req.StationID == "" || req.TotalProducts == nil {
		return fmt.Errorf("%w: station_id and total_products are required", statistics.ErrInvalidProduction)
	}
	return nil
}

func (h *Handler) handleProduction(w http.ResponseWriter, r *http.Request) {
	var req productionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	rec, err := h.service.RecordProduction(r.Context(), statsapp.ProductionInput{
		StationID:       req.StationID,
		Date:            req.Date,
		TotalProducts:   *req.TotalProducts,
		DefectProducts:  req.DefectProducts,
		DowntimeMinutes: req.DowntimeMinutes,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.audit.Record(r, audit.Entry{
		Action:       audit.ActionProduction,
		ResourceType: "production",
		ResourceID:   rec.StationID + "/" + rec.Date.Format("2006-01-02"),
		StationID:    rec.StationID,
		Metadata:     audit.Metadata(req),
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"station_id":       rec.StationID,
			"date":             rec.Date.Format("2006-01-02"),
			"total_products":   rec.TotalProducts,
			"defect_products":  rec.DefectProducts,
			"downtime_minutes": rec.DowntimeMinutes,
		},
	})
}

func (h *Handler) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "pdf", export.ContentTypePDF, export.BuildDailyReportPDF)
}

func (h *Handler) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	h.serveReport(w, r, "xlsx", export.ContentTypeXLSX, export.BuildDailyReportXLSX)
}

func (h *Handler) serveReport(w http.ResponseWriter, r *http.Request, format, contentType string, build func(export.DailyReport) ([]byte, error)) {
	report, err := h.service.DailyReport(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	data, err := build(report)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.logger.Error().Err(err).Str("format", format).Str("date", report.Date).Msg("report export failed")
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)
	filename := fmt.Sprintf("andon-report-%s.%s", report.Date, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, statistics.ErrInvalidProduction), errors.Is(err, errBadBody):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stations.ErrStationNotFound):
		respondError(w, http.StatusNotFound, "station not found")
	case errors.Is(err, statistics.ErrInvalidDate):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("statistics request failed")
		respondError(w, http.StatusInternalServerError, "database error")
	}
}

var errBadBody = errors.New("invalid request body")

func parseDays(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondError(w, http.StatusBadRequest, "days must be a positive integer")
		return 0, false
	}
	return alertapp.ClampDays(n, def), true
}

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

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
