package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "andon_"

	resultSuccess = "success"
	resultError   = "error"
	resultDropped = "dropped"
	resultPartial = "partial"
)

var (
	registerOnce sync.Once

	statusTransitions *prometheus.CounterVec
	resetAllTotal     *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec

	realtimeClients   *prometheus.GaugeVec
	realtimeEvictions *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec
)

// Init registers metrics on the default registry. A non-nil db also
// registers gauges backed by live queries.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		statusTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_transitions_total",
				Help: "Committed station status transitions by new status and source",
			},
			[]string{"status", "source"},
		)
		resetAllTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reset_all_total",
				Help: "Bulk reset operations by result",
			},
			[]string{"result"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Outbound notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		webhookLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "webhook_latency_seconds",
				Help:    "Webhook delivery latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		realtimeClients = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "realtime_clients",
				Help: "Connected dashboard sessions by transport",
			},
			[]string{"transport"},
		)
		realtimeEvictions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "realtime_evictions_total",
				Help: "Dashboard sessions disconnected for falling behind",
			},
			[]string{"transport"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Alert lifecycle events by type",
			},
			[]string{"event"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			statusTransitions,
			resetAllTotal,
			notificationsTotal,
			webhookLatency,
			realtimeClients,
			realtimeEvictions,
			alertEventsTotal,
			httpRequests,
			httpLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncStatusTransition counts a committed transition.
func IncStatusTransition(status, source string) {
	if status == "" {
		status = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	if statusTransitions != nil {
		statusTransitions.WithLabelValues(status, source).Inc()
	}
}

// IncResetAll counts a bulk reset by result.
func IncResetAll(result string) {
	if result == "" {
		result = resultSuccess
	}
	if resetAllTotal != nil {
		resetAllTotal.WithLabelValues(result).Inc()
	}
}

// IncNotification counts an outbound notification attempt.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveWebhook records webhook latency and result.
func ObserveWebhook(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if webhookLatency != nil {
		webhookLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	IncNotification("webhook", result)
}

// AddRealtimeClients adjusts the connected session gauge.
func AddRealtimeClients(transport string, delta int) {
	if transport == "" {
		transport = "unknown"
	}
	if realtimeClients != nil {
		realtimeClients.WithLabelValues(transport).Add(float64(delta))
	}
}

// IncRealtimeEviction counts a slow session disconnect.
func IncRealtimeEviction(transport string) {
	if transport == "" {
		transport = "unknown"
	}
	if realtimeEvictions != nil {
		realtimeEvictions.WithLabelValues(transport).Inc()
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, statusClass(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// IncExport counts a report export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultDropped = resultDropped
	ResultPartial = resultPartial
)
