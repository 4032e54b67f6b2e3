package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var stationStatuses = []string{"normal", "warning", "error", "maintenance"}

func registerDBMetrics(db *sql.DB, logger zerolog.Logger) {
	for _, status := range stationStatuses {
		status := status
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "stations",
				Help:        "Stations currently in each status",
				ConstLabels: prometheus.Labels{"status": status},
			},
			func() float64 {
				return queryCount(db, logger, "SELECT COUNT(*) FROM stations WHERE status = $1", status)
			},
		))
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "alerts_active",
			Help: "Alerts not yet resolved",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM alerts WHERE status IN ('active', 'acknowledged')")
		},
	))
}

func queryCount(db *sql.DB, logger zerolog.Logger, query string, args ...any) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		logger.Warn().Err(err).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
