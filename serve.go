package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	alertapp "andon-board/internal/alerts/application"
	alertpg "andon-board/internal/alerts/infrastructure/postgres"
	alerthttp "andon-board/internal/alerts/interfaces/http"
	apihttp "andon-board/internal/api/http"
	"andon-board/internal/audit"
	"andon-board/internal/config"
	"andon-board/internal/logging"
	"andon-board/internal/notify"
	"andon-board/internal/observability/metrics"
	"andon-board/internal/realtime"
	stationapp "andon-board/internal/stations/application"
	stationpg "andon-board/internal/stations/infrastructure/postgres"
	stationhttp "andon-board/internal/stations/interfaces/http"
	statsapp "andon-board/internal/statistics/application"
	statspg "andon-board/internal/statistics/infrastructure/postgres"
	statshttp "andon-board/internal/statistics/interfaces/http"
)

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, database, logger); err != nil {
			return err
		}
	}

	var metricsDB *sql.DB
	if cfg.MetricsDB {
		metricsDB = database
	}
	metrics.Init(metricsDB, logging.WithComponent("metrics"))

	hub := realtime.NewHub(
		realtime.WithClientBuffer(cfg.Realtime.ClientBuffer),
		realtime.WithLogger(logging.WithComponent("realtime")),
	)

	stationNotifiers := []stationapp.Notifier{stationapp.PublisherNotifier(hub)}
	alertOpts := []alertapp.ServiceOption{
		alertapp.WithNotifier(alertapp.PublisherNotifier(hub)),
		alertapp.WithLogger(logging.WithComponent("alerts")),
	}

	webhook, err := buildWebhookNotifier(cfg, loc)
	if err != nil {
		return err
	}
	if webhook != nil {
		stationNotifiers = append(stationNotifiers, webhook)
		defer closeWebhook(webhook, cfg.HTTP.ShutdownTimeout, logger)
	}

	if cfg.NATS.URL != "" {
		natsLogger := logging.WithComponent("nats")
		conn, err := notify.ConnectNATS(notify.NATSOptions{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.ClientName,
			ReconnectWait: cfg.NATS.ReconnectWait,
			MaxReconnects: cfg.NATS.MaxReconnects,
		}, natsLogger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer drainNATS(conn, logger)
		publisher, err := notify.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix, natsLogger)
		if err != nil {
			return err
		}
		stationNotifiers = append(stationNotifiers, publisher)
		alertOpts = append(alertOpts, alertapp.WithNotifier(publisher.Alerts()))
		logger.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("nats event sink enabled")
	}
	notifier := notify.NewMultiNotifier(stationNotifiers...)

	stationSvc, err := stationapp.NewService(stationpg.NewRepository(database),
		stationapp.WithLocation(loc),
		stationapp.WithLogger(logging.WithComponent("stations")),
	)
	if err != nil {
		return err
	}
	if cfg.SeedFile != "" {
		if _, err := seedStations(ctx, stationSvc, cfg.SeedFile, logger); err != nil {
			return err
		}
	}
	alertSvc, err := alertapp.NewService(alertpg.NewRepository(database), stationSvc, alertOpts...)
	if err != nil {
		return err
	}
	statsSvc, err := statsapp.NewService(statspg.NewRepository(database), stationSvc,
		statsapp.WithLogger(logging.WithComponent("statistics")),
	)
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(audit.NewRepository(database), logging.WithComponent("audit"))

	stationHandler, err := stationhttp.NewHandler(stationSvc,
		stationhttp.WithNotifier(notifier),
		stationhttp.WithAlertSummaries(alertSvc),
		stationhttp.WithAuditRecorder(recorder),
		stationhttp.WithLogger(logging.WithComponent("stations-http")),
	)
	if err != nil {
		return err
	}
	realtimeLogger := logging.WithComponent("realtime")
	stationHandler.SetStream(realtime.NewStreamHandler(hub, stationHandler, realtimeLogger))
	wsHandler, err := realtime.NewWSHandler(hub, stationHandler, realtimeLogger,
		realtime.WithAllowedOrigins(cfg.HTTP.CORSOrigins),
		realtime.WithPingInterval(cfg.Realtime.PingInterval),
	)
	if err != nil {
		return err
	}
	alertHandler, err := alerthttp.NewHandler(alertSvc, recorder, logging.WithComponent("alerts-http"))
	if err != nil {
		return err
	}
	statsHandler, err := statshttp.NewHandler(statsSvc, recorder, logging.WithComponent("statistics-http"))
	if err != nil {
		return err
	}

	router := apihttp.NewRouter(apihttp.Config{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logging.WithComponent("http"),
		Stations:       stationHandler,
		Alerts:         alertHandler,
		Statistics:     statsHandler,
		Realtime:       wsHandler,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("timezone", loc.String()).Msg("andon board listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

func buildWebhookNotifier(cfg config.Config, loc *time.Location) (*notify.WebhookNotifier, error) {
	if cfg.Webhook.URL == "" {
		return nil, nil
	}
	channel, err := notify.NewWebhookChannel(cfg.Webhook.URL,
		notify.WithFormat(cfg.Webhook.Format),
		notify.WithFlowTarget(cfg.Webhook.TeamID, cfg.Webhook.ChannelID),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook channel: %w", err)
	}
	tpl, err := notify.NewTemplate(cfg.Webhook.Template)
	if err != nil {
		return nil, fmt.Errorf("webhook template: %w", err)
	}
	return notify.NewWebhookNotifier(channel, tpl,
		notify.WithLocation(loc),
		notify.WithRequestTimeout(cfg.Webhook.Timeout),
		notify.WithQueue(cfg.Webhook.QueueSize, cfg.Webhook.Workers),
		notify.WithDedupeWindow(cfg.Webhook.DedupeWindow),
		notify.WithLogger(logging.WithComponent("webhook")),
	)
}

func closeWebhook(n *notify.WebhookNotifier, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("webhook queue not drained")
	}
}

func drainNATS(conn *nats.Conn, logger zerolog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn().Err(err).Msg("nats drain failed")
	}
}
