package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wilot/weather-station/internal/config"
	"github.com/wilot/weather-station/internal/httpapi"
	"github.com/wilot/weather-station/internal/ingest"
	"github.com/wilot/weather-station/internal/mqtt"
	"github.com/wilot/weather-station/internal/storage"
	"github.com/wilot/weather-station/internal/storage/migrate"
)

// IngestOptions are the ingest command's flags.
type IngestOptions struct {
	// SetupTest recreates the test table with one dummy row and logs its
	// contents before subscribing.
	SetupTest bool
}

// RunIngest subscribes to the station topic, stores every decoded record
// and serves the HTTP API until ctx is cancelled.
func RunIngest(ctx context.Context, cfg config.Config, opts IngestOptions, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"ingestTopic", cfg.IngestTopic,
		"ingestClientID", cfg.IngestClientID,
	)

	dbConn, err := storage.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := storage.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}
	logger.Info("database ready")

	repo := storage.NewRepository(dbConn)
	if opts.SetupTest {
		rows, err := repo.SetupTest(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, row := range rows {
			logger.Info("test table row", "sample", row)
		}
	}

	// The handler must be in place before the first CONNACK; the broker
	// may deliver retained messages straight after subscribing.
	svc := ingest.NewService(repo, logger)
	subscriber := mqtt.NewSubscriber(cfg, logger)
	svc.Register(subscriber)

	// The subscriber retries in the background, so a broker that is down at
	// startup does not keep the HTTP API from coming up.
	go func() {
		if err := subscriber.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mqtt.ErrStopped) {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}()

	mux := httpapi.NewMux(dbConn, subscriber, svc)
	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		subscriber.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("mqtt disconnecting")
	subscriber.Disconnect()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
