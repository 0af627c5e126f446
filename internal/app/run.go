package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
	"github.com/hbl-templ/bakerloo-line-extension/internal/db"
	"github.com/hbl-templ/bakerloo-line-extension/internal/httpapi"
	"github.com/hbl-templ/bakerloo-line-extension/internal/migrate"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/service"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/views"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata"
	"github.com/hbl-templ/bakerloo-line-extension/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteLogSQL", cfg.SQLiteLogSQL,
		"nomisBaseURL", cfg.NomisBaseURL,
		"fetchMaxAttempts", cfg.FetchMaxAttempts,
		"cacheCapacity", cfg.CacheCapacity,
		"geographyFile", cfg.GeographyFile,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)
	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(dbConn)
	for _, m := range applied {
		logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	if err != nil {
		return err
	}

	if err := views.LoadTemplates(); err != nil {
		return err
	}
	svc, err := census.NewService(cfg, logger)
	if err != nil {
		return err
	}

	// The handler must be set before Connect: the broker may deliver right after CONNACK.
	subscriber := mqtt.NewSubscriber(cfg, logger)
	service.RegisterInvalidation(subscriber, svc, logger)

	mux := httpapi.NewMux(dbConn, subscriber)
	census.RegisterFeature(mux, svc)
	localdata.RegisterFeature(mux, dbConn, svc.Registry())

	if subscriber.Enabled() {
		// Short connect window so a missing broker does not hold up startup; paho keeps retrying.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	} else {
		logger.Info("mqtt disabled: MQTT_BROKER not set")
	}

	srv := httpapi.NewServer(cfg, mux)

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
