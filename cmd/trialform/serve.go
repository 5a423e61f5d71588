package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/field-trial-form/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/field-trial-form/internal/adapter/kafka"
	"github.com/couchcryptid/field-trial-form/internal/config"
	"github.com/couchcryptid/field-trial-form/internal/form"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/couchcryptid/field-trial-form/internal/session"
	"github.com/couchcryptid/field-trial-form/internal/views"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the web form (default)",
		Action: runServe,
	}
}

func runServe(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkSubmitBudget(cfg); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	pages, err := views.LoadTemplates()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	geocoder := newGeocoder(cfg, metrics, logger)

	wc, err := newWeatherCache(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := wc.close(); err != nil {
			logger.Error("weather cache close error", "error", err)
		}
	}()
	weather := newWeatherClient(cfg, wc.cache, metrics, logger)
	logger.Info("weather client configured",
		"cache_backend", cfg.WeatherCacheBackend,
		"retries", cfg.WeatherRetries,
		"backoff_factor", cfg.WeatherBackoffFactor,
	)

	var publisher form.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, cfg.HTTPWriteTimeout, httpadapter.Deps{
		Form:     form.New(geocoder, weather, publisher, logger, metrics),
		Sessions: session.NewStore(cfg.SessionTTL, nil, metrics),
		Pages:    pages,
		Ready:    wc.ready,
		Metrics:  metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		stop()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
