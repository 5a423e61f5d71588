package main

import (
	"fmt"
	"log/slog"
	"time"

	httpadapter "github.com/couchcryptid/field-trial-form/internal/adapter/http"
	"github.com/couchcryptid/field-trial-form/internal/adapter/mapbox"
	"github.com/couchcryptid/field-trial-form/internal/adapter/nominatim"
	"github.com/couchcryptid/field-trial-form/internal/adapter/openmeteo"
	"github.com/couchcryptid/field-trial-form/internal/adapter/sqlite"
	"github.com/couchcryptid/field-trial-form/internal/cache"
	"github.com/couchcryptid/field-trial-form/internal/config"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
)

// newGeocoder builds the configured provider behind an LRU cache.
func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	var client domain.Geocoder
	switch cfg.GeocoderProvider {
	case config.ProviderMapbox:
		client = mapbox.NewClient(cfg.MapboxURL, cfg.MapboxToken, cfg.GeocoderTimeout, metrics, logger)
	default:
		client = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocoderTimeout, metrics, logger)
	}
	logger.Info("geocoding configured",
		"provider", cfg.GeocoderProvider,
		"timeout", cfg.GeocoderTimeout,
		"cache_size", cfg.GeocoderCacheSize,
	)
	return cache.NewCachedGeocoder(client, cfg.GeocoderCacheSize, metrics)
}

// weatherCache bundles the configured response cache with its readiness
// check and cleanup. cache and ready are nil for the "none" backend.
type weatherCache struct {
	cache openmeteo.ResponseCache
	ready httpadapter.ReadinessChecker
	close func() error
}

func newWeatherCache(cfg *config.Config) (weatherCache, error) {
	noop := func() error { return nil }
	switch cfg.WeatherCacheBackend {
	case config.CacheMemory:
		r := cache.NewResponses(cfg.WeatherCacheSize, cfg.WeatherCacheTTL, nil)
		return weatherCache{cache: r, ready: r, close: noop}, nil
	case config.CacheSQLite:
		store, err := sqlite.Open(cfg.WeatherCachePath, cfg.WeatherCacheTTL, nil)
		if err != nil {
			return weatherCache{}, fmt.Errorf("open weather cache: %w", err)
		}
		return weatherCache{cache: store, ready: store, close: store.Close}, nil
	default:
		return weatherCache{close: noop}, nil
	}
}

func weatherOptions(cfg *config.Config) openmeteo.Options {
	return openmeteo.Options{
		BaseURL:       cfg.WeatherURL,
		Timeout:       cfg.WeatherTimeout,
		Retries:       cfg.WeatherRetries,
		BackoffFactor: cfg.WeatherBackoffFactor,
	}
}

func newWeatherClient(cfg *config.Config, rc openmeteo.ResponseCache, metrics *observability.Metrics, logger *slog.Logger) *openmeteo.Client {
	return openmeteo.NewClient(weatherOptions(cfg), rc, metrics, logger)
}

// submitBudget is the longest a submission can spend on geocoding, forecast
// retries, and publishing.
func submitBudget(cfg *config.Config) time.Duration {
	budget := cfg.GeocoderTimeout + openmeteo.RetryBudget(weatherOptions(cfg))
	if cfg.KafkaEnabled {
		budget += cfg.KafkaWriteTimeout
	}
	return budget
}

// checkSubmitBudget rejects a write timeout that would drop the connection
// before a slow submission renders. The server cuts submissions off at nine
// tenths of HTTP_WRITE_TIMEOUT.
func checkSubmitBudget(cfg *config.Config) error {
	budget := submitBudget(cfg)
	if limit := cfg.HTTPWriteTimeout - cfg.HTTPWriteTimeout/10; budget > limit {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT %s is too short: submissions may take %s (geocoding, %d forecast retries, publishing); raise it above %s",
			cfg.HTTPWriteTimeout, budget, cfg.WeatherRetries, budget*10/9)
	}
	return nil
}
