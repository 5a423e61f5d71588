package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/ilyakaznacheev/cleanenv"
)

// Supported providers and cache backends.
const (
	ProviderNominatim = "nominatim"
	ProviderMapbox    = "mapbox"

	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Config holds all service settings, populated from environment variables
// and, optionally, a YAML file.
type Config struct {
	HTTPAddr         string        `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"90s"`
	LogLevel         string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat        string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	SessionTTL       time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"30m"`

	// Geocoding configuration.
	GeocoderProvider   string        `yaml:"geocoder_provider" env:"GEOCODER_PROVIDER" env-default:"nominatim"`
	GeocoderTimeout    time.Duration `yaml:"geocoder_timeout" env:"GEOCODER_TIMEOUT" env-default:"5s"`
	GeocoderCacheSize  int           `yaml:"geocoder_cache_size" env:"GEOCODER_CACHE_SIZE" env-default:"1000"`
	NominatimURL       string        `yaml:"nominatim_url" env:"NOMINATIM_URL" env-default:"https://nominatim.openstreetmap.org"`
	NominatimUserAgent string        `yaml:"nominatim_user_agent" env:"NOMINATIM_USER_AGENT" env-default:"field-trial-form"`
	MapboxURL          string        `yaml:"mapbox_url" env:"MAPBOX_URL" env-default:"https://api.mapbox.com/geocoding/v5/mapbox.places"`
	MapboxToken        string        `yaml:"mapbox_token" env:"MAPBOX_TOKEN"`

	// Open-Meteo forecast configuration.
	WeatherURL           string        `yaml:"weather_url" env:"WEATHER_URL" env-default:"https://api.open-meteo.com"`
	WeatherTimeout       time.Duration `yaml:"weather_timeout" env:"WEATHER_TIMEOUT" env-default:"10s"`
	WeatherRetries       int           `yaml:"weather_retries" env:"WEATHER_RETRIES" env-default:"5"`
	WeatherBackoffFactor float64       `yaml:"weather_backoff_factor" env:"WEATHER_BACKOFF_FACTOR" env-default:"0.2"`
	WeatherCacheBackend  string        `yaml:"weather_cache_backend" env:"WEATHER_CACHE_BACKEND" env-default:"sqlite"`
	WeatherCachePath     string        `yaml:"weather_cache_path" env:"WEATHER_CACHE_PATH" env-default:".cache/weather.sqlite"`
	WeatherCacheTTL      time.Duration `yaml:"weather_cache_ttl" env:"WEATHER_CACHE_TTL" env-default:"1h"`
	WeatherCacheSize     int           `yaml:"weather_cache_size" env:"WEATHER_CACHE_SIZE" env-default:"256"`

	// Kafka publishing of accepted trials.
	KafkaEnabled bool     `yaml:"kafka_enabled" env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC" env-default:"trial-records"`
	// KafkaWriteTimeout bounds one publish, broker retries included.
	KafkaWriteTimeout time.Duration `yaml:"kafka_write_timeout" env:"KAFKA_WRITE_TIMEOUT" env-default:"5s"`
}

// Load reads configuration from environment variables, applying defaults
// where unset. When path is non-empty the YAML file is read first and the
// environment overrides it.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.KafkaBrokers = sharedcfg.ParseBrokers(strings.Join(cfg.KafkaBrokers, ","))
	cfg.KafkaTopic = strings.TrimSpace(cfg.KafkaTopic)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (allowed: json, text)", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid SHUTDOWN_TIMEOUT: must be positive")
	}
	if c.HTTPWriteTimeout <= 0 {
		return errors.New("invalid HTTP_WRITE_TIMEOUT: must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("invalid SESSION_TTL: must be positive")
	}

	switch c.GeocoderProvider {
	case ProviderNominatim:
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return fmt.Errorf("invalid GEOCODER_PROVIDER %q (allowed: nominatim, mapbox)", c.GeocoderProvider)
	}
	if c.GeocoderTimeout <= 0 {
		return errors.New("invalid GEOCODER_TIMEOUT: must be positive")
	}
	if c.GeocoderCacheSize <= 0 {
		return errors.New("invalid GEOCODER_CACHE_SIZE: must be positive")
	}

	if c.WeatherTimeout <= 0 {
		return errors.New("invalid WEATHER_TIMEOUT: must be positive")
	}
	if c.WeatherRetries < 0 {
		return errors.New("invalid WEATHER_RETRIES: must not be negative")
	}
	if c.WeatherBackoffFactor < 0 {
		return errors.New("invalid WEATHER_BACKOFF_FACTOR: must not be negative")
	}
	switch c.WeatherCacheBackend {
	case CacheNone:
	case CacheMemory, CacheSQLite:
		if c.WeatherCacheTTL <= 0 {
			return errors.New("invalid WEATHER_CACHE_TTL: must be positive")
		}
		if c.WeatherCacheBackend == CacheMemory && c.WeatherCacheSize <= 0 {
			return errors.New("invalid WEATHER_CACHE_SIZE: must be positive")
		}
		if c.WeatherCacheBackend == CacheSQLite && c.WeatherCachePath == "" {
			return errors.New("WEATHER_CACHE_PATH is required for the sqlite cache")
		}
	default:
		return fmt.Errorf("invalid WEATHER_CACHE_BACKEND %q (allowed: memory, sqlite, none)", c.WeatherCacheBackend)
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
		if c.KafkaWriteTimeout <= 0 {
			return errors.New("invalid KAFKA_WRITE_TIMEOUT: must be positive")
		}
	}
	return nil
}
