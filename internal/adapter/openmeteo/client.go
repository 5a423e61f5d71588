// Package openmeteo fetches hourly forecasts from the Open-Meteo API with a
// response cache and retry/backoff on transient failures.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/adapter/restclient"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"resty.dev/v3"
)

const (
	forecastPath    = "/v1/forecast"
	hourlyVariables = "temperature_2m,cloud_cover,precipitation"
)

// MaxBackoff caps the wait between forecast retries.
const MaxBackoff = 5 * time.Second

// ResponseCache stores raw forecast bodies keyed by canonical request URL.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	Retries       int
	BackoffFactor float64
}

// Client fetches hourly forecasts. A nil cache disables response caching.
type Client struct {
	baseURL       string
	http          *resty.Client
	cache         ResponseCache
	retries       int
	backoffFactor float64
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(opts Options, cache ResponseCache, metrics *observability.Metrics, logger *slog.Logger) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		baseURL:       base,
		http:          restclient.New(base, opts.Timeout, ""),
		cache:         cache,
		retries:       opts.Retries,
		backoffFactor: opts.BackoffFactor,
		metrics:       metrics,
		logger:        logger,
	}
}

// APIError is a non-2xx answer from the forecast API.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("open-meteo API error: status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("open-meteo API error: status %d", e.StatusCode)
}

// Fetch returns the hourly forecast for coords.
func (c *Client) Fetch(ctx context.Context, coords domain.Coordinates) (domain.HourlyWeatherSeries, error) {
	params := queryParams(coords)
	key := c.cacheKey(params)

	if body, ok := c.cached(ctx, key); ok {
		series, err := decodeSeries(body)
		if err == nil {
			c.metrics.WeatherRequests.WithLabelValues("success").Inc()
			return series, nil
		}
		c.logger.Warn("discarding unreadable cached forecast", "key", key, "error", err)
	}

	body, err := c.fetchWithRetry(ctx, params)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.HourlyWeatherSeries{}, err
	}

	series, err := decodeSeries(body)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.HourlyWeatherSeries{}, err
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, body); err != nil {
			c.logger.Warn("forecast cache write failed", "key", key, "error", err)
		}
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return series, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("forecast cache read failed", "key", key, "error", err)
		ok = false
	}
	if !ok {
		c.metrics.WeatherCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.metrics.WeatherCache.WithLabelValues("hit").Inc()
	return body, true
}

// fetchWithRetry performs the request, retrying transport failures and
// retryable statuses up to c.retries times.
func (c *Client) fetchWithRetry(ctx context.Context, params map[string]string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.do(ctx, params)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch forecast: %w", ctx.Err())
		}
		if !retryable(err) || attempt >= c.retries {
			if attempt > 0 {
				return nil, fmt.Errorf("fetch forecast after %d retries: %w", attempt, err)
			}
			return nil, fmt.Errorf("fetch forecast: %w", err)
		}

		delay := backoffDelay(c.backoffFactor, attempt+1)
		c.logger.Warn("forecast request failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		c.metrics.WeatherRetries.Inc()
		if !retry.SleepWithContext(ctx, delay) {
			return nil, fmt.Errorf("fetch forecast: %w", ctx.Err())
		}
	}
}

func (c *Client) do(ctx context.Context, params map[string]string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(forecastPath)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return nil, &APIError{StatusCode: resp.StatusCode(), Reason: errorReason(resp.Bytes())}
	}
	return resp.Bytes(), nil
}

func (c *Client) cacheKey(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return c.baseURL + forecastPath + "?" + values.Encode()
}

func queryParams(coords domain.Coordinates) map[string]string {
	return map[string]string{
		"latitude":   strconv.FormatFloat(coords.Lat, 'f', -1, 64),
		"longitude":  strconv.FormatFloat(coords.Lon, 'f', -1, 64),
		"hourly":     hourlyVariables,
		"timezone":   "auto",
		"timeformat": "unixtime",
	}
}

// retryable reports whether a failed attempt may succeed if repeated.
// Transport errors and gateway-style 5xx answers qualify; rate limiting and
// 503 maintenance answers do not.
func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoffDelay returns the wait before the nth retry: none before the first,
// then factor * 2^(n-1) seconds capped at MaxBackoff.
func backoffDelay(factor float64, n int) time.Duration {
	if factor <= 0 || n <= 1 {
		return 0
	}
	seconds := factor * math.Pow(2, float64(n-1))
	if seconds >= MaxBackoff.Seconds() {
		return MaxBackoff
	}
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// RetryBudget is the longest Fetch can take on a cache miss: every attempt
// timing out plus every backoff wait.
func RetryBudget(opts Options) time.Duration {
	budget := time.Duration(opts.Retries+1) * opts.Timeout
	for n := 1; n <= opts.Retries; n++ {
		budget += backoffDelay(opts.BackoffFactor, n)
	}
	return budget
}

func errorReason(body []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Reason
}
