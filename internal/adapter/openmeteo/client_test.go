package openmeteo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/cache"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bristol = domain.Coordinates{Lat: 51.45, Lon: -2.59}

// forecastBody renders an hourly response of n rows starting at start.
func forecastBody(start time.Time, n int) string {
	times := make([]string, n)
	temps := make([]string, n)
	clouds := make([]string, n)
	precip := make([]string, n)
	for i := range n {
		times[i] = fmt.Sprint(start.Add(time.Duration(i) * time.Hour).Unix())
		temps[i] = fmt.Sprintf("%.1f", 5+float64(i)/10)
		clouds[i] = fmt.Sprint(i % 100)
		precip[i] = "0.0"
	}
	return fmt.Sprintf(`{"latitude":51.45,"longitude":-2.59,"timezone":"Europe/London","utc_offset_seconds":0,`+
		`"hourly":{"time":[%s],"temperature_2m":[%s],"cloud_cover":[%s],"precipitation":[%s]}}`,
		strings.Join(times, ","), strings.Join(temps, ","), strings.Join(clouds, ","), strings.Join(precip, ","))
}

var forecastStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testClient(baseURL string, retries int, rc ResponseCache) *Client {
	return NewClient(Options{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		Retries:       retries,
		BackoffFactor: 0.001,
	}, rc, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, forecastPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "51.45", q.Get("latitude"))
		assert.Equal(t, "-2.59", q.Get("longitude"))
		assert.Equal(t, hourlyVariables, q.Get("hourly"))
		assert.Equal(t, "auto", q.Get("timezone"))
		assert.Equal(t, "unixtime", q.Get("timeformat"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, forecastBody(forecastStart, 48))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0, nil)
	series, err := c.Fetch(context.Background(), bristol)
	require.NoError(t, err)

	require.Equal(t, 48, series.Len())
	assert.Equal(t, series.Window.Rows(), series.Len())
	assert.Equal(t, forecastStart, series.Window.Start)
	assert.Equal(t, forecastStart.Add(48*time.Hour), series.Window.End)
	for i := 1; i < series.Len(); i++ {
		assert.Equal(t, time.Hour, series.Rows[i].Time.Sub(series.Rows[i-1].Time))
	}
	assert.InDelta(t, 5.0, series.Rows[0].Temperature2m, 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.WeatherRequests.WithLabelValues("success")), 0)
}

func TestClient_Fetch_NullValuesBecomeNaN(t *testing.T) {
	body := fmt.Sprintf(`{"hourly":{"time":[%d,%d],"temperature_2m":[4.2,null],"cloud_cover":[null,80],"precipitation":[0.1,0.2]}}`,
		forecastStart.Unix(), forecastStart.Add(time.Hour).Unix())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	series, err := testClient(srv.URL, 0, nil).Fetch(context.Background(), bristol)
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.True(t, math.IsNaN(series.Rows[1].Temperature2m))
	assert.True(t, math.IsNaN(series.Rows[0].CloudCover))
	assert.InDelta(t, 80, series.Rows[1].CloudCover, 0)
}

func TestClient_Fetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, forecastBody(forecastStart, 24))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5, nil)
	series, err := c.Fetch(context.Background(), bristol)
	require.NoError(t, err)
	assert.Equal(t, 24, series.Len())
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 2, testutil.ToFloat64(c.metrics.WeatherRetries), 0)
}

func TestClient_Fetch_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5, nil)
	_, err := c.Fetch(context.Background(), bristol)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 retries")
	assert.Equal(t, int32(6), calls.Load(), "one attempt plus five retries")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.WeatherRequests.WithLabelValues("error")), 0)
}

func TestClient_Fetch_ClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5, nil).Fetch(context.Background(), domain.Coordinates{Lat: 123})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "Latitude must be in range")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Fetch_CachedResponseIsIdentical(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, forecastBody(forecastStart, 72))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0, cache.NewResponses(8, time.Hour, nil))

	first, err := c.Fetch(context.Background(), bristol)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), bristol)
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, first.WriteCSV(&a))
	require.NoError(t, second.WriteCSV(&b))
	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, int32(1), calls.Load(), "second fetch is served from cache")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.WeatherCache.WithLabelValues("hit")), 0)
}

func TestClient_Fetch_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"hourly":{"time":[]}}`)
			return
		}
		_, _ = io.WriteString(w, forecastBody(forecastStart, 24))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0, cache.NewResponses(8, time.Hour, nil))

	_, err := c.Fetch(context.Background(), bristol)
	require.ErrorIs(t, err, domain.ErrInvalidWindow)

	series, err := c.Fetch(context.Background(), bristol)
	require.NoError(t, err)
	assert.Equal(t, 24, series.Len())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_ContextCanceledStopsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, Retries: 5, BackoffFactor: 10},
		nil, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, bristol)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), calls.Load(), "first retry is immediate, the second waits 20s")
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 0},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{6, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry %d", tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, backoffDelay(0.2, tt.n))
		})
	}
	assert.Zero(t, backoffDelay(0, 3))
}

func TestRetryBudget(t *testing.T) {
	opts := Options{Timeout: 10 * time.Second, Retries: 5, BackoffFactor: 0.2}
	// six attempts plus 0 + 0.4 + 0.8 + 1.6 + 3.2s of waiting
	assert.Equal(t, 66*time.Second, RetryBudget(opts))

	assert.Equal(t, 10*time.Second, RetryBudget(Options{Timeout: 10 * time.Second}))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(fmt.Errorf("forecast request: %w", io.ErrUnexpectedEOF)))
	for _, code := range []int{500, 502, 504} {
		assert.True(t, retryable(&APIError{StatusCode: code}), code)
	}
	for _, code := range []int{400, 401, 404, 429, 501, 503} {
		assert.False(t, retryable(&APIError{StatusCode: code}), code)
	}
}

func TestClient_Fetch_ServiceUnavailableFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5, nil)
	_, err := c.Fetch(context.Background(), bristol)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, testutil.ToFloat64(c.metrics.WeatherRetries))
}

func TestCacheKey_IsCanonical(t *testing.T) {
	c := testClient("https://api.open-meteo.com/", 0, nil)
	key := c.cacheKey(queryParams(bristol))
	assert.Equal(t,
		"https://api.open-meteo.com/v1/forecast?hourly=temperature_2m%2Ccloud_cover%2Cprecipitation&latitude=51.45&longitude=-2.59&timeformat=unixtime&timezone=auto",
		key)
}
