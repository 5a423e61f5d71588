package form_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/adapter/nominatim"
	"github.com/couchcryptid/field-trial-form/internal/adapter/openmeteo"
	"github.com/couchcryptid/field-trial-form/internal/cache"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/form"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) Geocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockWeather struct {
	series domain.HourlyWeatherSeries
	err    error
	calls  int
}

func (m *mockWeather) Fetch(_ context.Context, _ domain.Coordinates) (domain.HourlyWeatherSeries, error) {
	m.calls++
	return m.series, m.err
}

type mockPublisher struct {
	events []domain.TrialRecorded
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event domain.TrialRecorded) error {
	m.events = append(m.events, event)
	return m.err
}

// --- helpers ---

var bristol = domain.GeocodingResult{
	Found:            true,
	Coordinates:      domain.Coordinates{Lat: 51.45, Lon: -2.59},
	FormattedAddress: "Bristol, BS1 1AA, United Kingdom",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func greenhouseInput(weather string) domain.FormInput {
	return domain.FormInput{
		Name:      "Greenhouse Test A",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-10",
		Postcode:  "BS1 1AA",
		Weather:   weather,
	}
}

func hourlySeries(t *testing.T, n int) domain.HourlyWeatherSeries {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := domain.HourlyWindow{Start: start, End: start.Add(time.Duration(n) * time.Hour), Interval: time.Hour}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	series, err := domain.NewHourlySeries(window, vals, vals, vals)
	require.NoError(t, err)
	return series
}

// --- tests ---

func TestSubmit_MissingFieldRejected(t *testing.T) {
	tests := []struct {
		name  string
		clear func(*domain.FormInput)
		field string
	}{
		{"name", func(in *domain.FormInput) { in.Name = "" }, domain.FieldName},
		{"start date", func(in *domain.FormInput) { in.StartDate = "" }, domain.FieldStartDate},
		{"end date", func(in *domain.FormInput) { in.EndDate = "" }, domain.FieldEndDate},
		{"postcode", func(in *domain.FormInput) { in.Postcode = "  " }, domain.FieldPostcode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockGeocoder{result: bristol}
			wx := &mockWeather{}
			metrics := observability.NewMetricsForTesting()
			c := form.New(geo, wx, nil, discardLogger(), metrics)

			in := greenhouseInput(domain.WeatherYes)
			tt.clear(&in)
			state := c.Submit(context.Background(), domain.SessionState{}, in)

			assert.False(t, state.Submitted)
			require.NotNil(t, state.Validation)
			assert.Equal(t, tt.field, state.Validation.Field)
			assert.Equal(t, in, state.Form, "typed values are kept")
			assert.Zero(t, geo.calls, "no lookup for a rejected submission")
			assert.Zero(t, wx.calls)
			assert.InDelta(t, 1, testutil.ToFloat64(metrics.ValidationErrors.WithLabelValues(tt.field)), 0)
		})
	}
}

func TestSubmit_RejectedClearsPreviousResults(t *testing.T) {
	c := form.New(&mockGeocoder{result: bristol}, &mockWeather{series: hourlySeries(t, 24)}, nil, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))
	require.True(t, state.Submitted)
	require.True(t, state.HasWeather())

	in := greenhouseInput(domain.WeatherYes)
	in.Name = ""
	state = c.Submit(context.Background(), state, in)

	assert.False(t, state.Submitted)
	assert.Nil(t, state.Weather)
	assert.False(t, state.Location.Resolved())
}

func TestSubmit_GreenhouseScenario(t *testing.T) {
	geo := &mockGeocoder{result: bristol}
	wx := &mockWeather{series: hourlySeries(t, 240)}
	pub := &mockPublisher{}
	c := form.New(geo, wx, pub, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))

	assert.True(t, state.Submitted)
	assert.Nil(t, state.Validation)
	assert.True(t, state.Location.Resolved())
	assert.Equal(t, bristol.Coordinates, state.Location.Coordinates)
	require.True(t, state.HasWeather())
	assert.Equal(t, 240, state.Weather.Len())
	assert.Empty(t, state.WeatherError)

	require.Len(t, pub.events, 1)
	assert.Equal(t, state.Record.ID(), pub.events[0].ID)
	assert.Equal(t, 240, pub.events[0].WeatherRows)
}

func TestSubmit_WeatherNoSkipsFetch(t *testing.T) {
	for _, found := range []bool{true, false} {
		t.Run(fmt.Sprintf("found=%v", found), func(t *testing.T) {
			geo := &mockGeocoder{}
			if found {
				geo.result = bristol
			}
			wx := &mockWeather{series: hourlySeries(t, 24)}
			c := form.New(geo, wx, nil, discardLogger(), observability.NewMetricsForTesting())

			state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherNo))

			assert.True(t, state.Submitted)
			assert.Nil(t, state.Weather)
			assert.Zero(t, wx.calls)
		})
	}
}

func TestSubmit_UnresolvablePostcode(t *testing.T) {
	geo := &mockGeocoder{}
	wx := &mockWeather{series: hourlySeries(t, 24)}
	c := form.New(geo, wx, nil, discardLogger(), observability.NewMetricsForTesting())

	in := greenhouseInput(domain.WeatherYes)
	in.Postcode = "ZZZZZZ"
	state := c.Submit(context.Background(), domain.SessionState{}, in)

	assert.True(t, state.Submitted, "valid submissions are recorded even without a location")
	assert.Equal(t, domain.StatusNotFound, state.Location.Status)
	assert.Nil(t, state.Weather)
	assert.Empty(t, state.WeatherError)
	assert.Zero(t, wx.calls)
}

func TestSubmit_GeocoderTimeoutIsNotFound(t *testing.T) {
	geo := &mockGeocoder{err: fmt.Errorf("lookup: %w", domain.ErrGeocodeTimeout)}
	c := form.New(geo, &mockWeather{}, nil, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))

	assert.True(t, state.Submitted)
	assert.Equal(t, domain.StatusNotFound, state.Location.Status)
}

func TestSubmit_GeocoderFailureIsUnavailable(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("connection refused")}
	c := form.New(geo, &mockWeather{}, nil, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))

	assert.True(t, state.Submitted)
	assert.Equal(t, domain.StatusUnavailable, state.Location.Status)
	assert.Nil(t, state.Weather)
}

func TestSubmit_WeatherFailureIsReported(t *testing.T) {
	wx := &mockWeather{err: errors.New("fetch forecast after 5 retries: status 503")}
	c := form.New(&mockGeocoder{result: bristol}, wx, nil, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))

	assert.True(t, state.Submitted)
	assert.True(t, state.Location.Resolved())
	assert.Nil(t, state.Weather)
	assert.Equal(t, form.WeatherUnavailableMessage, state.WeatherError)
}

func TestSubmit_PublishFailureIsSwallowed(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()
	c := form.New(&mockGeocoder{result: bristol}, &mockWeather{}, pub, discardLogger(), metrics)

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherNo))

	assert.True(t, state.Submitted)
	assert.Len(t, pub.events, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("error")), 0)
}

func TestReset_AcceptsNewSubmission(t *testing.T) {
	c := form.New(&mockGeocoder{result: bristol}, &mockWeather{series: hourlySeries(t, 24)}, nil, discardLogger(), observability.NewMetricsForTesting())

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))
	require.True(t, state.Submitted)

	state = c.Reset(state)
	assert.False(t, state.Submitted)
	assert.Nil(t, state.Weather)
	assert.False(t, state.Location.Resolved())
	assert.Equal(t, greenhouseInput(domain.WeatherYes), state.Form)

	in := greenhouseInput(domain.WeatherNo)
	in.Name = "Field Plot B"
	state = c.Submit(context.Background(), state, in)
	assert.True(t, state.Submitted)
	assert.Equal(t, "Field Plot B", state.Record.Name)
}

// TestSubmit_GreenhouseScenario_Providers runs the scenario through the real
// adapters against stub provider servers and checks the CSV export.
func TestSubmit_GreenhouseScenario_Providers(t *testing.T) {
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat":"51.45","lon":"-2.59","display_name":"Bristol, BS1 1AA, United Kingdom"}]`)
	}))
	defer geoSrv.Close()

	const rows = 168
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "51.45", r.URL.Query().Get("latitude"))
		times, vals := make([]string, rows), make([]string, rows)
		for i := range rows {
			times[i] = fmt.Sprint(start.Add(time.Duration(i) * time.Hour).Unix())
			vals[i] = "1.5"
		}
		v := strings.Join(vals, ",")
		fmt.Fprintf(w, `{"hourly":{"time":[%s],"temperature_2m":[%s],"cloud_cover":[%s],"precipitation":[%s]}}`,
			strings.Join(times, ","), v, v, v)
	}))
	defer wxSrv.Close()

	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()
	geo := cache.NewCachedGeocoder(nominatim.NewClient(geoSrv.URL, "test", time.Second, metrics, logger), 10, metrics)
	wx := openmeteo.NewClient(openmeteo.Options{BaseURL: wxSrv.URL, Timeout: time.Second, Retries: 0}, nil, metrics, logger)
	c := form.New(geo, wx, nil, logger, metrics)

	state := c.Submit(context.Background(), domain.SessionState{}, greenhouseInput(domain.WeatherYes))

	require.True(t, state.Submitted)
	assert.InDelta(t, 51.45, state.Location.Coordinates.Lat, 1e-9)
	assert.InDelta(t, -2.59, state.Location.Coordinates.Lon, 1e-9)
	require.True(t, state.HasWeather())

	var buf bytes.Buffer
	require.NoError(t, state.Weather.WriteCSV(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, rows+1)
	assert.Equal(t, "date,temperature_2m,cloud_cover,precipitation", lines[0])
	assert.Equal(t, "2024-01-01 00:00:00+00:00,1.5,1.5,1.5", lines[1])
}
