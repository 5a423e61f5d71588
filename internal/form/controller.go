// Package form drives the trial form: validation, postcode lookup, optional
// forecast enrichment, and the session state transitions that follow.
package form

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
)

// WeatherUnavailableMessage is shown when the forecast could not be fetched.
const WeatherUnavailableMessage = "Weather data could not be retrieved right now. Please try again later."

// WeatherFetcher returns the hourly forecast for a location.
type WeatherFetcher interface {
	Fetch(ctx context.Context, coords domain.Coordinates) (domain.HourlyWeatherSeries, error)
}

// Publisher announces accepted trials.
type Publisher interface {
	Publish(ctx context.Context, event domain.TrialRecorded) error
}

// Controller handles the form's two actions.
type Controller struct {
	geocoder  domain.Geocoder
	weather   WeatherFetcher
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Controller. A nil publisher disables event publishing.
func New(geocoder domain.Geocoder, weather WeatherFetcher, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	return &Controller{
		geocoder:  geocoder,
		weather:   weather,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// Submit validates input and, when it passes, resolves the postcode and
// fetches the forecast if one was requested. Enrichment failures never
// reject a valid submission.
func (c *Controller) Submit(ctx context.Context, state domain.SessionState, input domain.FormInput) domain.SessionState {
	record, verr := domain.Validate(input)
	if verr != nil {
		c.metrics.Submissions.WithLabelValues("rejected").Inc()
		c.metrics.ValidationErrors.WithLabelValues(verr.Field).Inc()
		c.logger.Debug("submission rejected", "field", verr.Field)
		return domain.Apply(state, domain.SubmitRejected{Input: input, Err: verr})
	}

	location := domain.ResolvePostcode(ctx, c.geocoder, record.Postcode, c.logger)

	action := domain.SubmitAccepted{
		Input:    input,
		Record:   record,
		Location: location,
	}
	if record.WantsWeather && location.Resolved() {
		action.Weather, action.WeatherError = c.fetchWeather(ctx, location.Coordinates)
	}

	next := domain.Apply(state, action)
	c.metrics.Submissions.WithLabelValues("accepted").Inc()
	c.logger.Info("trial recorded",
		"trial_id", record.ID(),
		"location_status", location.Status,
		"weather_rows", weatherRows(next.Weather),
	)

	c.publish(ctx, domain.NewTrialRecorded(record, location, next.Weather))
	return next
}

// Reset returns the form to editing.
func (c *Controller) Reset(state domain.SessionState) domain.SessionState {
	return domain.Apply(state, domain.Reset{})
}

func (c *Controller) fetchWeather(ctx context.Context, coords domain.Coordinates) (*domain.HourlyWeatherSeries, string) {
	if c.weather == nil {
		return nil, WeatherUnavailableMessage
	}
	series, err := c.weather.Fetch(ctx, coords)
	if err != nil {
		c.logger.Error("weather fetch failed", "lat", coords.Lat, "lon", coords.Lon, "error", err)
		return nil, WeatherUnavailableMessage
	}
	return &series, ""
}

func (c *Controller) publish(ctx context.Context, event domain.TrialRecorded) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.metrics.EventsPublished.WithLabelValues("error").Inc()
		c.logger.Warn("publish trial event failed", "trial_id", event.ID, "error", err)
		return
	}
	c.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func weatherRows(s *domain.HourlyWeatherSeries) int {
	if s == nil {
		return 0
	}
	return s.Len()
}
