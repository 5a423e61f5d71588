package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/adapter/restclient"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"resty.dev/v3"
)

const provider = "mapbox"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token   string
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Mapbox geocoding client against baseURL.
func NewClient(baseURL, token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		http:    restclient.New(baseURL, timeout, ""),
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode converts a postcode or place name to coordinates.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_token": c.token,
			"limit":        "1",
			"types":        "postcode,place,locality",
		}).
		Get("/" + url.PathEscape(query) + ".json")
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		if restclient.IsTimeout(err) {
			c.metrics.GeocodeRequests.WithLabelValues(provider, "timeout").Inc()
			return domain.GeocodingResult{}, fmt.Errorf("mapbox %q: %w", query, domain.ErrGeocodeTimeout)
		}
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("mapbox geocode request: %w", err)
	}

	if resp.IsError() {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode(), resp.Bytes())
	}

	var mapboxResp response
	if err := json.Unmarshal(resp.Bytes(), &mapboxResp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "not_found").Inc()
		c.logger.Debug("mapbox returned no match", "query", query)
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	c.metrics.GeocodeRequests.WithLabelValues(provider, "found").Inc()
	return domain.GeocodingResult{
		Found:            true,
		Coordinates:      domain.Coordinates{Lat: f.Center[1], Lon: f.Center[0]},
		FormattedAddress: f.PlaceName,
	}, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
