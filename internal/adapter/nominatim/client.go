// Package nominatim implements domain.Geocoder against the OpenStreetMap
// Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/adapter/restclient"
	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/observability"
	"resty.dev/v3"
)

const provider = "nominatim"

// Client implements domain.Geocoder. Nominatim's usage policy requires an
// identifying User-Agent on every request.
type Client struct {
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Nominatim client against baseURL.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		http:    restclient.New(baseURL, timeout, userAgent),
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode returns the first Nominatim match for query.
func (c *Client) Geocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		Get("/search")
	c.metrics.GeocodeAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		if restclient.IsTimeout(err) {
			c.metrics.GeocodeRequests.WithLabelValues(provider, "timeout").Inc()
			return domain.GeocodingResult{}, fmt.Errorf("nominatim %q: %w", query, domain.ErrGeocodeTimeout)
		}
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("nominatim search request: %w", err)
	}

	if resp.IsError() {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("nominatim API error: %s", resp.Status())
	}

	var places []place
	if err := json.Unmarshal(resp.Bytes(), &places); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(places) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(provider, "not_found").Inc()
		c.logger.Debug("nominatim returned no match", "query", query)
		return domain.GeocodingResult{}, nil
	}

	p := places[0]
	c.metrics.GeocodeRequests.WithLabelValues(provider, "found").Inc()
	return domain.GeocodingResult{
		Found:            true,
		Coordinates:      domain.Coordinates{Lat: p.Lat, Lon: p.Lon},
		FormattedAddress: p.DisplayName,
	}, nil
}

// place is one entry of the /search JSON array. Coordinates arrive as
// decimal strings.
type place struct {
	Lat         float64 `json:"lat,string"`
	Lon         float64 `json:"lon,string"`
	DisplayName string  `json:"display_name"`
}
