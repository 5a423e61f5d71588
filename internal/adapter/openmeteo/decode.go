package openmeteo

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/domain"
)

// forecastResponse is the subset of /v1/forecast used here. Values are
// pointers so JSON nulls survive decoding.
type forecastResponse struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Timezone         string  `json:"timezone"`
	UTCOffsetSeconds int     `json:"utc_offset_seconds"`
	Hourly           struct {
		Time          []int64    `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
		CloudCover    []*float64 `json:"cloud_cover"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

func decodeSeries(body []byte) (domain.HourlyWeatherSeries, error) {
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.HourlyWeatherSeries{}, fmt.Errorf("decode forecast: %w", err)
	}

	instants := make([]time.Time, len(resp.Hourly.Time))
	for i, ts := range resp.Hourly.Time {
		instants[i] = time.Unix(ts, 0).UTC()
	}

	window, err := domain.WindowFromInstants(instants)
	if err != nil {
		return domain.HourlyWeatherSeries{}, fmt.Errorf("shape forecast: %w", err)
	}

	series, err := domain.NewHourlySeries(window,
		values(resp.Hourly.Temperature2m),
		values(resp.Hourly.CloudCover),
		values(resp.Hourly.Precipitation),
	)
	if err != nil {
		return domain.HourlyWeatherSeries{}, fmt.Errorf("shape forecast: %w", err)
	}
	return series, nil
}

// values converts nullable readings, mapping null to NaN.
func values(in []*float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}
