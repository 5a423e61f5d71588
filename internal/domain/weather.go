package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a provider's hourly window cannot be
// shaped into a contiguous series.
var ErrInvalidWindow = errors.New("invalid forecast window")

// defaultInterval is assumed when a window holds a single instant.
const defaultInterval = time.Hour

// HourlyWindow is the time range covered by an hourly forecast. Start is
// inclusive and End exclusive.
type HourlyWindow struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// Rows returns the number of steps in the window.
func (w HourlyWindow) Rows() int {
	if w.Interval <= 0 || !w.End.After(w.Start) {
		return 0
	}
	return int(w.End.Sub(w.Start) / w.Interval)
}

// WindowFromInstants derives the window from the ordered instants a provider
// returned. The interval is the first step; every instant must sit exactly
// one interval after its predecessor.
func WindowFromInstants(instants []time.Time) (HourlyWindow, error) {
	if len(instants) == 0 {
		return HourlyWindow{}, fmt.Errorf("%w: no instants", ErrInvalidWindow)
	}

	interval := defaultInterval
	if len(instants) > 1 {
		interval = instants[1].Sub(instants[0])
	}
	if interval <= 0 {
		return HourlyWindow{}, fmt.Errorf("%w: non-positive interval %s", ErrInvalidWindow, interval)
	}

	start := instants[0].UTC()
	for i, ts := range instants {
		want := start.Add(time.Duration(i) * interval)
		if !ts.Equal(want) {
			return HourlyWindow{}, fmt.Errorf("%w: instant %d is %s, want %s", ErrInvalidWindow, i, ts.UTC().Format(time.RFC3339), want.Format(time.RFC3339))
		}
	}

	return HourlyWindow{
		Start:    start,
		End:      start.Add(time.Duration(len(instants)) * interval),
		Interval: interval,
	}, nil
}

// WeatherRow is one hourly observation of the forecast.
type WeatherRow struct {
	Time          time.Time
	Temperature2m float64
	CloudCover    float64
	Precipitation float64
}

// HourlyWeatherSeries is a contiguous, ascending hourly forecast.
type HourlyWeatherSeries struct {
	Window HourlyWindow
	Rows   []WeatherRow
}

// NewHourlySeries shapes parallel per-variable arrays into rows spanning the
// window. Each array must hold exactly window.Rows() values.
func NewHourlySeries(window HourlyWindow, temperature, cloudCover, precipitation []float64) (HourlyWeatherSeries, error) {
	n := window.Rows()
	if n == 0 {
		return HourlyWeatherSeries{}, fmt.Errorf("%w: empty window %s..%s step %s", ErrInvalidWindow, window.Start, window.End, window.Interval)
	}
	if window.End.Sub(window.Start)%window.Interval != 0 {
		return HourlyWeatherSeries{}, fmt.Errorf("%w: window is not a whole number of %s steps", ErrInvalidWindow, window.Interval)
	}
	variables := []struct {
		name   string
		values []float64
	}{
		{"temperature_2m", temperature},
		{"cloud_cover", cloudCover},
		{"precipitation", precipitation},
	}
	for _, v := range variables {
		if len(v.values) != n {
			return HourlyWeatherSeries{}, fmt.Errorf("%w: %s has %d values, want %d", ErrInvalidWindow, v.name, len(v.values), n)
		}
	}

	start := window.Start.UTC()
	rows := make([]WeatherRow, n)
	for i := range rows {
		rows[i] = WeatherRow{
			Time:          start.Add(time.Duration(i) * window.Interval),
			Temperature2m: temperature[i],
			CloudCover:    cloudCover[i],
			Precipitation: precipitation[i],
		}
	}
	return HourlyWeatherSeries{Window: window, Rows: rows}, nil
}

// Len returns the number of rows.
func (s HourlyWeatherSeries) Len() int {
	return len(s.Rows)
}

// Head returns at most the first n rows.
func (s HourlyWeatherSeries) Head(n int) []WeatherRow {
	if n > len(s.Rows) {
		n = len(s.Rows)
	}
	if n < 0 {
		n = 0
	}
	return s.Rows[:n]
}
