package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DateLayout is the wire format of the form's date inputs.
const DateLayout = "2006-01-02"

// Weather opt-in choices offered by the form.
const (
	WeatherNo  = "No"
	WeatherYes = "Yes"
)

// FormInput holds the raw values submitted by the trial form.
type FormInput struct {
	Name      string
	StartDate string
	EndDate   string
	Postcode  string
	Weather   string
}

// TrialRecord is a validated trial submission. It is never mutated after
// Validate returns it.
type TrialRecord struct {
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Postcode     string
	WantsWeather bool
}

// ID returns a deterministic identifier for the record so that resubmitting
// the same trial yields the same downstream key.
func (r TrialRecord) ID() string {
	key := fmt.Sprintf("%s|%s|%s|%s", r.Name, r.StartDate.Format(DateLayout), r.EndDate.Format(DateLayout), r.Postcode)
	sum := sha256.Sum256([]byte(key))
	return "trial-" + hex.EncodeToString(sum[:8])
}

// TrialRecorded is the event published after a trial is accepted.
type TrialRecorded struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	Postcode       string           `json:"postcode"`
	WantsWeather   bool             `json:"wants_weather"`
	LocationStatus ResolutionStatus `json:"location_status"`
	Coordinates    *Coordinates     `json:"coordinates,omitempty"`
	WeatherRows    int              `json:"weather_rows"`
	RecordedAt     time.Time        `json:"recorded_at"`
}

// NewTrialRecorded builds the event for an accepted submission. weather may be nil.
func NewTrialRecorded(record TrialRecord, loc Resolution, weather *HourlyWeatherSeries) TrialRecorded {
	event := TrialRecorded{
		ID:             record.ID(),
		Name:           record.Name,
		StartDate:      record.StartDate.Format(DateLayout),
		EndDate:        record.EndDate.Format(DateLayout),
		Postcode:       record.Postcode,
		WantsWeather:   record.WantsWeather,
		LocationStatus: loc.Status,
		RecordedAt:     clock.Now().UTC(),
	}
	if loc.Resolved() {
		coords := loc.Coordinates
		event.Coordinates = &coords
	}
	if weather != nil {
		event.WeatherRows = weather.Len()
	}
	return event
}
