package views

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/field-trial-form/internal/domain"
)

// PreviewRows is how many forecast rows the page shows before the download link.
const PreviewRows = 5

const (
	placeholder  = "n/a"
	mapSpan      = 0.01
	osmEmbedBase = "https://www.openstreetmap.org/export/embed.html"
)

// Page is the view model for the trial form.
type Page struct {
	Form       domain.FormInput
	WeatherYes bool
	MinStart   string
	MinEnd     string
	Validation string
	Submitted  bool
	Summary    *Summary
}

// Summary describes an accepted trial.
type Summary struct {
	Banner          string
	StartDate       string
	EndDate         string
	Latitude        string
	Longitude       string
	Address         string
	LocationWarning string
	MapURL          string
	ShowWeather     bool
	WeatherError    string
	Preview         []PreviewRow
	TotalRows       int
}

// PreviewRow is one formatted forecast row.
type PreviewRow struct {
	Date          string
	Temperature2m string
	CloudCover    string
	Precipitation string
}

// NewPage builds the view model for a session.
func NewPage(state domain.SessionState) Page {
	p := Page{
		Form:       state.Form,
		WeatherYes: state.Form.Weather == domain.WeatherYes,
		MinStart:   domain.MinStartDate.Format(domain.DateLayout),
		MinEnd:     domain.MinStartDate.Format(domain.DateLayout),
		Submitted:  state.Submitted,
	}
	if start, err := time.Parse(domain.DateLayout, state.Form.StartDate); err == nil && !start.Before(domain.MinStartDate) {
		p.MinEnd = start.Format(domain.DateLayout)
	}
	if state.Validation != nil {
		p.Validation = state.Validation.Message
	}
	if state.Submitted {
		p.Summary = newSummary(state)
	}
	return p
}

func newSummary(state domain.SessionState) *Summary {
	r := state.Record
	s := &Summary{
		Banner:    fmt.Sprintf("Trial '%s' recorded successfully!", r.Name),
		StartDate: r.StartDate.Format(domain.DateLayout),
		EndDate:   r.EndDate.Format(domain.DateLayout),
		Latitude:  placeholder,
		Longitude: placeholder,
	}

	switch state.Location.Status {
	case domain.StatusResolved:
		c := state.Location.Coordinates
		s.Latitude = formatCoord(c.Lat)
		s.Longitude = formatCoord(c.Lon)
		s.Address = state.Location.DisplayName
		s.MapURL = MapURL(c)
	case domain.StatusUnavailable:
		s.LocationWarning = "The location service is unavailable, so the map and weather data could not be loaded."
	default:
		s.LocationWarning = fmt.Sprintf("Could not find coordinates for postcode '%s'. Map and weather data are unavailable.", r.Postcode)
	}

	if r.WantsWeather && state.Location.Resolved() {
		s.ShowWeather = true
		s.WeatherError = state.WeatherError
		if state.Weather != nil {
			s.TotalRows = state.Weather.Len()
			for _, row := range state.Weather.Head(PreviewRows) {
				s.Preview = append(s.Preview, PreviewRow{
					Date:          row.Time.UTC().Format(domain.CSVTimeLayout),
					Temperature2m: previewValue(row.Temperature2m),
					CloudCover:    previewValue(row.CloudCover),
					Precipitation: previewValue(row.Precipitation),
				})
			}
		}
	}
	return s
}

// MapURL returns an OpenStreetMap embed centred on c with a marker.
func MapURL(c domain.Coordinates) string {
	bbox := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", c.Lon-mapSpan, c.Lat-mapSpan, c.Lon+mapSpan, c.Lat+mapSpan)
	q := url.Values{}
	q.Set("bbox", bbox)
	q.Set("layer", "mapnik")
	q.Set("marker", formatCoord(c.Lat)+","+formatCoord(c.Lon))
	return osmEmbedBase + "?" + q.Encode()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func previewValue(v float64) string {
	if s := domain.FormatValue(v); s != "" {
		return s
	}
	return placeholder
}
