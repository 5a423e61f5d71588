package domain

import (
	"context"
	"errors"
)

// ErrGeocodeTimeout is returned by geocoding adapters when the provider did
// not answer within the configured timeout.
var ErrGeocodeTimeout = errors.New("geocoding request timed out")

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeocodingResult contains the first match returned by a geocoding provider.
type GeocodingResult struct {
	Found            bool
	Coordinates      Coordinates
	FormattedAddress string
}

// Geocoder resolves free-text location queries to coordinates.
type Geocoder interface {
	// Geocode returns the best match for query. A query with no match is
	// not an error: the result has Found set to false.
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}

// ResolutionStatus describes how a postcode lookup ended.
type ResolutionStatus string

const (
	StatusResolved    ResolutionStatus = "resolved"
	StatusNotFound    ResolutionStatus = "not_found"
	StatusUnavailable ResolutionStatus = "unavailable"
)

// Resolution is the outcome of resolving a trial's postcode. Coordinates are
// meaningful only when Status is StatusResolved.
type Resolution struct {
	Status      ResolutionStatus
	Coordinates Coordinates
	DisplayName string
}

// Resolved reports whether the postcode produced coordinates.
func (r Resolution) Resolved() bool {
	return r.Status == StatusResolved
}
