package domain

import (
	"context"
	"errors"
	"log/slog"
)

// ResolvePostcode looks up a postcode and folds every failure into the
// returned Resolution (graceful degradation). Timeouts count as not found;
// any other provider error is reported as unavailable.
func ResolvePostcode(ctx context.Context, geocoder Geocoder, postcode string, logger *slog.Logger) Resolution {
	if geocoder == nil {
		return Resolution{Status: StatusUnavailable}
	}

	result, err := geocoder.Geocode(ctx, postcode)
	if err != nil {
		if errors.Is(err, ErrGeocodeTimeout) {
			logger.Warn("geocoding timed out", "postcode", postcode, "error", err)
			return Resolution{Status: StatusNotFound}
		}
		logger.Warn("geocoding failed", "postcode", postcode, "error", err)
		return Resolution{Status: StatusUnavailable}
	}

	if !result.Found {
		logger.Info("postcode not found", "postcode", postcode)
		return Resolution{Status: StatusNotFound}
	}

	return Resolution{
		Status:      StatusResolved,
		Coordinates: result.Coordinates,
		DisplayName: result.FormattedAddress,
	}
}
