package domain

import (
	"context"
	"log/slog"
)

// Place descriptions used when a lookup cannot produce a name.
const (
	UnknownLocation     = "Unknown Location"
	LocationUnavailable = "Location Unavailable"
)

// PlaceResult contains place details returned by a reverse geocoding provider.
type PlaceResult struct {
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// PlaceLookup converts coordinates to place details.
type PlaceLookup interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (PlaceResult, error)
}

// DescribePlace returns a human-readable description for a point. A nil lookup
// or a failed call yields LocationUnavailable; an empty result yields
// UnknownLocation.
func DescribePlace(ctx context.Context, lookup PlaceLookup, at Geo, logger *slog.Logger) string {
	if lookup == nil {
		return LocationUnavailable
	}
	result, err := lookup.ReverseGeocode(ctx, at.Lat, at.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", at.Lat,
			"lon", at.Lon,
			"error", err,
		)
		return LocationUnavailable
	}
	if result.FormattedAddress == "" {
		return UnknownLocation
	}
	return result.FormattedAddress
}
