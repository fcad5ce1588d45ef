package domain

import (
	"context"
	"log/slog"
)

// Place describes where a segment starts, for display next to the map.
type Place struct {
	Name       string  `json:"name,omitempty"`
	Address    string  `json:"address,omitempty"`
	Region     string  `json:"region,omitempty"`
	Country    string  `json:"country,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source"` // "reverse", "original", "failed"
}

// DescribePlace reverse geocodes the first locate of a segment. A nil
// geocoder, an empty answer or an error all degrade to a Place without a
// name; the error is logged and never returned.
func DescribePlace(ctx context.Context, s SegmentSummary, geocoder Geocoder, logger *slog.Logger) Place {
	if geocoder == nil {
		return Place{Source: "original"}
	}

	lat, lon := s.Start.Latitude, s.Start.Longitude
	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"segment", s.SegmentID,
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return Place{Source: "failed"}
	}
	if result.FormattedAddress == "" {
		return Place{Source: "original"}
	}
	return Place{
		Name:       result.PlaceName,
		Address:    result.FormattedAddress,
		Region:     result.Region,
		Country:    result.CountryCode,
		Confidence: result.Confidence,
		Source:     "reverse",
	}
}
