package domain

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// metersPerPixelAtZoom0 is the web-mercator ground resolution at the equator.
const metersPerPixelAtZoom0 = 156543.03

// HaversineKm returns the great-circle distance between two coordinates in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// ZoomForDistance picks a map zoom level for the distance the analyst needs
// to see around a locate.
func ZoomForDistance(km float64) int {
	switch {
	case km > 200:
		return 5
	case km > 50:
		return 6
	case km > 20:
		return 7
	case km > 10:
		return 8
	default:
		return 9
	}
}

// StepRadius is the point radius (meters) paired with ZoomForDistance.
func StepRadius(zoom int) float64 {
	return 100 * float64(14-zoom+1)
}

// ZoomForSpan fits a span of km into a map of widthPx pixels, capped at 10.
func ZoomForSpan(km float64, widthPx int) float64 {
	meters := km * 1000
	if meters <= 0 || widthPx <= 0 || math.IsNaN(meters) {
		return 10
	}
	return math.Min(math.Log2(float64(widthPx)*metersPerPixelAtZoom0/meters)-1, 10)
}

// ScaledRadius shrinks the point radius as the zoom level grows.
func ScaledRadius(zoom float64) float64 {
	return 1000 / math.Pow(1.1, zoom)
}

// NeighborSegments returns the segment ids displayed around segment: the
// previous, the current and the next one, trimmed at both ends.
func NeighborSegments(segment, maxSegment int) []int {
	switch {
	case maxSegment <= 0:
		return []int{0}
	case segment <= 0:
		return []int{0, 1}
	case segment >= maxSegment:
		return []int{maxSegment - 1, maxSegment}
	default:
		return []int{segment - 1, segment, segment + 1}
	}
}

// FormatMinutes renders a duration in the coarsest whole unit.
func FormatMinutes(minutes float64) string {
	if math.IsNaN(minutes) {
		return "<1 min"
	}
	days := math.Floor(minutes / 1440)
	hours := math.Floor(minutes / 60)
	switch {
	case days > 0:
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%.0f days", days)
	case hours > 0:
		if hours == 1 {
			return "1 hr"
		}
		return fmt.Sprintf("%.0f hrs", hours)
	case minutes <= 1:
		return "1 min"
	default:
		return fmt.Sprintf("%.0f mins", minutes)
	}
}

// FormatSpeed renders km per minute, treating sub-minute deltas as one minute.
func FormatSpeed(km, minutes float64) string {
	switch {
	case math.IsNaN(km) || math.IsNaN(minutes):
		return "0.0km / min"
	case minutes <= 1:
		return fmt.Sprintf("%.1fkm / min", km)
	default:
		return fmt.Sprintf("%.1fkm / min", km/minutes)
	}
}
