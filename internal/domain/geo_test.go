package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	assert.Zero(t, HaversineKm(40, -74, 40, -74))
	assert.InDelta(t, 111.195, HaversineKm(0, 0, 1, 0), 0.01)
	// New York to London.
	assert.InDelta(t, 5570, HaversineKm(40.7128, -74.0060, 51.5074, -0.1278), 10)
	assert.InDelta(t, HaversineKm(10, 20, 30, 40), HaversineKm(30, 40, 10, 20), 1e-9)
}

func TestZoomForDistance(t *testing.T) {
	tests := []struct {
		km   float64
		want int
	}{
		{500, 5}, {200.1, 5}, {200, 6}, {60, 6}, {30, 7}, {15, 8}, {10, 9}, {0, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZoomForDistance(tt.km), "km=%v", tt.km)
	}
	assert.Equal(t, 600.0, StepRadius(9))
	assert.Equal(t, 1000.0, StepRadius(5))
}

func TestZoomForSpan(t *testing.T) {
	assert.Equal(t, 10.0, ZoomForSpan(0, 800))
	assert.Equal(t, 10.0, ZoomForSpan(0.01, 800))
	assert.Equal(t, 10.0, ZoomForSpan(5, 0))

	z := ZoomForSpan(1000, 800)
	assert.InDelta(t, math.Log2(800*156543.03/1e6)-1, z, 1e-9)
	assert.Less(t, ZoomForSpan(2000, 800), z)

	assert.InDelta(t, 1000, ScaledRadius(0), 1e-9)
	assert.Less(t, ScaledRadius(10), ScaledRadius(5))
}

func TestNeighborSegments(t *testing.T) {
	assert.Equal(t, []int{0}, NeighborSegments(0, 0))
	assert.Equal(t, []int{0, 1}, NeighborSegments(0, 4))
	assert.Equal(t, []int{1, 2, 3}, NeighborSegments(2, 4))
	assert.Equal(t, []int{3, 4}, NeighborSegments(4, 4))
	assert.Equal(t, []int{0, 1}, NeighborSegments(-3, 4))
	assert.Equal(t, []int{3, 4}, NeighborSegments(9, 4))
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "1 min", FormatMinutes(0.2))
	assert.Equal(t, "45 mins", FormatMinutes(45))
	assert.Equal(t, "1 hr", FormatMinutes(90))
	assert.Equal(t, "3 hrs", FormatMinutes(200))
	assert.Equal(t, "1 day", FormatMinutes(1500))
	assert.Equal(t, "4 days", FormatMinutes(6000))
	assert.Equal(t, "<1 min", FormatMinutes(math.NaN()))
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "2.5km / min", FormatSpeed(2.5, 0))
	assert.Equal(t, "0.5km / min", FormatSpeed(5, 10))
	assert.Equal(t, "0.0km / min", FormatSpeed(math.NaN(), 3))
}
