package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	cfg := DedupeConfig{BucketMinutes: 5, Precision: 4}

	a := locate(0, 40.12341, -73.98761, "101")
	b := locate(1, 41, -74, "202")
	c := locate(2, 40.12349, -73.98769, "303")

	t.Run("first seen wins and keeps arrival order", func(t *testing.T) {
		result := Dedupe([]Point{a, b, c}, cfg)

		require.Len(t, result.Points, 2)
		assert.Equal(t, "101", result.Points[0].SupplyID)
		assert.Equal(t, 1, result.Points[0].DuplicateCount)
		assert.Equal(t, "202", result.Points[1].SupplyID)
		assert.Equal(t, 0, result.Points[1].DuplicateCount)
		assert.Equal(t, 1, result.Removed)
	})

	t.Run("creation time picks the representative", func(t *testing.T) {
		a := a
		c := c
		a.CreatedAt = baseTime.Add(time.Hour)
		c.CreatedAt = baseTime

		result := Dedupe([]Point{a, b, c}, cfg)

		require.Len(t, result.Points, 2)
		assert.Equal(t, "202", result.Points[0].SupplyID)
		assert.Equal(t, "303", result.Points[1].SupplyID)
		assert.Equal(t, 1, result.Points[1].DuplicateCount)
	})

	t.Run("different time bucket is not a duplicate", func(t *testing.T) {
		late := locate(6, 40.12341, -73.98761, "101")
		result := Dedupe([]Point{a, late}, cfg)

		assert.Len(t, result.Points, 2)
		assert.Zero(t, result.Removed)
	})

	t.Run("coarser precision merges more", func(t *testing.T) {
		near := locate(1, 40.1239, -73.9879, "101")

		assert.Len(t, Dedupe([]Point{a, near}, cfg).Points, 2)
		assert.Len(t, Dedupe([]Point{a, near}, DedupeConfig{BucketMinutes: 5, Precision: 3}).Points, 1)
	})

	t.Run("empty input", func(t *testing.T) {
		result := Dedupe(nil, cfg)
		assert.Empty(t, result.Points)
		assert.Zero(t, result.Removed)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := []Point{a, b, c}
		Dedupe(in, cfg)
		for _, p := range in {
			assert.Zero(t, p.DuplicateCount)
		}
	})
}

func TestDedupe_ExactDecimals(t *testing.T) {
	// 4.0013 * 1e4 is 40012.99999... in binary floating point.
	a := locate(0, 4.0013, 9.0013, "101")
	b := locate(1, 4.00135, 9.00139, "202")

	result := Dedupe([]Point{a, b}, DedupeConfig{BucketMinutes: 5, Precision: 4})

	require.Len(t, result.Points, 1)
	assert.Equal(t, "101", result.Points[0].SupplyID)
	assert.Equal(t, 1, result.Removed)
}

func TestTruncDecimal(t *testing.T) {
	tests := []struct {
		v         float64
		precision int
		want      int64
	}{
		{4.0013, 4, 40013},
		{4.00135, 4, 40013},
		{0.29, 2, 29},
		{-73.98769, 4, -739876},
		{-0.00001, 4, 0},
		{41, 4, 410000},
		{40.12349, 0, 40},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncDecimal(tt.v, tt.precision), "%v at %d", tt.v, tt.precision)
	}
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(2), floorDiv(10, 5))
	assert.Equal(t, int64(2), floorDiv(14, 5))
	assert.Equal(t, int64(-1), floorDiv(-1, 5))
	assert.Equal(t, int64(-2), floorDiv(-6, 5))
}
