package domain

import "math"

// ScoreWeights configures the composite quality score. Weights are relative;
// Score normalizes them to sum to 100.
type ScoreWeights struct {
	Supplier     float64 `json:"w_supplier"`
	Duration     float64 `json:"w_duration"`
	Count        float64 `json:"w_count"`
	SpeedFlag    float64 `json:"w_speed_flag"`
	SupplierFlag float64 `json:"w_supplier_flag"`

	SupplierCap        int     `json:"supplier_cap"`
	DurationCapMinutes float64 `json:"duration_cap_minutes"`
	CountCap           int     `json:"count_cap"`
}

// DefaultScoreWeights balances supplier diversity, dwell and clean flags.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Supplier:           30,
		Duration:           20,
		Count:              20,
		SpeedFlag:          15,
		SupplierFlag:       15,
		SupplierCap:        3,
		DurationCapMinutes: 60,
		CountCap:           10,
	}
}

// Score returns the quality of a segment in [0, 100]. Each term is a capped
// ratio in [0, 1]; flag terms are 1 when the flag is clear. Undefined terms
// contribute 0.
func Score(s SegmentSummary, w ScoreWeights) float64 {
	terms := [...]struct{ weight, value float64 }{
		{w.Supplier, capped(float64(s.DistinctSuppliers), float64(w.SupplierCap))},
		{w.Duration, capped(s.TotalMinutes, w.DurationCapMinutes)},
		{w.Count, capped(float64(s.PointCount), float64(w.CountCap))},
		{w.SpeedFlag, unflagged(s.SpeedFlag)},
		{w.SupplierFlag, unflagged(s.SupplierFlag)},
	}

	var total, sum float64
	for _, t := range terms {
		if !finite(t.weight) || t.weight <= 0 {
			continue
		}
		total += t.weight
		if finite(t.value) {
			sum += t.weight * t.value
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(100*sum/total, 0, 100)
}

// ScoreAll fills QualityScore on every summary in place.
func ScoreAll(summaries []SegmentSummary, w ScoreWeights) {
	for i := range summaries {
		summaries[i].QualityScore = Score(summaries[i], w)
	}
}

// FleetQuality is the point-count weighted mean quality of the summaries.
func FleetQuality(summaries []SegmentSummary) float64 {
	var weighted, points float64
	for _, s := range summaries {
		if !finite(s.QualityScore) || s.PointCount <= 0 {
			continue
		}
		weighted += s.QualityScore * float64(s.PointCount)
		points += float64(s.PointCount)
	}
	if points == 0 {
		return 0
	}
	return weighted / points
}

func capped(v, limit float64) float64 {
	if limit <= 0 || !finite(v) || !finite(limit) || v <= 0 {
		return 0
	}
	return math.Min(v, limit) / limit
}

func unflagged(flag bool) float64 {
	if flag {
		return 0
	}
	return 1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
