package domain

// SegmentConfig selects the split rule.
type SegmentConfig struct {
	// DistanceKm starts a new segment when the jump from the previous point
	// exceeds it. A negative value splits on every point.
	DistanceKm float64 `json:"distance_km"`
	// GapMinutes, when positive, also splits when the time since the previous
	// point exceeds it.
	GapMinutes float64 `json:"gap_minutes,omitempty"`
}

// SplitPredicate reports whether p opens a new segment. It is only consulted
// for points that have a predecessor.
type SplitPredicate func(p EnrichedPoint) bool

// DistanceSplit splits when the distance to the predecessor exceeds km.
func DistanceSplit(km float64) SplitPredicate {
	return func(p EnrichedPoint) bool {
		return p.KmSincePrev > km
	}
}

// DistanceOrGapSplit splits on a distance jump or on a time gap.
func DistanceOrGapSplit(km, minutes float64) SplitPredicate {
	return func(p EnrichedPoint) bool {
		return p.KmSincePrev > km || p.MinutesSincePrev > minutes
	}
}

// SplitFor builds the predicate described by cfg.
func SplitFor(cfg SegmentConfig) SplitPredicate {
	if cfg.GapMinutes > 0 {
		return DistanceOrGapSplit(cfg.DistanceKm, cfg.GapMinutes)
	}
	return DistanceSplit(cfg.DistanceKm)
}

// Segmenter assigns contiguous segment ids along a sorted sequence.
type Segmenter struct {
	split SplitPredicate
}

// NewSegmenter creates a Segmenter using split to decide boundaries.
func NewSegmenter(split SplitPredicate) *Segmenter {
	return &Segmenter{split: split}
}

// Assign labels every point with a segment id in place and returns the
// highest id, or -1 for an empty sequence. The first point is always
// segment 0 and ids grow by exactly one at each split.
func (s *Segmenter) Assign(points []EnrichedPoint) int {
	segment := 0
	for i := range points {
		if i > 0 && points[i].HasPrev && s.split(points[i]) {
			segment++
		}
		points[i].Segment = segment
	}
	if len(points) == 0 {
		return -1
	}
	return segment
}
