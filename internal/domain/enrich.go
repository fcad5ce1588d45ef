package domain

import (
	"math"
	"sort"
)

// EnrichConfig holds the thresholds behind the per-point flags.
type EnrichConfig struct {
	TimeJumpMinutes       float64             `json:"time_jump_minutes"`
	DistanceJumpKm        float64             `json:"distance_jump_km"`
	SpeedKmPerMin         float64             `json:"speed_km_per_min"`
	ConflictWindowMinutes int                 `json:"conflict_window_minutes"`
	ConflictDistanceKm    float64             `json:"conflict_distance_km"`
	SupplierDenylist      map[string]struct{} `json:"-"`
}

// DefaultSupplierDenylist lists the low-trust supply ids.
var DefaultSupplierDenylist = []string{
	"655_b852fe3fb8d68718ab608856c4fc237df27f675aca72e8a460af7803a1d96cfe",
	"736",
	"655_4e567743ecb692dda46f2e522b3ac87e03c41923ebb412706b3f8b6e21b30a7a",
	"655_69769d3ee6342143cc160181a43c120611d955a9c4cf9231aad2c25d4aad30e6",
	"640",
	"540_1017",
	"655_dfdb5a8916bacb39d11662091c900f758e5421aea9d963f9bd5b2a622f340c69",
	"655_cd3486226b51f06416269883783fa30eba7e4bdddb08dd5d89101d005d69696a",
	"655_c33c26e692091d10bf9f8a968528b707ec582060258f4c6433881fed07db5116",
	"655_55a1568daa2956cf6c03905f8cdde49e773fb1b0252ad1f2832043c634f3a373",
	"655_b0c4b5cfc184851f773b18548ee9ad730ab3a5d4092ebc11e813e76c94e6500d",
	"655_6fe308aba1bc04440517c9122f99116df29b7160b992a74f730fa89271c7f30e",
	"655_c0aaf897b3556033606d5e900a0a8f2bc62bcce61bb98c926b64972d931c3c23",
}

// Denylist builds the set form of a supplier list.
func Denylist(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// DefaultEnrichConfig returns the thresholds of the original locate query.
func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{
		TimeJumpMinutes:       1440,
		DistanceJumpKm:        100,
		SpeedKmPerMin:         15,
		ConflictWindowMinutes: 1,
		ConflictDistanceKm:    5,
		SupplierDenylist:      Denylist(DefaultSupplierDenylist...),
	}
}

// SortPoints orders points by (timestamp, latitude, longitude), keeping the
// input order among exact ties.
func SortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Latitude != b.Latitude {
			return a.Latitude < b.Latitude
		}
		return a.Longitude < b.Longitude
	})
}

// Enrich sorts a copy of points and derives the deltas and flags of every
// point relative to its predecessor. Segment ids are left at zero.
func Enrich(points []Point, cfg EnrichConfig) []EnrichedPoint {
	if len(points) == 0 {
		return []EnrichedPoint{}
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	SortPoints(sorted)

	out := make([]EnrichedPoint, len(sorted))
	for i, p := range sorted {
		ep := EnrichedPoint{Point: p}
		_, ep.SupplierFlag = cfg.SupplierDenylist[p.SupplyID]

		if i > 0 {
			prev := sorted[i-1]
			ep.HasPrev = true
			ep.MinutesSincePrev = p.Timestamp.Sub(prev.Timestamp).Minutes()
			ep.KmSincePrev = HaversineKm(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
			ep.TimeJump = ep.MinutesSincePrev > cfg.TimeJumpMinutes
			ep.DistanceJump = ep.KmSincePrev > cfg.DistanceJumpKm
			ep.SpeedFlag = ep.KmPerMinute() > cfg.SpeedKmPerMin
		}
		out[i] = ep
	}

	markConflicts(out, cfg)
	return out
}

type bounds struct {
	members                        []int
	minLat, maxLat, minLon, maxLon float64
}

// markConflicts flags every point of a time bucket whose reports are too far
// apart to come from one device. The spread is approximated by the distance
// between the bucket's extreme corners.
func markConflicts(points []EnrichedPoint, cfg EnrichConfig) {
	width := int64(max(cfg.ConflictWindowMinutes, 1))
	buckets := make(map[int64]*bounds)
	for i, p := range points {
		k := floorDiv(floorDiv(p.Timestamp.Unix(), 60), width)
		b, ok := buckets[k]
		if !ok {
			b = &bounds{
				minLat: math.Inf(1), maxLat: math.Inf(-1),
				minLon: math.Inf(1), maxLon: math.Inf(-1),
			}
			buckets[k] = b
		}
		b.members = append(b.members, i)
		b.minLat = math.Min(b.minLat, p.Latitude)
		b.maxLat = math.Max(b.maxLat, p.Latitude)
		b.minLon = math.Min(b.minLon, p.Longitude)
		b.maxLon = math.Max(b.maxLon, p.Longitude)
	}

	for _, b := range buckets {
		if len(b.members) < 2 {
			continue
		}
		if HaversineKm(b.minLat, b.minLon, b.maxLat, b.maxLon) <= cfg.ConflictDistanceKm {
			continue
		}
		for _, i := range b.members {
			points[i].ConflictFlag = true
		}
	}
}
