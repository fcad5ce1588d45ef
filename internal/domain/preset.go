package domain

import "sort"

// Preset names. Each reproduces one of the historical annotation variants so
// their output can be regression tested against the shared engine.
const (
	PresetLocate      = "locate"
	PresetDistance    = "distance"
	PresetDistanceGap = "distance-gap"
	PresetDwell       = "dwell"
	PresetStrict      = "strict"
)

var presets = map[string]func() EngineConfig{
	// Every locate is its own segment: the original row-by-row review.
	PresetLocate: func() EngineConfig {
		return EngineConfig{
			Name:    PresetLocate,
			Dedupe:  DedupeConfig{BucketMinutes: 5, Precision: 4},
			Enrich:  DefaultEnrichConfig(),
			Segment: SegmentConfig{DistanceKm: -1},
			Score:   DefaultScoreWeights(),
		}
	},
	PresetDistance: func() EngineConfig {
		return EngineConfig{
			Name:    PresetDistance,
			Dedupe:  DedupeConfig{BucketMinutes: 5, Precision: 4},
			Enrich:  DefaultEnrichConfig(),
			Segment: SegmentConfig{DistanceKm: 1},
			Score:   DefaultScoreWeights(),
		}
	},
	PresetDistanceGap: func() EngineConfig {
		return EngineConfig{
			Name:    PresetDistanceGap,
			Dedupe:  DedupeConfig{BucketMinutes: 5, Precision: 4},
			Enrich:  DefaultEnrichConfig(),
			Segment: SegmentConfig{DistanceKm: 1, GapMinutes: 60},
			Score:   DefaultScoreWeights(),
		}
	},
	// Stay-oriented: tighter radius, totals include the inbound jump and the
	// score rewards dwell time.
	PresetDwell: func() EngineConfig {
		return EngineConfig{
			Name:      PresetDwell,
			Dedupe:    DedupeConfig{BucketMinutes: 10, Precision: 3},
			Enrich:    DefaultEnrichConfig(),
			Segment:   SegmentConfig{DistanceKm: 0.5},
			Aggregate: AggregateConfig{IncludeJumpInTotals: true},
			Score: ScoreWeights{
				Supplier: 20, Duration: 40, Count: 10, SpeedFlag: 15, SupplierFlag: 15,
				SupplierCap: 3, DurationCapMinutes: 120, CountCap: 10,
			},
		}
	},
	PresetStrict: func() EngineConfig {
		return EngineConfig{
			Name:    PresetStrict,
			Dedupe:  DedupeConfig{BucketMinutes: 1, Precision: 5},
			Enrich:  DefaultEnrichConfig(),
			Segment: SegmentConfig{DistanceKm: 0.25, GapMinutes: 30},
			Score: ScoreWeights{
				Supplier: 30, Duration: 10, Count: 10, SpeedFlag: 20, SupplierFlag: 30,
				SupplierCap: 3, DurationCapMinutes: 30, CountCap: 20,
			},
		}
	},
}

// PresetByName returns a fresh copy of the named configuration.
func PresetByName(name string) (EngineConfig, bool) {
	build, ok := presets[name]
	if !ok {
		return EngineConfig{}, false
	}
	return build(), true
}

// PresetNames lists the registered presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
