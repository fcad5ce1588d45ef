// Package domain models device locate histories and the segmentation engine
// that prepares them for fraud annotation.
//
// # Data Source
//
// Locates are mobile-ad location reports keyed by advertising id (a UUID).
// The warehouse returns one row per report with the columns id, timestamp,
// latitude, longitude, horizontal_accuracy, supply_id, ip_address and
// created_at. Reports are re-delivered by suppliers, so the same position is
// often seen several times within minutes.
//
// # Pipeline
//
//	raw points
//	  → Dedupe   (time bucket, truncated lat/lon) → representative + duplicate_count
//	  → Enrich   sort by (timestamp, lat, lon); deltas to predecessor; flags
//	  → Segmenter contiguous ids, split predicate chosen by configuration
//	  → Aggregate one SegmentSummary per segment
//	  → Score    bounded 0–100 composite quality
//
// Every stage is a pure function of its input and an EngineConfig. Named
// presets ([PresetByName]) reproduce the historical variants of the
// annotation tool, which differed only in thresholds and weights.
//
// # Flags
//
//	time_flag      minutes since previous locate > 1440
//	distance_flag  km since previous locate > 100
//	speed_flag     km / max(minutes, 1) > 15
//	conflict_flag  locates in the same 1-minute bucket spread over > 5 km
//	supplier_flag  supply_id is on the low-trust deny-list
//
// The first locate of a history has no predecessor: its deltas are zero and
// it never raises the delta-based flags.
//
// # Segment Totals
//
// The delta between the last point of segment k and the first point of
// segment k+1 is the jump into k+1. It is reported as JumpKm/JumpMinutes and
// excluded from TotalKm/TotalMinutes unless AggregateConfig.IncludeJumpInTotals
// is set.
//
// # Labels
//
// Labels are tri-state ([LabelUnset], [LabelGood], [LabelBad]). Flat tables
// encode unset as an empty cell and JSON as null; neither collapses to false.
package domain
