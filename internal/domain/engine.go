package domain

import "fmt"

// EngineConfig parameterizes every stage of the segmentation engine.
type EngineConfig struct {
	Name      string          `json:"name"`
	Dedupe    DedupeConfig    `json:"dedupe"`
	Enrich    EnrichConfig    `json:"enrich"`
	Segment   SegmentConfig   `json:"segment"`
	Aggregate AggregateConfig `json:"aggregate"`
	Score     ScoreWeights    `json:"score"`
}

// Bounds accepted for analyst-supplied dedupe parameters.
const (
	MinPrecision     = 3
	MaxPrecision     = 5
	MinBucketMinutes = 1
	MaxBucketMinutes = 60
)

// Validate rejects dedupe parameters outside the ranges analysts may pick.
func (c EngineConfig) Validate() error {
	if c.Dedupe.Precision < MinPrecision || c.Dedupe.Precision > MaxPrecision {
		return fmt.Errorf("truncation %d outside [%d,%d]: %w",
			c.Dedupe.Precision, MinPrecision, MaxPrecision, ErrMalformedInput)
	}
	if c.Dedupe.BucketMinutes < MinBucketMinutes || c.Dedupe.BucketMinutes > MaxBucketMinutes {
		return fmt.Errorf("minutes %d outside [%d,%d]: %w",
			c.Dedupe.BucketMinutes, MinBucketMinutes, MaxBucketMinutes, ErrMalformedInput)
	}
	return nil
}

// Result is the output of one engine run.
type Result struct {
	Points            []EnrichedPoint
	Segments          []SegmentSummary
	DuplicatesRemoved int
	FleetQuality      float64
}

// MaxSegment returns the highest segment id, or -1 when there are none.
func (r Result) MaxSegment() int {
	return len(r.Segments) - 1
}

// Engine runs dedupe, enrichment, segmentation, aggregation and scoring with
// a fixed configuration. It holds no mutable state.
type Engine struct {
	cfg       EngineConfig
	segmenter *Segmenter
}

// NewEngine creates an Engine for cfg.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg, segmenter: NewSegmenter(SplitFor(cfg.Segment))}
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// Run computes the enriched, segmented and scored table for raw points.
func (e *Engine) Run(points []Point) Result {
	deduped := Dedupe(points, e.cfg.Dedupe)
	enriched := Enrich(deduped.Points, e.cfg.Enrich)
	e.segmenter.Assign(enriched)
	return e.summarize(enriched, deduped.Removed)
}

// Resume rebuilds summaries for a previously persisted table without
// recomputing deltas, flags or segment ids. The table must be in sort order
// with contiguous segment ids starting at 0.
func (e *Engine) Resume(points []EnrichedPoint) (Result, error) {
	if err := checkSegmented(points); err != nil {
		return Result{}, err
	}
	removed := 0
	for _, p := range points {
		removed += p.DuplicateCount
	}
	return e.summarize(points, removed), nil
}

func (e *Engine) summarize(points []EnrichedPoint, removed int) Result {
	segments := Aggregate(points, e.cfg.Aggregate)
	ScoreAll(segments, e.cfg.Score)
	return Result{
		Points:            points,
		Segments:          segments,
		DuplicatesRemoved: removed,
		FleetQuality:      FleetQuality(segments),
	}
}

func checkSegmented(points []EnrichedPoint) error {
	for i, p := range points {
		if i == 0 {
			if p.Segment != 0 {
				return fmt.Errorf("first segment id is %d: %w", p.Segment, ErrMalformedInput)
			}
			continue
		}
		step := p.Segment - points[i-1].Segment
		if step != 0 && step != 1 {
			return fmt.Errorf("segment ids jump from %d to %d at row %d: %w",
				points[i-1].Segment, p.Segment, i, ErrMalformedInput)
		}
		if p.Timestamp.Before(points[i-1].Timestamp) {
			return fmt.Errorf("row %d is out of time order: %w", i, ErrMalformedInput)
		}
	}
	return nil
}
