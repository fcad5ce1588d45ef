package domain

import (
	"fmt"
	"time"
)

// Point is one location report ("locate") for a device, as delivered by the
// upstream warehouse or a cached table. DuplicateCount is set by Dedupe.
type Point struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	SupplyID           string    `json:"supply_id"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"` // meters
	IPAddress          string    `json:"ip_address,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitempty"` // warehouse ingest time, orders duplicates
	DuplicateCount     int       `json:"duplicate_count"`
}

// EnrichedPoint is a Point plus the deltas to its predecessor in sort order,
// the derived flags, its segment id and the analyst label.
type EnrichedPoint struct {
	Point

	// HasPrev is false only for the first point of the sequence; its deltas
	// are zero and never trigger a segment split.
	HasPrev          bool    `json:"has_prev"`
	MinutesSincePrev float64 `json:"minutes_since_prev"`
	KmSincePrev      float64 `json:"km_since_prev"`

	TimeJump     bool `json:"time_jump"`
	DistanceJump bool `json:"distance_jump"`
	SpeedFlag    bool `json:"speed_flag"`
	ConflictFlag bool `json:"conflict_flag"`
	SupplierFlag bool `json:"supplier_flag"`

	Segment int   `json:"segment"`
	Label   Label `json:"label"`
}

// KmPerMinute returns the implied speed to the predecessor. A zero-minute
// delta is treated as one minute.
func (p EnrichedPoint) KmPerMinute() float64 {
	if !p.HasPrev {
		return 0
	}
	return p.KmSincePrev / max(p.MinutesSincePrev, 1)
}

// SegmentSummary reduces the points of one segment to a single row.
type SegmentSummary struct {
	SegmentID  int           `json:"segment_id"`
	PointCount int           `json:"point_count"`
	Start      EnrichedPoint `json:"start_point"`
	End        EnrichedPoint `json:"end_point"`

	// TotalMinutes and TotalKm sum the deltas inside the segment. JumpMinutes
	// and JumpKm hold the delta from the previous segment's last point.
	TotalMinutes float64 `json:"total_minutes"`
	TotalKm      float64 `json:"total_km"`
	JumpMinutes  float64 `json:"jump_minutes"`
	JumpKm       float64 `json:"jump_km"`

	DuplicateTotal    int     `json:"duplicate_total"`
	DistinctSuppliers int     `json:"distinct_supplier_count"`
	MaxKmPerMin       float64 `json:"max_km_per_min"`

	TimeJump     bool `json:"time_jump"`
	DistanceJump bool `json:"distance_jump"`
	SpeedFlag    bool `json:"speed_flag"`
	ConflictFlag bool `json:"conflict_flag"`
	SupplierFlag bool `json:"supplier_flag"`

	Label        Label   `json:"label"`
	QualityScore float64 `json:"quality_score"`
}

// SessionRecord describes one completed annotation session.
type SessionRecord struct {
	DeviceID       string    `json:"device_id"`
	UserID         string    `json:"user_id"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	LocateCount    int       `json:"locate_count"`
	CompletedAt    time.Time `json:"completed_at"`
}

// TableKey identifies a persisted session table. Tables computed with
// different parameters for the same device are stored side by side.
type TableKey struct {
	Preset        string `json:"preset"`
	Precision     int    `json:"truncation"`
	BucketMinutes int    `json:"minutes"`
	DeviceID      string `json:"device_id"`
}

// KeyFor builds the table key of a device under an engine configuration.
func KeyFor(cfg EngineConfig, deviceID string) TableKey {
	return TableKey{
		Preset:        cfg.Name,
		Precision:     cfg.Dedupe.Precision,
		BucketMinutes: cfg.Dedupe.BucketMinutes,
		DeviceID:      deviceID,
	}
}

func (k TableKey) String() string {
	return fmt.Sprintf("%s_%d_%d/%s", k.Preset, k.Precision, k.BucketMinutes, k.DeviceID)
}
