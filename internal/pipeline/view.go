package pipeline

import (
	"context"
	"math"

	"github.com/couchcryptid/locate-annotation-service/internal/annotation"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// View is what an analyst needs to judge the segment under the cursor.
type View struct {
	DeviceID          string           `json:"device_id"`
	UserID            string           `json:"user_id"`
	Preset            string           `json:"preset"`
	Stats             annotation.Stats `json:"stats"`
	FleetQuality      float64          `json:"fleet_quality"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
	Segment           *SegmentView     `json:"segment,omitempty"`
}

// SegmentView describes the current segment and the map around it. Points
// holds the locates of the neighbouring segments, current one included.
type SegmentView struct {
	Summary      domain.SegmentSummary  `json:"summary"`
	Neighbors    []int                  `json:"neighbors"`
	Points       []domain.EnrichedPoint `json:"points"`
	Zoom         int                    `json:"zoom"`
	Radius       float64                `json:"radius"`
	SpanZoom     float64                `json:"span_zoom"`
	ScaledRadius float64                `json:"scaled_radius"`
	JumpTime     string                 `json:"jump_time"`
	Speed        string                 `json:"speed"`
	Place        domain.Place           `json:"place"`
}

// View renders the session state. Place lookup runs after the session lock is
// released.
func (s *Session) View(ctx context.Context) View {
	s.mu.Lock()
	v := View{
		DeviceID:          s.key.DeviceID,
		UserID:            s.userID,
		Preset:            s.key.Preset,
		Stats:             s.state.Stats(),
		FleetQuality:      s.fleetQuality,
		DuplicatesRemoved: s.duplicatesRemoved,
	}
	summary, ok := s.state.Segment(s.state.Current())
	var sv *SegmentView
	if ok {
		sv = &SegmentView{
			Summary:   summary,
			Neighbors: domain.NeighborSegments(summary.SegmentID, s.state.Total()-1),
		}
		for _, n := range sv.Neighbors {
			sv.Points = append(sv.Points, s.state.SegmentPoints(n)...)
		}
	}
	s.mu.Unlock()

	if sv == nil {
		return v
	}

	sv.Zoom = domain.ZoomForDistance(summary.JumpKm)
	sv.Radius = domain.StepRadius(sv.Zoom)
	sv.SpanZoom = domain.ZoomForSpan(spanKm(sv.Points), s.p.opts.MapWidthPx)
	sv.ScaledRadius = domain.ScaledRadius(sv.SpanZoom)
	sv.JumpTime = domain.FormatMinutes(summary.JumpMinutes)
	sv.Speed = domain.FormatSpeed(summary.JumpKm, summary.JumpMinutes)
	sv.Place = domain.DescribePlace(ctx, summary, s.p.geocoder, s.p.logger)
	v.Segment = sv
	return v
}

// spanKm is the diagonal of the bounding box of points.
func spanKm(points []domain.EnrichedPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minLat = math.Min(minLat, p.Latitude)
		maxLat = math.Max(maxLat, p.Latitude)
		minLon = math.Min(minLon, p.Longitude)
		maxLon = math.Max(maxLon, p.Longitude)
	}
	return domain.HaversineKm(minLat, minLon, maxLat, maxLon)
}
