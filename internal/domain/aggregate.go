package domain

// AggregateConfig controls how segment totals are computed.
type AggregateConfig struct {
	// IncludeJumpInTotals adds the delta that opened a segment to its
	// TotalKm/TotalMinutes. Off by default: the jump belongs to the gap
	// between segments, not to the segment.
	IncludeJumpInTotals bool `json:"include_jump_in_totals"`
}

// Aggregate reduces consecutive runs of points sharing a segment id to one
// SegmentSummary each. Points must already be sorted and segmented. Quality
// scores are left at zero; see Score.
func Aggregate(points []EnrichedPoint, cfg AggregateConfig) []SegmentSummary {
	if len(points) == 0 {
		return []SegmentSummary{}
	}

	out := make([]SegmentSummary, 0, points[len(points)-1].Segment+1)
	var suppliers map[string]struct{}

	for i, p := range points {
		if i == 0 || p.Segment != points[i-1].Segment {
			if len(out) > 0 {
				out[len(out)-1].DistinctSuppliers = len(suppliers)
			}
			suppliers = make(map[string]struct{})
			out = append(out, openSummary(p, cfg))
			if p.SupplyID != "" {
				suppliers[p.SupplyID] = struct{}{}
			}
			continue
		}

		s := &out[len(out)-1]
		s.PointCount++
		s.End = p
		s.TotalKm += p.KmSincePrev
		s.TotalMinutes += p.MinutesSincePrev
		s.DuplicateTotal += p.DuplicateCount
		s.MaxKmPerMin = max(s.MaxKmPerMin, p.KmPerMinute())
		mergeFlags(s, p)
		if p.SupplyID != "" {
			suppliers[p.SupplyID] = struct{}{}
		}
	}
	out[len(out)-1].DistinctSuppliers = len(suppliers)
	return out
}

func openSummary(p EnrichedPoint, cfg AggregateConfig) SegmentSummary {
	s := SegmentSummary{
		SegmentID:      p.Segment,
		PointCount:     1,
		Start:          p,
		End:            p,
		DuplicateTotal: p.DuplicateCount,
		Label:          p.Label,
	}
	if p.HasPrev {
		s.JumpKm = p.KmSincePrev
		s.JumpMinutes = p.MinutesSincePrev
	}
	if cfg.IncludeJumpInTotals {
		s.TotalKm = s.JumpKm
		s.TotalMinutes = s.JumpMinutes
		s.MaxKmPerMin = p.KmPerMinute()
	}
	mergeFlags(&s, p)
	return s
}

// mergeFlags ORs the point flags into the summary. The first member's jump
// flags count like any other member's.
func mergeFlags(s *SegmentSummary, p EnrichedPoint) {
	s.TimeJump = s.TimeJump || p.TimeJump
	s.DistanceJump = s.DistanceJump || p.DistanceJump
	s.SpeedFlag = s.SpeedFlag || p.SpeedFlag
	s.ConflictFlag = s.ConflictFlag || p.ConflictFlag
	s.SupplierFlag = s.SupplierFlag || p.SupplierFlag
}
