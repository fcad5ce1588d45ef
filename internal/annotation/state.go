// Package annotation holds the mutable labeling state of one device session,
// layered over the engine's computed points and segment summaries.
package annotation

import "github.com/couchcryptid/locate-annotation-service/internal/domain"

// DefaultFlushThreshold is the pending-label count above which a session
// should be flushed.
const DefaultFlushThreshold = 10

// Stats is a point-in-time view of annotation progress.
type Stats struct {
	Current   int  `json:"current_segment"`
	Annotated int  `json:"annotated"`
	Total     int  `json:"total"`
	Good      int  `json:"good"`
	Bad       int  `json:"bad"`
	Pending   int  `json:"pending"`
	Complete  bool `json:"complete"`
}

// State tracks labels and the cursor for one session. Every label change is
// written to the pending map, the segment summary and each member point.
//
// State is not safe for concurrent use.
type State struct {
	points   []domain.EnrichedPoint
	segments []domain.SegmentSummary
	starts   []int // index of each segment's first point

	pending   map[int]domain.Label
	current   int
	annotated int
	threshold int
}

// New builds a State over an engine result. Labels already present on the
// summaries (a resumed session) count as annotated but not pending, and the
// cursor starts at the first unlabeled segment.
func New(points []domain.EnrichedPoint, segments []domain.SegmentSummary, threshold int) *State {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	s := &State{
		points:    points,
		segments:  segments,
		starts:    make([]int, len(segments)),
		pending:   make(map[int]domain.Label),
		threshold: threshold,
	}

	seg := -1
	for i, p := range points {
		if p.Segment != seg {
			seg = p.Segment
			if seg >= 0 && seg < len(s.starts) {
				s.starts[seg] = i
			}
		}
	}

	for _, sum := range segments {
		if sum.Label.IsSet() {
			s.annotated++
		}
	}
	s.current = s.firstUnlabeled()
	return s
}

// Total returns the number of segments.
func (s *State) Total() int { return len(s.segments) }

// Current returns the cursor, which lies in [0, Total()]. A cursor equal to
// Total() means the analyst has moved past the last segment.
func (s *State) Current() int { return s.current }

// Label sets the label of segment and reports whether anything changed.
// Reapplying the same label is a no-op. Out-of-range segments are ignored.
func (s *State) Label(segment int, label domain.Label) bool {
	if segment < 0 || segment >= len(s.segments) {
		return false
	}
	prev := s.segments[segment].Label
	if prev == label {
		return false
	}

	switch {
	case !prev.IsSet() && label.IsSet():
		s.annotated++
	case prev.IsSet() && !label.IsSet():
		s.annotated--
	}

	s.segments[segment].Label = label
	s.pending[segment] = label
	for i := s.starts[segment]; i < s.end(segment); i++ {
		s.points[i].Label = label
	}
	return true
}

// LabelCurrent labels the segment under the cursor and advances.
func (s *State) LabelCurrent(label domain.Label) bool {
	changed := s.Label(s.current, label)
	s.Advance()
	return changed
}

// BulkLabel labels every segment in the inclusive range [from, to], clamped
// to the valid ids, and returns how many labels changed. Use BulkLabelFrom
// when the range is given as a count.
func (s *State) BulkLabel(from, to int, label domain.Label) int {
	from = max(from, 0)
	to = min(to, len(s.segments)-1)
	changed := 0
	for seg := from; seg <= to; seg++ {
		if s.Label(seg, label) {
			changed++
		}
	}
	return changed
}

// BulkLabelFrom labels count segments starting at from. Counts past the last
// segment stop there.
func (s *State) BulkLabelFrom(from, count int, label domain.Label) int {
	if count <= 0 {
		return 0
	}
	from = min(max(from, 0), len(s.segments))
	count = min(count, len(s.segments))
	return s.BulkLabel(from, from+count-1, label)
}

// Advance moves the cursor forward by one.
func (s *State) Advance() int { return s.Jump(1) }

// Retreat moves the cursor back by one.
func (s *State) Retreat() int { return s.Jump(-1) }

// Jump moves the cursor by n segments, clamped to [0, Total()].
func (s *State) Jump(n int) int {
	total := len(s.segments)
	n = min(max(n, -total), total)
	s.current = min(max(s.current+n, 0), total)
	return s.current
}

// Rewind moves the cursor to the first unlabeled segment, or to Total() when
// every segment is labeled.
func (s *State) Rewind() int {
	s.current = s.firstUnlabeled()
	return s.current
}

func (s *State) firstUnlabeled() int {
	for i, sum := range s.segments {
		if !sum.Label.IsSet() {
			return i
		}
	}
	return len(s.segments)
}

// Complete reports whether every segment carries a label.
func (s *State) Complete() bool { return s.annotated == len(s.segments) }

// ShouldFlush reports whether the pending labels should be persisted: their
// count exceeds the threshold, or the session just completed.
func (s *State) ShouldFlush() bool {
	if len(s.pending) == 0 {
		return false
	}
	return len(s.pending) > s.threshold || s.Complete()
}

// ClearPending forgets the pending labels once they have been handed to a
// flush, and returns how many there were.
func (s *State) ClearPending() int {
	n := len(s.pending)
	clear(s.pending)
	return n
}

// Pending returns a copy of the labels changed since the last flush.
func (s *State) Pending() map[int]domain.Label {
	out := make(map[int]domain.Label, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// Stats summarizes progress.
func (s *State) Stats() Stats {
	st := Stats{
		Current:   s.current,
		Annotated: s.annotated,
		Total:     len(s.segments),
		Pending:   len(s.pending),
		Complete:  s.Complete(),
	}
	for _, sum := range s.segments {
		switch sum.Label {
		case domain.LabelGood:
			st.Good++
		case domain.LabelBad:
			st.Bad++
		}
	}
	return st
}

// Snapshot copies the full point table, labels included, for persistence.
func (s *State) Snapshot() []domain.EnrichedPoint {
	out := make([]domain.EnrichedPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Segment returns the summary of segment.
func (s *State) Segment(segment int) (domain.SegmentSummary, bool) {
	if segment < 0 || segment >= len(s.segments) {
		return domain.SegmentSummary{}, false
	}
	return s.segments[segment], true
}

// SegmentPoints returns a copy of the points of segment.
func (s *State) SegmentPoints(segment int) []domain.EnrichedPoint {
	if segment < 0 || segment >= len(s.segments) {
		return nil
	}
	src := s.points[s.starts[segment]:s.end(segment)]
	out := make([]domain.EnrichedPoint, len(src))
	copy(out, src)
	return out
}

// LocateCount is the number of points in the session.
func (s *State) LocateCount() int { return len(s.points) }

func (s *State) end(segment int) int {
	if segment+1 < len(s.starts) {
		return s.starts[segment+1]
	}
	return len(s.points)
}
