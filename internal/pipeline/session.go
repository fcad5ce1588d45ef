package pipeline

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/annotation"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// Session is one analyst working through the segments of one device. All
// methods are safe for concurrent use; calls on the same session serialise.
type Session struct {
	p                 *Pipeline
	key               domain.TableKey
	userID            string
	opened            time.Time
	fleetQuality      float64
	duplicatesRemoved int
	flusher           *Flusher
	releaseOnce       sync.Once

	mu        sync.Mutex
	state     *annotation.State
	completed bool
	lastFlush *FlushTask
}

func newSession(p *Pipeline, key domain.TableKey, userID string, result domain.Result, flusher *Flusher) *Session {
	state := annotation.New(result.Points, result.Segments, p.opts.FlushThreshold)
	return &Session{
		p:                 p,
		key:               key,
		userID:            userID,
		opened:            domain.Clock().Now(),
		fleetQuality:      result.FleetQuality,
		duplicatesRemoved: result.DuplicatesRemoved,
		flusher:           flusher,
		state:             state,
		completed:         state.Complete(),
	}
}

// Key returns the table key of the session.
func (s *Session) Key() domain.TableKey { return s.key }

// Stats returns the annotation progress.
func (s *Session) Stats() annotation.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Stats()
}

// Label sets the label of one segment without moving the cursor.
func (s *Session) Label(ctx context.Context, segment int, label domain.Label) annotation.Stats {
	return s.mutate(ctx, label, func(st *annotation.State) int {
		if st.Label(segment, label) {
			return 1
		}
		return 0
	})
}

// LabelCurrent labels the segment under the cursor and advances.
func (s *Session) LabelCurrent(ctx context.Context, label domain.Label) annotation.Stats {
	return s.mutate(ctx, label, func(st *annotation.State) int {
		if st.LabelCurrent(label) {
			return 1
		}
		return 0
	})
}

// BulkLabel labels count segments starting at the cursor and moves the
// cursor past them.
func (s *Session) BulkLabel(ctx context.Context, count int, label domain.Label) annotation.Stats {
	return s.mutate(ctx, label, func(st *annotation.State) int {
		if count <= 0 {
			return 0
		}
		changed := st.BulkLabelFrom(st.Current(), count, label)
		st.Jump(count)
		return changed
	})
}

// Rewind moves the cursor back to the first unlabeled segment.
func (s *Session) Rewind() annotation.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Rewind()
	return s.state.Stats()
}

// Advance moves the cursor to the next segment.
func (s *Session) Advance() annotation.Stats { return s.navigate(1) }

// Retreat moves the cursor to the previous segment.
func (s *Session) Retreat() annotation.Stats { return s.navigate(-1) }

// Jump moves the cursor by n segments.
func (s *Session) Jump(n int) annotation.Stats { return s.navigate(n) }

func (s *Session) navigate(n int) annotation.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Jump(n)
	return s.state.Stats()
}

// Export returns the full table, labels included, as flat records.
func (s *Session) Export() [][]string {
	s.mu.Lock()
	points := s.state.Snapshot()
	s.mu.Unlock()
	return domain.ToRecords(points)
}

// mutate applies a labeling change, then flushes and records completion as
// needed. apply returns the number of labels it changed.
func (s *Session) mutate(ctx context.Context, label domain.Label, apply func(*annotation.State) int) annotation.Stats {
	s.mu.Lock()
	changed := apply(s.state)
	if changed > 0 {
		s.p.metrics.LabelsApplied.WithLabelValues(label.String()).Add(float64(changed))
	}
	if s.state.ShouldFlush() {
		s.submitLocked()
	}
	var rec *domain.SessionRecord
	if s.state.Complete() && !s.completed {
		s.completed = true
		rec = &domain.SessionRecord{
			DeviceID:       s.key.DeviceID,
			UserID:         s.userID,
			ElapsedSeconds: domain.Clock().Since(s.opened).Seconds(),
			LocateCount:    s.state.LocateCount(),
			CompletedAt:    domain.Clock().Now().UTC(),
		}
	}
	stats := s.state.Stats()
	s.mu.Unlock()

	if rec != nil {
		s.p.complete(ctx, *rec)
	}
	return stats
}

// flushAll submits any pending labels and returns the task to wait on, or
// nil when this session never wrote anything.
func (s *Session) flushAll() *FlushTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Stats().Pending > 0 {
		return s.submitLocked()
	}
	return s.lastFlush
}

// release returns the session's hold on its table flusher once its writes
// are done.
func (s *Session) release() {
	s.releaseOnce.Do(func() { s.p.flushers.releaseWhenIdle(s.key, s.flusher) })
}

func (s *Session) submitLocked() *FlushTask {
	s.state.ClearPending()
	s.lastFlush = s.flusher.Submit(s.state.Snapshot())
	return s.lastFlush
}

// complete records a finished session in the store and on the feed. Failures
// are logged; the analyst's work is already in the table.
func (p *Pipeline) complete(ctx context.Context, rec domain.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.FlushTimeout)
	defer cancel()

	p.metrics.SessionsCompleted.Inc()
	p.logger.Info("session complete",
		"device_id", rec.DeviceID,
		"user_id", rec.UserID,
		"elapsed_seconds", math.Round(rec.ElapsedSeconds),
		"locates", rec.LocateCount,
	)

	if err := p.store.RecordSession(ctx, rec); err != nil {
		p.logger.Error("record session failed", "device_id", rec.DeviceID, "error", err)
	}
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, rec); err != nil {
		p.metrics.FeedPublished.WithLabelValues("error").Inc()
		p.logger.Error("publish session failed", "device_id", rec.DeviceID, "error", err)
		return
	}
	p.metrics.FeedPublished.WithLabelValues("success").Inc()
}
