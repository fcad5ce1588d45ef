package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
)

// FlushTask is the handle of one background table write.
type FlushTask struct {
	done chan struct{}
	err  error
}

func newFlushTask() *FlushTask {
	return &FlushTask{done: make(chan struct{})}
}

// Done is closed once the write has finished, successfully or not.
func (t *FlushTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the write finishes or ctx is done.
func (t *FlushTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the write error, or nil while the write is still running.
func (t *FlushTask) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *FlushTask) finish(err error) {
	t.err = err
	close(t.done)
}

// Flusher writes snapshots of one session table in the background. At most
// one write is in flight; snapshots submitted meanwhile are coalesced and only
// the latest one is written next, so the last write wins.
type Flusher struct {
	key     domain.TableKey
	store   TableStore
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	running    bool
	queued     []domain.EnrichedPoint
	queuedTask *FlushTask
	last       *FlushTask
}

// NewFlusher creates a Flusher writing key to store. Each write gets its own
// timeout and is not tied to any request context.
func NewFlusher(key domain.TableKey, store TableStore, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Flusher {
	return &Flusher{
		key:     key,
		store:   store,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Submit schedules points for writing and returns immediately. Callers whose
// snapshots are coalesced share the returned task.
func (f *Flusher) Submit(points []domain.EnrichedPoint) *FlushTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		f.queued = points
		if f.queuedTask == nil {
			f.queuedTask = newFlushTask()
		}
		f.last = f.queuedTask
		return f.queuedTask
	}

	task := newFlushTask()
	f.running = true
	f.last = task
	go f.run(points, task)
	return task
}

// Last returns the most recently submitted task, or nil if nothing was ever
// submitted. Waiting on it waits for every earlier write too.
func (f *Flusher) Last() *FlushTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *Flusher) run(points []domain.EnrichedPoint, task *FlushTask) {
	for {
		task.finish(f.write(points))

		f.mu.Lock()
		if f.queuedTask == nil {
			f.running = false
			f.mu.Unlock()
			return
		}
		points, task = f.queued, f.queuedTask
		f.queued, f.queuedTask = nil, nil
		f.mu.Unlock()
	}
}

func (f *Flusher) write(points []domain.EnrichedPoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	start := time.Now()
	err := f.store.SaveTable(ctx, f.key, points)
	f.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		f.metrics.Flushes.WithLabelValues("error").Inc()
		f.logger.Error("flush failed, keeping labels in memory",
			"table", f.key.String(),
			"points", len(points),
			"error", err,
		)
		return err
	}
	f.metrics.Flushes.WithLabelValues("success").Inc()
	f.logger.Debug("table flushed", "table", f.key.String(), "points", len(points))
	return nil
}
