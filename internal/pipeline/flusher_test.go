package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

func snapshotOf(n int) []domain.EnrichedPoint {
	return make([]domain.EnrichedPoint, n)
}

func TestFlusher_CoalescesQueuedSnapshots(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	store.started = make(chan struct{}, 10)
	key := distanceKey(t, deviceA)
	f := pipeline.NewFlusher(key, store, time.Second, discardLogger(), newTestMetrics())

	first := f.Submit(snapshotOf(1))
	<-store.started // first write is in flight

	second := f.Submit(snapshotOf(2))
	third := f.Submit(snapshotOf(3))
	assert.Same(t, second, third, "queued snapshots share one task")
	assert.NotSame(t, first, second)
	assert.Same(t, third, f.Last())
	assert.NoError(t, second.Err(), "not finished yet")

	close(store.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, third.Wait(ctx))
	require.NoError(t, first.Wait(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.history, 2, "the middle snapshot is never written")
	assert.Len(t, store.history[0], 1)
	assert.Len(t, store.history[1], 3)
}

func TestFlusher_ReportsErrors(t *testing.T) {
	store := newMemStore()
	store.saveErr = errBoom
	f := pipeline.NewFlusher(distanceKey(t, deviceA), store, time.Second, discardLogger(), newTestMetrics())

	task := f.Submit(snapshotOf(2))

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("flush did not finish")
	}
	assert.ErrorIs(t, task.Err(), errBoom)

	// A failed write does not wedge the flusher.
	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	require.NoError(t, f.Submit(snapshotOf(2)).Wait(context.Background()))
}

func TestFlusher_WaitHonoursContext(t *testing.T) {
	store := newMemStore()
	store.gate = make(chan struct{})
	defer close(store.gate)
	f := pipeline.NewFlusher(distanceKey(t, deviceA), store, time.Second, discardLogger(), newTestMetrics())

	task := f.Submit(snapshotOf(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.Canceled)
}

func TestFlusher_LastIsNilBeforeFirstSubmit(t *testing.T) {
	f := pipeline.NewFlusher(distanceKey(t, deviceA), newMemStore(), time.Second, discardLogger(), newTestMetrics())
	assert.Nil(t, f.Last())
}
