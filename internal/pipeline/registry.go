package pipeline

import (
	"sync"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// deviceLocks serialises Open and Close per device.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	sync.Mutex
	refs int
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*deviceLock)}
}

// lock blocks until deviceID is free and returns the unlock function.
func (d *deviceLocks) lock(deviceID string) func() {
	d.mu.Lock()
	l, ok := d.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		d.locks[deviceID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, deviceID)
		}
		d.mu.Unlock()
	}
}

// flushers hands out one Flusher per table key. A key keeps its Flusher as
// long as some session holds it or a write it started is unfinished, so a
// reopened session queues behind the writes of the one before it.
type flushers struct {
	newFlusher func(domain.TableKey) *Flusher

	mu      sync.Mutex
	entries map[domain.TableKey]*flusherEntry
}

type flusherEntry struct {
	flusher *Flusher
	refs    int
}

func newFlushers(newFlusher func(domain.TableKey) *Flusher) *flushers {
	return &flushers{newFlusher: newFlusher, entries: make(map[domain.TableKey]*flusherEntry)}
}

func (r *flushers) acquire(key domain.TableKey) *Flusher {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &flusherEntry{flusher: r.newFlusher(key)}
		r.entries[key] = e
	}
	e.refs++
	return e.flusher
}

func (r *flushers) release(key domain.TableKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.entries, key)
	}
}

// releaseWhenIdle releases key once f has finished every write submitted so
// far, including any that land while waiting.
func (r *flushers) releaseWhenIdle(key domain.TableKey, f *Flusher) {
	task := f.Last()
	if task == nil || isDone(task) {
		r.release(key)
		return
	}
	go func() {
		for task != nil {
			<-task.Done()
			if next := f.Last(); next != task {
				task = next
				continue
			}
			break
		}
		r.release(key)
	}()
}

func isDone(t *FlushTask) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}

func (r *flushers) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
