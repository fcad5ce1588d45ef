package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

const (
	deviceA = "6f1c2a3b-9d4e-4f50-8a61-7b2c3d4e5f60"
	deviceB = "0b8e7d6c-5a4f-4e3d-9c2b-1a0f9e8d7c6b"
)

var start = time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC)

// --- mocks ---

type memStore struct {
	mu      sync.Mutex
	tables  map[domain.TableKey][]domain.EnrichedPoint
	history [][]domain.EnrichedPoint
	records []domain.SessionRecord
	loadErr error
	saveErr error
	pingErr error

	gate    chan struct{} // when set, every SaveTable waits for it
	started chan struct{}
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[domain.TableKey][]domain.EnrichedPoint)}
}

func (m *memStore) LoadTable(_ context.Context, key domain.TableKey) ([]domain.EnrichedPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	points, ok := m.tables[key]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", key, domain.ErrNotFound)
	}
	return append([]domain.EnrichedPoint(nil), points...), nil
}

func (m *memStore) SaveTable(_ context.Context, key domain.TableKey, points []domain.EnrichedPoint) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := append([]domain.EnrichedPoint(nil), points...)
	m.tables[key] = cp
	m.history = append(m.history, cp)
	return nil
}

func (m *memStore) RecordSession(_ context.Context, rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) ListSessions(_ context.Context) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionRecord(nil), m.records...), nil
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

func (m *memStore) table(key domain.TableKey) []domain.EnrichedPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[key]
}

func (m *memStore) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

type fakeSource struct {
	mu        sync.Mutex
	histories map[string][]domain.Point
	submitted []string
	submitErr error
	readyErr  error
}

func (f *fakeSource) Submit(_ context.Context, deviceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, deviceID)
	return "job-" + deviceID, nil
}

func (f *fakeSource) Ready(_ context.Context, _ string) (bool, error) {
	return f.readyErr == nil, f.readyErr
}

func (f *fakeSource) Fetch(_ context.Context, handle string) ([]domain.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histories[handle[len("job-"):]], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []domain.SessionRecord
	err     error
}

func (r *recordingPublisher) Publish(_ context.Context, rec domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type stubGeocoder struct {
	result domain.GeocodingResult
}

func (g stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return g.result, nil
}

var errBoom = errors.New("boom")

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// history builds a device track with the given number of locates per
// segment. Segments are one degree of latitude apart; locates inside a
// segment are ten minutes and about ten meters apart.
func history(deviceID string, sizes ...int) []domain.Point {
	var points []domain.Point
	minute := 0
	for seg, n := range sizes {
		for i := 0; i < n; i++ {
			points = append(points, domain.Point{
				ID:        deviceID,
				Timestamp: start.Add(time.Duration(minute) * time.Minute),
				Latitude:  40 + float64(seg),
				Longitude: -74 + float64(i)*0.0001,
				SupplyID:  "101",
			})
			minute += 10
		}
	}
	return points
}

func distanceKey(t *testing.T, deviceID string) domain.TableKey {
	t.Helper()
	cfg, ok := domain.PresetByName(domain.PresetDistance)
	if !ok {
		t.Fatal("distance preset missing")
	}
	return domain.KeyFor(cfg, deviceID)
}

type fixture struct {
	store     *memStore
	source    *fakeSource
	publisher *recordingPublisher
	pipeline  *pipeline.Pipeline
}

func newFixture(opts pipeline.Options) *fixture {
	f := &fixture{
		store: newMemStore(),
		source: &fakeSource{histories: map[string][]domain.Point{
			deviceA: history(deviceA, 2, 1, 3),
			deviceB: history(deviceB, 1, 1),
		}},
		publisher: &recordingPublisher{},
	}
	f.pipeline = pipeline.New(f.source, f.store, f.publisher, nil, discardLogger(), newTestMetrics(), opts)
	return f
}
