package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/annotation"
	"github.com/couchcryptid/locate-annotation-service/internal/cache"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
)

// Options tunes a Pipeline. Zero values fall back to the defaults below.
type Options struct {
	DefaultPreset    string
	FlushThreshold   int
	PollInterval     time.Duration
	MaxWait          time.Duration
	FlushTimeout     time.Duration
	SessionCacheSize int
	MapWidthPx       int
}

func (o Options) withDefaults() Options {
	if o.DefaultPreset == "" {
		o.DefaultPreset = domain.PresetDistance
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = annotation.DefaultFlushThreshold
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Minute
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 30 * time.Second
	}
	if o.SessionCacheSize <= 0 {
		o.SessionCacheSize = 64
	}
	if o.MapWidthPx <= 0 {
		o.MapWidthPx = 800
	}
	return o
}

// OpenRequest asks for an annotation session on one device. Zero Precision
// or BucketMinutes keep the preset's values.
type OpenRequest struct {
	DeviceID      string `json:"device_id"`
	UserID        string `json:"user_id"`
	Preset        string `json:"preset,omitempty"`
	Precision     int    `json:"truncation,omitempty"`
	BucketMinutes int    `json:"minutes,omitempty"`
}

// Pipeline loads device histories, runs the segmentation engine and keeps the
// open annotation sessions.
type Pipeline struct {
	source    LocateSource
	store     TableStore
	publisher SessionPublisher
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	sessions  *cache.LRU[string, *Session]
	locks     *deviceLocks
	flushers  *flushers
}

// New creates a Pipeline. source, publisher and geocoder may be nil: without
// a source only cached tables can be opened, without a publisher completed
// sessions are only recorded in the store, and without a geocoder views carry
// no place names.
func New(source LocateSource, store TableStore, publisher SessionPublisher, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	p := &Pipeline{
		source:    source,
		store:     store,
		publisher: publisher,
		geocoder:  geocoder,
		logger:    logger,
		metrics:   metrics,
		opts:      opts.withDefaults(),
		locks:     newDeviceLocks(),
	}
	p.sessions = cache.New(p.opts.SessionCacheSize, p.evict)
	p.flushers = newFlushers(func(key domain.TableKey) *Flusher {
		return NewFlusher(key, p.store, p.opts.FlushTimeout, p.logger, p.metrics)
	})
	return p
}

// CheckReadiness returns nil when the store is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store not reachable: %w", err)
	}
	return nil
}

// Open starts or resumes the session of a device. A table cached under the
// same parameters is resumed as-is; otherwise the history is queried upstream,
// computed and persisted. Concurrent opens of one device return the same
// session.
func (p *Pipeline) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	deviceID, err := domain.ValidateDeviceID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", domain.ErrMalformedInput)
	}
	cfg, err := p.engineConfig(req)
	if err != nil {
		return nil, err
	}
	key := domain.KeyFor(cfg, deviceID)

	unlock := p.locks.lock(deviceID)
	defer unlock()

	if s, ok := p.sessions.Get(deviceID); ok {
		if s.key == key {
			return s, nil
		}
		p.sessions.Remove(deviceID)
		if err := p.closeSession(ctx, s); err != nil {
			p.logger.Warn("close previous session failed", "device_id", deviceID, "error", err)
		}
	}

	flusher := p.flushers.acquire(key)
	if err := p.awaitFlush(ctx, flusher, key); err != nil {
		p.flushers.release(key)
		return nil, err
	}

	engine := domain.NewEngine(cfg)
	result, source, err := p.load(ctx, engine, key)
	if err != nil {
		p.flushers.release(key)
		return nil, err
	}

	s := newSession(p, key, userID, result, flusher)
	p.sessions.Put(deviceID, s)
	p.metrics.SessionsOpened.WithLabelValues(source).Inc()
	p.metrics.SegmentsPerSession.Observe(float64(len(result.Segments)))
	p.metrics.OpenSessions.Set(float64(p.sessions.Len()))

	st := s.state.Stats()
	p.logger.Info("session opened",
		"device_id", deviceID,
		"user_id", userID,
		"preset", cfg.Name,
		"source", source,
		"points", len(result.Points),
		"segments", st.Total,
		"annotated", st.Annotated,
		"duplicates_removed", result.DuplicatesRemoved,
	)
	return s, nil
}

// Session returns the open session of a device.
func (p *Pipeline) Session(deviceID string) (*Session, error) {
	id, err := domain.ValidateDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	s, ok := p.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("no open session for %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// Close flushes the session of a device, waits for the write and forgets the
// session.
func (p *Pipeline) Close(ctx context.Context, deviceID string) error {
	id, err := domain.ValidateDeviceID(deviceID)
	if err != nil {
		return err
	}
	unlock := p.locks.lock(id)
	defer unlock()

	s, ok := p.sessions.Remove(id)
	if !ok {
		return fmt.Errorf("no open session for %s: %w", id, domain.ErrNotFound)
	}
	p.metrics.OpenSessions.Set(float64(p.sessions.Len()))
	return p.closeSession(ctx, s)
}

// Shutdown flushes every open session and waits for the writes or ctx.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range p.sessions.Values() {
		unlock := p.locks.lock(s.key.DeviceID)
		if _, ok := p.sessions.Remove(s.key.DeviceID); ok {
			if err := p.closeSession(ctx, s); err != nil {
				errs = append(errs, err)
			}
		}
		unlock()
	}
	p.metrics.OpenSessions.Set(0)
	return errors.Join(errs...)
}

// Leaderboard ranks analysts by the sessions recorded in the store.
func (p *Pipeline) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	records, err := p.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return domain.Leaderboard(records), nil
}

func (p *Pipeline) engineConfig(req OpenRequest) (domain.EngineConfig, error) {
	name := req.Preset
	if name == "" {
		name = p.opts.DefaultPreset
	}
	cfg, ok := domain.PresetByName(name)
	if !ok {
		return domain.EngineConfig{}, fmt.Errorf("unknown preset %q: %w", name, domain.ErrMalformedInput)
	}
	if req.Precision != 0 {
		cfg.Dedupe.Precision = req.Precision
	}
	if req.BucketMinutes != 0 {
		cfg.Dedupe.BucketMinutes = req.BucketMinutes
	}
	if err := cfg.Validate(); err != nil {
		return domain.EngineConfig{}, err
	}
	return cfg, nil
}

// awaitFlush waits for writes of key still in flight, typically from a
// session evicted moments ago, so the table read next is current. A failed
// write is logged and the last stored table is used.
func (p *Pipeline) awaitFlush(ctx context.Context, f *Flusher, key domain.TableKey) error {
	task := f.Last()
	if task == nil {
		return nil
	}
	if err := task.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.logger.Warn("previous flush failed, reading last stored table", "table", key.String(), "error", err)
	}
	return nil
}

// load resumes the cached table of key or computes a fresh one. It returns
// the result and where it came from ("cache" or "upstream").
func (p *Pipeline) load(ctx context.Context, engine *domain.Engine, key domain.TableKey) (domain.Result, string, error) {
	cached, err := p.store.LoadTable(ctx, key)
	switch {
	case err == nil && len(cached) > 0:
		result, rerr := engine.Resume(cached)
		if rerr == nil {
			return result, "cache", nil
		}
		p.logger.Warn("cached table is malformed, recomputing", "table", key.String(), "error", rerr)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		p.logger.Warn("cache lookup failed, querying upstream", "table", key.String(), "error", err)
	}

	points, err := p.query(ctx, key.DeviceID)
	if err != nil {
		return domain.Result{}, "", err
	}
	result := engine.Run(points)
	if len(result.Points) == 0 {
		return domain.Result{}, "", fmt.Errorf("no locates for %s: %w", key.DeviceID, domain.ErrNotFound)
	}

	if err := p.store.SaveTable(ctx, key, result.Points); err != nil {
		p.metrics.Flushes.WithLabelValues("error").Inc()
		p.logger.Error("persist initial table failed", "table", key.String(), "error", err)
	} else {
		p.metrics.Flushes.WithLabelValues("success").Inc()
	}
	return result, "upstream", nil
}

func (p *Pipeline) query(ctx context.Context, deviceID string) ([]domain.Point, error) {
	if p.source == nil {
		return nil, fmt.Errorf("no upstream source configured: %w", domain.ErrUpstreamUnavailable)
	}

	start := domain.Clock().Now()
	handle, err := p.source.Submit(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("submit query: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	p.logger.Info("upstream query submitted", "device_id", deviceID, "handle", handle)

	err = Poll(ctx, domain.Clock(), p.opts.PollInterval, p.opts.MaxWait, func(ctx context.Context) (bool, error) {
		return p.source.Ready(ctx, handle)
	})
	p.metrics.UpstreamWait.Observe(domain.Clock().Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("wait for query: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	points, err := p.source.Fetch(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no locates for %s: %w", deviceID, domain.ErrNotFound)
	}
	return points, nil
}

// evict runs when the registry pushes out the least recently used session.
// Its labels are flushed in the background.
func (p *Pipeline) evict(deviceID string, s *Session) {
	p.logger.Info("session evicted", "device_id", deviceID)
	s.flushAll()
	s.release()
}

func (p *Pipeline) closeSession(ctx context.Context, s *Session) error {
	task := s.flushAll()
	s.release()
	if task == nil {
		return nil
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", s.key.String(), err)
	}
	p.logger.Info("session closed", "device_id", s.key.DeviceID)
	return nil
}
