// Package warehouse queries device locate histories from the PostgreSQL
// warehouse. Queries run asynchronously: Submit returns a handle that the
// caller polls with Ready and collects with Fetch.
package warehouse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// jobRetention bounds how long a finished job that nobody fetched is kept.
const jobRetention = 30 * time.Minute

const locateQuery = `
	SELECT lower(idfa), "timestamp", latitude, longitude, horizontal_accuracy,
	       supply_id, ip_address, created_at
	FROM locates
	WHERE lower(idfa) = $1
	ORDER BY "timestamp", latitude, longitude`

// loadFunc runs one history query to completion.
type loadFunc func(ctx context.Context, deviceID string) ([]domain.Point, error)

type job struct {
	submitted time.Time
	done      chan struct{}
	points    []domain.Point
	err       error
}

// Source runs history queries on a pgx pool.
type Source struct {
	pool   *pgxpool.Pool
	load   loadFunc
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
}

// Open connects to the warehouse at dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Source, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	s := newSource(nil)
	s.pool = pool
	s.load = s.queryLocates
	return s, nil
}

func newSource(load loadFunc) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		load:   load,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Close cancels running queries and closes the pool.
func (s *Source) Close() {
	s.cancel()
	if s.pool != nil {
		s.pool.Close()
	}
}

// Submit starts the history query of deviceID and returns its handle. The
// query outlives ctx; it stops when the Source is closed.
func (s *Source) Submit(_ context.Context, deviceID string) (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("warehouse closed: %w", err)
	}

	handle := uuid.NewString()
	j := &job{submitted: domain.Clock().Now(), done: make(chan struct{})}

	s.mu.Lock()
	s.pruneLocked()
	s.jobs[handle] = j
	s.mu.Unlock()

	go func() {
		defer close(j.done)
		j.points, j.err = s.load(s.ctx, deviceID)
	}()
	return handle, nil
}

// Ready reports whether the query behind handle has finished. A failed query
// is forgotten and its error returned.
func (s *Source) Ready(_ context.Context, handle string) (bool, error) {
	j, err := s.job(handle)
	if err != nil {
		return false, err
	}
	select {
	case <-j.done:
	default:
		return false, nil
	}
	if j.err != nil {
		s.forget(handle)
		return false, fmt.Errorf("query %s: %w", handle, j.err)
	}
	return true, nil
}

// Fetch returns the rows of a finished query and forgets the handle.
func (s *Source) Fetch(ctx context.Context, handle string) ([]domain.Point, error) {
	j, err := s.job(handle)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.forget(handle)
	if j.err != nil {
		return nil, fmt.Errorf("query %s: %w", handle, j.err)
	}
	return j.points, nil
}

// Pending returns the number of jobs not yet fetched.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Source) job(handle string) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[handle]
	if !ok {
		return nil, fmt.Errorf("unknown query handle %q: %w", handle, domain.ErrNotFound)
	}
	return j, nil
}

func (s *Source) forget(handle string) {
	s.mu.Lock()
	delete(s.jobs, handle)
	s.mu.Unlock()
}

// pruneLocked drops finished jobs older than jobRetention.
func (s *Source) pruneLocked() {
	cutoff := domain.Clock().Now().Add(-jobRetention)
	for handle, j := range s.jobs {
		select {
		case <-j.done:
			if j.submitted.Before(cutoff) {
				delete(s.jobs, handle)
			}
		default:
		}
	}
}

func (s *Source) queryLocates(ctx context.Context, deviceID string) ([]domain.Point, error) {
	rows, err := s.pool.Query(ctx, locateQuery, strings.ToLower(deviceID))
	if err != nil {
		return nil, fmt.Errorf("query locates: %w", err)
	}
	defer rows.Close()

	var points []domain.Point
	for rows.Next() {
		p, err := scanLocate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locate: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read locates: %w", err)
	}
	return points, nil
}

func scanLocate(row pgx.Row) (domain.Point, error) {
	var (
		p         domain.Point
		ip        *string
		createdAt *time.Time
	)
	if err := row.Scan(&p.ID, &p.Timestamp, &p.Latitude, &p.Longitude, &p.HorizontalAccuracy,
		&p.SupplyID, &ip, &createdAt); err != nil {
		return p, err
	}
	p.Timestamp = p.Timestamp.UTC()
	if ip != nil {
		p.IPAddress = cleanIP(*ip)
	}
	if createdAt != nil {
		p.CreatedAt = createdAt.UTC()
	}
	return p, nil
}

// cleanIP blanks the placeholder some suppliers send instead of an address.
func cleanIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "<nil>" {
		return ""
	}
	return ip
}
