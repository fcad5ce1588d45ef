package pipeline

import (
	"context"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// LocateSource runs asynchronous history queries against the upstream
// warehouse. Submit starts a query and returns its handle; Ready reports
// whether it has finished and returns the query's error if it failed; Fetch
// returns the rows of a finished query.
type LocateSource interface {
	Submit(ctx context.Context, deviceID string) (string, error)
	Ready(ctx context.Context, handle string) (bool, error)
	Fetch(ctx context.Context, handle string) ([]domain.Point, error)
}

// TableStore persists session tables and completed sessions. LoadTable
// returns an error wrapping domain.ErrNotFound when no table exists for key.
type TableStore interface {
	LoadTable(ctx context.Context, key domain.TableKey) ([]domain.EnrichedPoint, error)
	SaveTable(ctx context.Context, key domain.TableKey, points []domain.EnrichedPoint) error
	RecordSession(ctx context.Context, rec domain.SessionRecord) error
	ListSessions(ctx context.Context) ([]domain.SessionRecord, error)
	Ping(ctx context.Context) error
}

// SessionPublisher announces completed sessions.
type SessionPublisher interface {
	Publish(ctx context.Context, rec domain.SessionRecord) error
}
