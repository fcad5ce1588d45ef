// Package sqlite persists session tables and completed sessions in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is a TableStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The flusher and request path write from different goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS locate_tables (
		preset              TEXT NOT NULL,
		truncation          INTEGER NOT NULL,
		minutes             INTEGER NOT NULL,
		device_id           TEXT NOT NULL,
		position            INTEGER NOT NULL,
		id                  TEXT NOT NULL,
		timestamp           TEXT NOT NULL,
		latitude            REAL NOT NULL,
		longitude           REAL NOT NULL,
		horizontal_accuracy REAL,
		supply_id           TEXT NOT NULL,
		ip_address          TEXT,
		created_at          TEXT,
		duplicate_count     INTEGER NOT NULL,
		has_prev            INTEGER NOT NULL,
		minutes_since_prev  REAL NOT NULL,
		km_since_prev       REAL NOT NULL,
		time_flag           INTEGER NOT NULL,
		distance_flag       INTEGER NOT NULL,
		speed_flag          INTEGER NOT NULL,
		conflict_flag       INTEGER NOT NULL,
		supplier_flag       INTEGER NOT NULL,
		segment             INTEGER NOT NULL,
		label               INTEGER,
		PRIMARY KEY (preset, truncation, minutes, device_id, position)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id       TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		elapsed_seconds REAL NOT NULL,
		locate_count    INTEGER NOT NULL,
		completed_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	`
	_, err := db.Exec(schema)
	return err
}

// LoadTable returns the points stored under key in their saved order.
func (s *Store) LoadTable(ctx context.Context, key domain.TableKey) ([]domain.EnrichedPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, latitude, longitude, horizontal_accuracy,
		       supply_id, ip_address, created_at, duplicate_count,
		       has_prev, minutes_since_prev, km_since_prev,
		       time_flag, distance_flag, speed_flag, conflict_flag, supplier_flag,
		       segment, label
		FROM locate_tables
		WHERE preset = ? AND truncation = ? AND minutes = ? AND device_id = ?
		ORDER BY position`,
		key.Preset, key.Precision, key.BucketMinutes, key.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", key, err)
	}
	defer rows.Close()

	var points []domain.EnrichedPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table %s: %w", key, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table %s: %w", key, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("table %s: %w", key, domain.ErrNotFound)
	}
	return points, nil
}

// SaveTable replaces the table stored under key.
func (s *Store) SaveTable(ctx context.Context, key domain.TableKey, points []domain.EnrichedPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM locate_tables
		WHERE preset = ? AND truncation = ? AND minutes = ? AND device_id = ?`,
		key.Preset, key.Precision, key.BucketMinutes, key.DeviceID); err != nil {
		return fmt.Errorf("clear table %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locate_tables (
			preset, truncation, minutes, device_id, position,
			id, timestamp, latitude, longitude, horizontal_accuracy,
			supply_id, ip_address, created_at, duplicate_count,
			has_prev, minutes_since_prev, km_since_prev,
			time_flag, distance_flag, speed_flag, conflict_flag, supplier_flag,
			segment, label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.ExecContext(ctx,
			key.Preset, key.Precision, key.BucketMinutes, key.DeviceID, i,
			p.ID, formatTime(p.Timestamp), p.Latitude, p.Longitude, nullFloat(p.HorizontalAccuracy),
			p.SupplyID, nullString(p.IPAddress), nullString(formatTime(p.CreatedAt)), p.DuplicateCount,
			p.HasPrev, p.MinutesSincePrev, p.KmSincePrev,
			p.TimeJump, p.DistanceJump, p.SpeedFlag, p.ConflictFlag, p.SupplierFlag,
			p.Segment, labelValue(p.Label),
		); err != nil {
			return fmt.Errorf("insert point %d of %s: %w", i, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit table %s: %w", key, err)
	}
	return nil
}

// RecordSession appends a completed session.
func (s *Store) RecordSession(ctx context.Context, rec domain.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (device_id, user_id, elapsed_seconds, locate_count, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.UserID, rec.ElapsedSeconds, rec.LocateCount, formatTime(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("record session %s: %w", rec.DeviceID, err)
	}
	return nil
}

// ListSessions returns every recorded session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, user_id, elapsed_seconds, locate_count, completed_at
		FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []domain.SessionRecord
	for rows.Next() {
		var (
			rec       domain.SessionRecord
			completed string
		)
		if err := rows.Scan(&rec.DeviceID, &rec.UserID, &rec.ElapsedSeconds, &rec.LocateCount, &completed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completed, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanPoint(rows *sql.Rows) (domain.EnrichedPoint, error) {
	var (
		p         domain.EnrichedPoint
		ts        string
		accuracy  sql.NullFloat64
		ip        sql.NullString
		createdAt sql.NullString
		label     sql.NullBool
	)
	err := rows.Scan(
		&p.ID, &ts, &p.Latitude, &p.Longitude, &accuracy,
		&p.SupplyID, &ip, &createdAt, &p.DuplicateCount,
		&p.HasPrev, &p.MinutesSincePrev, &p.KmSincePrev,
		&p.TimeJump, &p.DistanceJump, &p.SpeedFlag, &p.ConflictFlag, &p.SupplierFlag,
		&p.Segment, &label,
	)
	if err != nil {
		return p, err
	}

	if p.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return p, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	if accuracy.Valid {
		v := accuracy.Float64
		p.HorizontalAccuracy = &v
	}
	p.IPAddress = ip.String
	if createdAt.Valid && createdAt.String != "" {
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt.String); err != nil {
			return p, fmt.Errorf("parse created_at %q: %w", createdAt.String, err)
		}
	}
	if label.Valid {
		p.Label = domain.LabelFromBool(label.Bool)
	}
	return p, nil
}

// labelValue stores unset as NULL, good as 1 and bad as 0.
func labelValue(l domain.Label) any {
	if !l.IsSet() {
		return nil
	}
	return l == domain.LabelGood
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
