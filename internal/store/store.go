package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"skywatch/alert-server/internal/model"

	_ "modernc.org/sqlite"
)

// DefaultRecentLimit bounds RecentAlerts when the caller does not specify a
// limit, and caps any requested limit.
const DefaultRecentLimit = 200

// storedTimeLayout is a fixed-width RFC 3339 layout. Zero-padded fractional
// seconds keep the TEXT columns lexicographically sortable; RFC3339Nano drops
// trailing zeros, which would sort whole seconds after fractional ones.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite database connection and schema lifecycle. It is the
// sole owner of durable alert state and is safe for concurrent callers.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db, clock: clockwork.NewRealClock()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			msg TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			city TEXT NOT NULL,
			intensity INTEGER NOT NULL,
			source TEXT NOT NULL,
			ts TEXT NOT NULL,
			received_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);`,
		`CREATE TABLE IF NOT EXISTS ingestion_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT,
			payload TEXT,
			error TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

// InsertAlert persists a normalized alert, assigning its ID and defaulting a
// zero Timestamp to the ingestion time. The returned record is complete.
func (s *Store) InsertAlert(ctx context.Context, a model.Alert) (model.StoredAlert, error) {
	if s.db == nil {
		return model.StoredAlert{}, fmt.Errorf("store not initialized")
	}

	now := s.clock.Now().UTC()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}

	stored := model.StoredAlert{
		Alert:      a,
		ID:         uuid.NewString(),
		ReceivedAt: now,
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO alerts (id, type, msg, lat, lng, city, intensity, source, ts, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		stored.ID,
		stored.Type,
		stored.Message,
		stored.Latitude,
		stored.Longitude,
		stored.City,
		stored.Intensity,
		stored.Source,
		stored.Timestamp.UTC().Format(storedTimeLayout),
		stored.ReceivedAt.Format(storedTimeLayout),
	)
	if err != nil {
		return model.StoredAlert{}, fmt.Errorf("insert alert: %w", err)
	}

	return stored, nil
}

// RecentAlerts returns the most recent alerts ordered by alert time descending.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]model.StoredAlert, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, type, msg, lat, lng, city, intensity, source, ts, received_at
		 FROM alerts
		 ORDER BY ts DESC
		 LIMIT ?;`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]model.StoredAlert, 0, limit)

	for rows.Next() {
		var (
			a          model.StoredAlert
			tsStr      string
			receivedAt string
		)

		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.Latitude, &a.Longitude, &a.City, &a.Intensity, &a.Source, &tsStr, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}

		a.Timestamp = parseStoredTime(tsStr)
		a.ReceivedAt = parseStoredTime(receivedAt)

		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return alerts, nil
}

// InsertIngestionError records a payload that failed normalization or persistence.
func (s *Store) InsertIngestionError(ctx context.Context, e model.IngestionError) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ingestion_errors (source, payload, error) VALUES (?, ?, ?);`,
		e.Source,
		e.Payload,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion error: %w", err)
	}
	return nil
}

func parseStoredTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		t, _ = time.Parse("2006-01-02T15:04:05Z07:00", v)
	}
	return t
}
