// Package sqlite provides a SQLite-backed event store, store feed and
// projector state store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/projector"
	"github.com/shogotsuneto/go-es-catchup/sqlite/migrations"
)

// Compile-time interface compliance checks
var (
	_ eventstore.EventStore        = (*Store)(nil)
	_ eventstore.Feed              = (*Store)(nil)
	_ eventstore.SchemaInitializer = (*Store)(nil)
	_ projector.StateStore         = (*Store)(nil)
)

// DefaultPageSize is the number of rows Read fetches per query.
const DefaultPageSize = 256

// Option configures a Store.
type Option func(*Store)

// WithIDFunc replaces the event ID generator.
func WithIDFunc(fn eventstore.IDFunc) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithLogger sets a logger for the store.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Store) {
		s.logger = eventstore.OrNoOp(logger)
	}
}

// WithPageSize sets how many rows Read fetches per query.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Store persists events and projector states in a SQLite database.
type Store struct {
	sqlDB    *sql.DB
	newID    eventstore.IDFunc
	logger   eventstore.Logger
	pageSize int
}

// Open opens the database at path and applies the embedded migrations.
//
// Transactions start with BEGIN IMMEDIATE, so event IDs are minted while the
// database write lock is held and their order matches commit order.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB:    sqlDB,
		newID:    eventstore.NewEventID,
		logger:   eventstore.NoOpLogger{},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.InitSchema(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InitSchema applies any migration that has not run yet.
func (s *Store) InitSchema(ctx context.Context) error {
	if err := applyMigrations(ctx, s.sqlDB, migrations.FS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Write inserts the events in a single transaction. A primary key collision
// on (stream_id, sequence) rolls back the batch and returns Conflict.
func (s *Store) Write(ctx context.Context, stream string, events ...eventstore.Event) (eventstore.WriteResult, error) {
	if err := eventstore.ValidateWrite(stream, events); err != nil {
		return 0, err
	}
	if eventstore.HasDuplicateSequence(events) {
		return eventstore.Conflict, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (stream_id, sequence, event_id, event_type, event_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, event := range events {
		id, err := s.newID()
		if err != nil {
			return 0, err
		}
		data := event.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, stream, event.Sequence, id, event.Type, data, now); err != nil {
			if isConstraintError(err) {
				s.logger.Debug(ctx, "write conflict", "stream", stream, "sequence", event.Sequence)
				return eventstore.Conflict, nil
			}
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return eventstore.Success, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
