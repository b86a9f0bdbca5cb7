package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// Compile-time interface compliance checks
var (
	_ eventstore.EventStore        = (*EventStore)(nil)
	_ eventstore.Feed              = (*EventStore)(nil)
	_ eventstore.SchemaInitializer = (*EventStore)(nil)
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DefaultPageSize is the number of rows Read fetches per query.
const DefaultPageSize = 256

// Option configures an EventStore.
type Option func(*EventStore)

// WithIDFunc replaces the event ID generator.
func WithIDFunc(fn eventstore.IDFunc) Option {
	return func(s *EventStore) {
		s.newID = fn
	}
}

// WithLogger sets a logger for the store.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *EventStore) {
		s.logger = eventstore.OrNoOp(logger)
	}
}

// WithPageSize sets how many rows Read fetches per query.
func WithPageSize(n int) Option {
	return func(s *EventStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// EventStore is a PostgreSQL implementation of eventstore.EventStore.
type EventStore struct {
	db        *sql.DB
	tableName string
	newID     eventstore.IDFunc
	logger    eventstore.Logger
	pageSize  int
}

// NewEventStore creates an event store over an existing connection pool.
func NewEventStore(db *sql.DB, tableName string, opts ...Option) (*EventStore, error) {
	if tableName == "" {
		return nil, errEmptyTableName
	}
	s := &EventStore{
		db:        db,
		tableName: tableName,
		newID:     eventstore.NewEventID,
		logger:    eventstore.NoOpLogger{},
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InitSchema creates the events table and its indexes if they don't exist.
func (s *EventStore) InitSchema(ctx context.Context) error {
	return InitSchema(ctx, s.db, s.tableName)
}

// Write inserts the events in one transaction. The unique index on
// (stream_id, sequence) is the only concurrency check: a violation rolls
// back the batch and returns Conflict.
//
// Writers take a table-wide advisory lock before minting IDs, so IDs are
// committed in the order they were minted and a feed reader never sees a
// smaller ID appear behind one it has already passed.
func (s *EventStore) Write(ctx context.Context, stream string, events ...eventstore.Event) (eventstore.WriteResult, error) {
	if err := eventstore.ValidateWrite(stream, events); err != nil {
		return 0, err
	}
	if eventstore.HasDuplicateSequence(events) {
		return eventstore.Conflict, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.tableName); err != nil {
		return 0, fmt.Errorf("failed to acquire lock: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (stream_id, sequence, event_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, quoteIdentifier(s.tableName)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
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
			if isUniqueViolation(err) {
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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
