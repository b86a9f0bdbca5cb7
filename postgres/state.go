package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shogotsuneto/go-es-catchup/projector"
)

var _ projector.StateStore = (*StateStore)(nil)

// StateStore keeps one row per projector.
type StateStore struct {
	db        *sql.DB
	tableName string
}

// NewStateStore creates a state store over an existing connection pool.
func NewStateStore(db *sql.DB, tableName string) (*StateStore, error) {
	if tableName == "" {
		return nil, errEmptyTableName
	}
	return &StateStore{db: db, tableName: tableName}, nil
}

// InitSchema creates the state table if it doesn't exist.
func (s *StateStore) InitSchema(ctx context.Context) error {
	return InitStateSchema(ctx, s.db, s.tableName)
}

// Get returns the projector state for name, or EMPTY.
func (s *StateStore) Get(ctx context.Context, name string) (projector.State, error) {
	query := fmt.Sprintf(
		`SELECT phase, chunk, last_event FROM %s WHERE projector_name = $1`,
		quoteIdentifier(s.tableName),
	)
	var phase, chunk, lastEvent string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&phase, &chunk, &lastEvent)
	if errors.Is(err, sql.ErrNoRows) {
		return projector.Empty(), nil
	}
	if err != nil {
		return projector.State{}, fmt.Errorf("failed to get projector state: %w", err)
	}
	return projector.ParseState(phase, chunk, lastEvent)
}

// Put upserts the projector state for name.
func (s *StateStore) Put(ctx context.Context, name string, state projector.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (projector_name, phase, chunk, last_event, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (projector_name) DO UPDATE SET
			phase = EXCLUDED.phase,
			chunk = EXCLUDED.chunk,
			last_event = EXCLUDED.last_event,
			updated_at = EXCLUDED.updated_at
	`, quoteIdentifier(s.tableName))

	_, err := s.db.ExecContext(ctx, query, name, string(state.Phase), state.Chunk, state.LastEvent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save projector state: %w", err)
	}
	return nil
}
