package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shogotsuneto/go-es-catchup/projector"
)

// Get returns the projector state for name, or EMPTY.
func (s *Store) Get(ctx context.Context, name string) (projector.State, error) {
	var phase, chunk, lastEvent string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT phase, chunk, last_event FROM projector_states WHERE projector_name = ?`,
		name,
	).Scan(&phase, &chunk, &lastEvent)
	if errors.Is(err, sql.ErrNoRows) {
		return projector.Empty(), nil
	}
	if err != nil {
		return projector.State{}, fmt.Errorf("failed to get projector state: %w", err)
	}
	return projector.ParseState(phase, chunk, lastEvent)
}

// Put upserts the projector state for name.
func (s *Store) Put(ctx context.Context, name string, state projector.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projector_states (projector_name, phase, chunk, last_event, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (projector_name) DO UPDATE SET
		     phase = excluded.phase,
		     chunk = excluded.chunk,
		     last_event = excluded.last_event,
		     updated_at = excluded.updated_at`,
		name, string(state.Phase), state.Chunk, state.LastEvent, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save projector state: %w", err)
	}
	return nil
}
