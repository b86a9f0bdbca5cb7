package memory

import (
	"context"
	"sync"

	"github.com/shogotsuneto/go-es-catchup/projector"
)

var _ projector.StateStore = (*StateStore)(nil)

// StateStore keeps projector states in a map keyed by projector name.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]projector.State
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]projector.State)}
}

// Get returns the state for name, or EMPTY.
func (s *StateStore) Get(ctx context.Context, name string) (projector.State, error) {
	if err := ctx.Err(); err != nil {
		return projector.State{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[name]
	if !ok {
		return projector.Empty(), nil
	}
	return state, nil
}

// Put stores the state for name.
func (s *StateStore) Put(ctx context.Context, name string, state projector.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = state
	return nil
}
