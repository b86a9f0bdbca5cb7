// Package bbolt stores projector states in an embedded BoltDB file.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/shogotsuneto/go-es-catchup/projector"
)

const stateBucket = "projector_states"

var _ projector.StateStore = (*StateStore)(nil)

// StateStore provides a BoltDB-backed projector state store.
type StateStore struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed state store at the provided path.
func Open(path string) (*StateStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	store := &StateStore{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *StateStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the state for name, or EMPTY when none was stored.
func (s *StateStore) Get(ctx context.Context, name string) (projector.State, error) {
	if err := ctx.Err(); err != nil {
		return projector.State{}, err
	}
	if s == nil || s.db == nil {
		return projector.State{}, fmt.Errorf("storage is not configured")
	}

	state := projector.Empty()
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		if bucket == nil {
			return fmt.Errorf("state bucket is missing")
		}
		payload := bucket.Get([]byte(name))
		if payload == nil {
			return nil
		}
		if err := json.Unmarshal(payload, &state); err != nil {
			return fmt.Errorf("unmarshal projector state: %w", err)
		}
		return nil
	})
	if err != nil {
		return projector.State{}, err
	}
	if err := state.Validate(); err != nil {
		return projector.State{}, err
	}
	return state, nil
}

// Put persists the state for name. The write is fsynced before Put returns.
func (s *StateStore) Put(ctx context.Context, name string, state projector.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("projector name is required")
	}
	if err := state.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal projector state: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucket))
		if bucket == nil {
			return fmt.Errorf("state bucket is missing")
		}
		return bucket.Put([]byte(name), payload)
	})
}

func (s *StateStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(stateBucket)); err != nil {
			return fmt.Errorf("create state bucket: %w", err)
		}
		return nil
	})
}
