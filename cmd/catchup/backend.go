package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/bbolt"
	"github.com/shogotsuneto/go-es-catchup/internal/config"
	"github.com/shogotsuneto/go-es-catchup/memory"
	"github.com/shogotsuneto/go-es-catchup/postgres"
	"github.com/shogotsuneto/go-es-catchup/projector"
	"github.com/shogotsuneto/go-es-catchup/sqlite"
)

// storeFeed is an event store that can also be tailed.
type storeFeed interface {
	eventstore.EventStore
	eventstore.Feed
}

// backend bundles the configured event store and projector state store.
type backend struct {
	store   storeFeed
	states  projector.StateStore
	schemas []eventstore.SchemaInitializer
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg config.Config, logger eventstore.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.NewEventStore(memory.WithLogger(logger))
		b.store = store
		b.states = memory.NewStateStore()
		b.schemas = append(b.schemas, store)

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.store = store
		b.states = store
		b.schemas = append(b.schemas, store)
		b.closers = append(b.closers, store.Close)

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		store, err := postgres.NewEventStore(db, cfg.EventsTable, postgres.WithLogger(logger))
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		states, err := postgres.NewStateStore(db, cfg.StatesTable)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.store = store
		b.states = states
		b.schemas = append(b.schemas, store, states)

	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	if cfg.StateBackend == config.StateBbolt {
		states, err := bbolt.Open(cfg.BboltPath)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.states = states
		b.closers = append(b.closers, states.Close)
	}

	return b, nil
}

// liveStart picks where the live feed begins: after the projector's
// watermark, but never before what a feed with the given retention still holds.
func liveStart(state projector.State, retention time.Duration, now time.Time) string {
	start := state.LastEvent
	if retention <= 0 {
		return start
	}
	if bound := eventstore.IDLowerBound(now.Add(-retention)); bound > start {
		return bound
	}
	return start
}
