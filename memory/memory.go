// Package memory provides in-memory implementations of the event store, the
// store feed, the projector state store and the archive. They are suitable for
// testing and demonstration purposes.
package memory

import (
	"context"
	"iter"
	"sort"
	"sync"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// Compile-time interface compliance checks
var (
	_ eventstore.EventStore = (*EventStore)(nil)
	_ eventstore.Feed       = (*EventStore)(nil)
)

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

// EventStore is a simple in-memory implementation of EventStore and Feed.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string][]eventstore.EventRecord // ordered by sequence
	log     []eventstore.EventRecord            // ordered by ID
	notify  chan struct{}                       // closed and replaced on every write
	newID   eventstore.IDFunc
	logger  eventstore.Logger
}

// NewEventStore creates a new in-memory event store.
func NewEventStore(opts ...Option) *EventStore {
	s := &EventStore{
		streams: make(map[string][]eventstore.EventRecord),
		notify:  make(chan struct{}),
		newID:   eventstore.NewEventID,
		logger:  eventstore.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitSchema is a no-op.
func (s *EventStore) InitSchema(context.Context) error {
	return nil
}

// Write inserts the events if none of their sequences exist in the stream.
func (s *EventStore) Write(ctx context.Context, stream string, events ...eventstore.Event) (eventstore.WriteResult, error) {
	if err := eventstore.ValidateWrite(stream, events); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if eventstore.HasDuplicateSequence(events) {
		s.logger.Debug(ctx, "write conflict: duplicate sequence in batch", "stream", stream)
		return eventstore.Conflict, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.streams[stream]
	for _, e := range events {
		if _, found := findSequence(existing, e.Sequence); found {
			s.logger.Debug(ctx, "write conflict: sequence exists", "stream", stream, "sequence", e.Sequence)
			return eventstore.Conflict, nil
		}
	}

	// Mint every ID before touching the maps so a generator failure writes nothing.
	records := make([]eventstore.EventRecord, len(events))
	for i, e := range events {
		id, err := s.newID()
		if err != nil {
			return 0, err
		}
		records[i] = eventstore.EventRecord{
			Event: eventstore.Event{
				Sequence: e.Sequence,
				Type:     e.Type,
				Data:     append([]byte(nil), e.Data...),
			},
			ID:     id,
			Stream: stream,
		}
	}

	for _, r := range records {
		i, _ := findSequence(existing, r.Sequence)
		existing = append(existing, eventstore.EventRecord{})
		copy(existing[i+1:], existing[i:])
		existing[i] = r
		s.log = append(s.log, r)
	}
	s.streams[stream] = existing

	close(s.notify)
	s.notify = make(chan struct{})

	return eventstore.Success, nil
}

// Read yields a snapshot of the stream, taken when iteration starts.
func (s *EventStore) Read(ctx context.Context, stream string) iter.Seq2[eventstore.EventRecord, error] {
	return func(yield func(eventstore.EventRecord, error) bool) {
		s.mu.RLock()
		snapshot := append([]eventstore.EventRecord(nil), s.streams[stream]...)
		s.mu.RUnlock()

		for _, r := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(eventstore.EventRecord{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Fetch returns up to limit records of any stream with an ID greater than after.
func (s *EventStore) Fetch(ctx context.Context, after string, limit int) ([]eventstore.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.after(after, limit), nil
}

// after must be called with the lock held.
func (s *EventStore) after(id string, limit int) []eventstore.EventRecord {
	start := sort.Search(len(s.log), func(i int) bool {
		return s.log[i].ID > id
	})
	end := len(s.log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]eventstore.EventRecord(nil), s.log[start:end]...)
}

// findSequence returns the position of seq in records, or where it would be inserted.
func findSequence(records []eventstore.EventRecord, seq int64) (int, bool) {
	i := sort.Search(len(records), func(i int) bool {
		return records[i].Sequence >= seq
	})
	return i, i < len(records) && records[i].Sequence == seq
}
