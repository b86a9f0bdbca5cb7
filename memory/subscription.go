package memory

import (
	"context"
	"iter"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// Subscription is an unbounded live feed over an in-memory store.
type Subscription struct {
	store *EventStore
	after string
}

// Subscribe returns a live feed that yields every record with an ID greater
// than after, including records written while it is being consumed.
func (s *EventStore) Subscribe(after string) *Subscription {
	return &Subscription{store: s, after: after}
}

// Events yields records as they are written and blocks while there are none.
// The sequence ends when ctx is done.
func (sub *Subscription) Events(ctx context.Context) iter.Seq2[eventstore.EventRecord, error] {
	return func(yield func(eventstore.EventRecord, error) bool) {
		cursor := sub.after
		for {
			// Snapshot and wait channel come from the same critical section so
			// a write between them cannot be missed.
			sub.store.mu.RLock()
			batch := sub.store.after(cursor, 0)
			wait := sub.store.notify
			sub.store.mu.RUnlock()

			for _, record := range batch {
				if !yield(record, nil) {
					return
				}
				cursor = record.ID
			}
			if len(batch) > 0 {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-wait:
			}
		}
	}
}
