package eventstore

import (
	"context"
	"iter"
)

// Feed is a store-wide tail over all streams, ordered by record ID.
type Feed interface {
	// Fetch returns up to limit records with an ID strictly greater than after,
	// in ascending ID order. An empty after starts from the beginning.
	Fetch(ctx context.Context, after string, limit int) ([]EventRecord, error)
}

// DefaultFetchLimit is used by FetchAll when limit is not positive.
const DefaultFetchLimit = 512

// FetchAll pages through the feed from after until a fetch returns no records.
// The sequence is finite: it reflects what the feed held while being read.
func FetchAll(ctx context.Context, feed Feed, after string, limit int) iter.Seq2[EventRecord, error] {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return func(yield func(EventRecord, error) bool) {
		cursor := after
		for {
			batch, err := feed.Fetch(ctx, cursor, limit)
			if err != nil {
				yield(EventRecord{}, err)
				return
			}
			if len(batch) == 0 {
				return
			}
			for _, record := range batch {
				if !yield(record, nil) {
					return
				}
				cursor = record.ID
			}
		}
	}
}
