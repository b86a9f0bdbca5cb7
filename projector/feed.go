package projector

import (
	"context"
	"iter"
	"time"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// PollingFeed is a LiveFeed that repeatedly fetches from a store Feed.
type PollingFeed struct {
	Source       eventstore.Feed   // store tail (memory, sqlite, postgres)
	Start        string            // fetch records after this ID; see eventstore.IDLowerBound
	BatchSize    int               // default: 512
	IdleSleep    time.Duration     // default: 200ms between empty polls
	StopWhenIdle bool              // end the sequence on the first empty poll
	MaxBatches   int               // 0 = unlimited (useful for tests/cron)
	Logger       eventstore.Logger // optional, nil-safe
}

var _ LiveFeed = (*PollingFeed)(nil)

// Events polls the source and yields records in ID order. The sequence ends
// when ctx is done, when MaxBatches is reached, or on the first empty poll if
// StopWhenIdle is set. Cancellation ends the sequence without an error.
func (f *PollingFeed) Events(ctx context.Context) iter.Seq2[eventstore.EventRecord, error] {
	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = 512
	}

	idleSleep := f.IdleSleep
	if idleSleep <= 0 {
		idleSleep = 200 * time.Millisecond
	}

	logger := eventstore.OrNoOp(f.Logger)

	return func(yield func(eventstore.EventRecord, error) bool) {
		cursor := f.Start
		batchCount := 0

		for {
			if ctx.Err() != nil {
				logger.Debug(ctx, "live feed stopped due to context cancellation")
				return
			}

			if f.MaxBatches > 0 && batchCount >= f.MaxBatches {
				logger.Debug(ctx, "live feed stopped after reaching MaxBatches", "maxBatches", f.MaxBatches)
				return
			}

			batch, err := f.Source.Fetch(ctx, cursor, batchSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(eventstore.EventRecord{}, err)
				return
			}

			if len(batch) == 0 {
				if f.StopWhenIdle {
					return
				}
				logger.Debug(ctx, "no events fetched, sleeping", "idleSleep", idleSleep)
				select {
				case <-ctx.Done():
					return
				case <-time.After(idleSleep):
				}
				continue
			}

			logger.Debug(ctx, "fetched batch", "eventCount", len(batch))
			for _, record := range batch {
				if !yield(record, nil) {
					return
				}
				cursor = record.ID
			}
			batchCount++
		}
	}
}
