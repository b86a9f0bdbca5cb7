package archive

import (
	"context"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// DefaultChunkSize is used by Export when chunkSize is not positive.
const DefaultChunkSize = 1000

// Export copies the feed's records after the given ID into chunks of at most
// chunkSize records and returns the ID of the last exported record. When
// nothing was exported it returns after unchanged.
//
// A failure leaves the chunks written so far in place; calling Export again
// with the returned ID, or with Writer.LastID, resumes without gaps.
func Export(ctx context.Context, feed eventstore.Feed, w *Writer, after string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	last := after
	pending := make([]eventstore.EventRecord, 0, chunkSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := w.WriteChunk(pending); err != nil {
			return err
		}
		last = pending[len(pending)-1].ID
		pending = pending[:0]
		return nil
	}

	for record, err := range eventstore.FetchAll(ctx, feed, after, chunkSize) {
		if err != nil {
			return last, err
		}
		pending = append(pending, record)
		if len(pending) == chunkSize {
			if err := flush(); err != nil {
				return last, err
			}
		}
	}
	if err := flush(); err != nil {
		return last, err
	}
	return last, nil
}
