package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/projector"
)

var _ projector.Archive = (*Archive)(nil)

// Archive is an ordered list of chunks held in memory.
type Archive struct {
	mu     sync.RWMutex
	chunks []eventstore.Chunk
}

// NewArchive creates an archive holding chunks in the given order.
func NewArchive(chunks ...eventstore.Chunk) *Archive {
	return &Archive{chunks: chunks}
}

// Add appends a chunk to the end of the archive.
func (a *Archive) Add(chunk eventstore.Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = append(a.chunks, chunk)
}

// Chunks yields the chunks after the one with ID after.
func (a *Archive) Chunks(ctx context.Context, after string) iter.Seq2[eventstore.Chunk, error] {
	return func(yield func(eventstore.Chunk, error) bool) {
		a.mu.RLock()
		chunks := append([]eventstore.Chunk(nil), a.chunks...)
		a.mu.RUnlock()

		start := 0
		if after != "" {
			start = -1
			for i, c := range chunks {
				if c.ID == after {
					start = i + 1
					break
				}
			}
			if start < 0 {
				yield(eventstore.Chunk{}, fmt.Errorf("%w: %s", projector.ErrUnknownChunk, after))
				return
			}
		}

		for _, c := range chunks[start:] {
			if err := ctx.Err(); err != nil {
				yield(eventstore.Chunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Chunk returns the chunk with the given ID.
func (a *Archive) Chunk(_ context.Context, id string) (eventstore.Chunk, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.chunks {
		if c.ID == id {
			return c, nil
		}
	}
	return eventstore.Chunk{}, fmt.Errorf("%w: %s", projector.ErrMissingChunk, id)
}
