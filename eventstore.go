// Package eventstore provides an append-only, per-stream event log with
// optimistic concurrency control, and the shared record types consumed by
// the projector.
package eventstore

import (
	"context"
	"errors"
	"iter"
)

// Event represents a single event as written by a caller.
type Event struct {
	// Sequence is the caller-assigned position of the event in its stream.
	// It must be unique within the stream and is the optimistic concurrency token.
	Sequence int64
	// Type describes the kind of event
	Type string
	// Data contains the event payload
	Data []byte
}

// EventRecord is an Event loaded back from the store, together with the
// metadata the store assigned when it was written.
type EventRecord struct {
	Event
	// ID is minted by the store at write time. IDs sort lexicographically in
	// insertion order across all streams (see NewEventID).
	ID string
	// Stream is the key of the stream the event belongs to.
	Stream string
}

// Chunk is a resumable batch of archived events.
type Chunk struct {
	// ID is the cursor token to pass back to the archive to continue after this chunk.
	ID string
	// Events are ordered by ID.
	Events []EventRecord
}

// WriteResult is the outcome of a Write that did not fail with an error.
type WriteResult int

const (
	// Success means every event in the batch was durably inserted.
	Success WriteResult = iota + 1
	// Conflict means at least one (stream, sequence) key already existed, or was
	// repeated inside the batch. Nothing was written.
	Conflict
)

func (r WriteResult) String() string {
	switch r {
	case Success:
		return "Success"
	case Conflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// IsOK reports whether the write succeeded.
func (r WriteResult) IsOK() bool {
	return r == Success
}

// EventStore defines the core interface for event storage.
type EventStore interface {
	// Write atomically inserts one or more events into the given stream.
	// Each event is inserted only if no event with the same sequence exists
	// in the stream. If any key collides, nothing is written and Conflict is
	// returned with a nil error. Storage faults are returned as errors.
	Write(ctx context.Context, stream string, events ...Event) (WriteResult, error)

	// Read returns the events of the stream ordered by ascending sequence.
	// Every range over the returned sequence starts a fresh read. Reading an
	// unknown stream yields nothing.
	Read(ctx context.Context, stream string) iter.Seq2[EventRecord, error]
}

// SchemaInitializer is implemented by stores that need their schema created.
type SchemaInitializer interface {
	InitSchema(ctx context.Context) error
}

// Sentinel errors for invalid writes.
var (
	// ErrNoEvents is returned when Write is called without events.
	ErrNoEvents = errors.New("no events to write")
	// ErrEmptyStream is returned when the stream key is blank.
	ErrEmptyStream = errors.New("stream must not be empty")
)

// ValidateWrite checks the arguments common to every Write implementation.
func ValidateWrite(stream string, events []Event) error {
	if stream == "" {
		return ErrEmptyStream
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	return nil
}

// HasDuplicateSequence reports whether two events in the batch share a sequence.
func HasDuplicateSequence(events []Event) bool {
	seen := make(map[int64]struct{}, len(events))
	for _, e := range events {
		if _, ok := seen[e.Sequence]; ok {
			return true
		}
		seen[e.Sequence] = struct{}{}
	}
	return false
}
