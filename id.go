package eventstore

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDFunc mints event IDs. Implementations must return strings whose
// lexicographic order matches the order in which they were minted; the
// projector compares watermarks with plain string comparison.
type IDFunc func() (string, error)

// NewEventID returns the canonical string form of a version 7 UUID.
//
// A UUIDv7 starts with a big-endian millisecond timestamp followed by a
// sub-millisecond counter that the uuid package keeps strictly increasing
// within a process, and the canonical form is fixed-width lowercase hex.
// Two IDs minted by the same process therefore compare as strings in mint
// order. IDs minted by different processes are ordered by their clocks at
// millisecond resolution.
func NewEventID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate event id: %w", err)
	}
	return id.String(), nil
}

// IDLowerBound returns the smallest event ID that can be minted at t.
// Every ID minted at or after t compares greater than or equal to it.
func IDLowerBound(t time.Time) string {
	var id uuid.UUID
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(t.UnixMilli()))
	copy(id[0:6], ts[2:8])
	id[6] = 0x70 // version 7
	id[8] = 0x80 // RFC 4122 variant
	return id.String()
}
