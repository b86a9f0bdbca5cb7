package archive

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// ErrEmptyChunk is returned when a chunk with no events is written.
var ErrEmptyChunk = errors.New("chunk has no events")

// Writer writes chunk files into a directory.
type Writer struct {
	Dir string
}

// NewWriter creates the directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("archive dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &Writer{Dir: filepath.Clean(dir)}, nil
}

// WriteChunk writes records as one chunk and returns its ID. The file is
// written under a temporary name and renamed into place, so readers see
// either the whole chunk or none of it.
func (w *Writer) WriteChunk(records []eventstore.EventRecord) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyChunk
	}
	id := records[0].ID

	tmp, err := os.CreateTemp(w.Dir, ".chunk-*")
	if err != nil {
		return "", fmt.Errorf("failed to create chunk file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeChunk(tmp, records); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write chunk %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync chunk %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close chunk %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.Dir, id+Ext)); err != nil {
		return "", fmt.Errorf("failed to publish chunk %s: %w", id, err)
	}
	return id, nil
}

func encodeChunk(f *os.File, records []eventstore.EventRecord) error {
	buf := bufio.NewWriter(f)
	gz := gzip.NewWriter(buf)
	enc := json.NewEncoder(gz)
	for _, r := range records {
		if err := enc.Encode(toRecord(r)); err != nil {
			return err
		}
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return buf.Flush()
}

// LastID returns the ID of the last event in the newest chunk, or "" when
// the directory holds no chunks.
func (w *Writer) LastID(ctx context.Context) (string, error) {
	reader := NewReader(w.Dir)
	ids, err := listChunks(reader.FS)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	chunk, err := reader.Chunk(ctx, ids[len(ids)-1])
	if err != nil {
		return "", err
	}
	if len(chunk.Events) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyChunk, chunk.ID)
	}
	return chunk.Events[len(chunk.Events)-1].ID, nil
}
