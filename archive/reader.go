// Package archive stores historical events as gzip compressed JSON lines
// files, one file per chunk, and reads them back as a projector archive.
//
// A chunk file is named after the ID of its first event, so the lexical order
// of file names is the order in which the events were written.
package archive

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"sort"
	"strings"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/projector"
)

// Ext is the file name suffix of a chunk file.
const Ext = ".jsonl.gz"

// maxLineSize bounds a single encoded record.
const maxLineSize = 16 << 20

var _ projector.Archive = (*Reader)(nil)

// record is the on-disk form of an event. Data is base64 encoded by encoding/json.
type record struct {
	ID       string `json:"id"`
	Stream   string `json:"stream"`
	Sequence int64  `json:"sequence"`
	Type     string `json:"type"`
	Data     []byte `json:"data"`
}

func toRecord(r eventstore.EventRecord) record {
	return record{ID: r.ID, Stream: r.Stream, Sequence: r.Sequence, Type: r.Type, Data: r.Data}
}

func (r record) eventRecord() eventstore.EventRecord {
	return eventstore.EventRecord{
		Event:  eventstore.Event{Sequence: r.Sequence, Type: r.Type, Data: r.Data},
		ID:     r.ID,
		Stream: r.Stream,
	}
}

// Reader reads chunk files from a file system.
type Reader struct {
	FS fs.FS
}

// NewReader reads chunks from a directory on disk.
func NewReader(dir string) *Reader {
	return &Reader{FS: os.DirFS(dir)}
}

// Chunks yields the chunks whose IDs sort after the given chunk ID. A non-empty
// after that does not name a chunk file is reported as projector.ErrUnknownChunk.
// Chunks are opened lazily as the sequence advances.
func (r *Reader) Chunks(ctx context.Context, after string) iter.Seq2[eventstore.Chunk, error] {
	return func(yield func(eventstore.Chunk, error) bool) {
		ids, err := listChunks(r.FS)
		if err != nil {
			yield(eventstore.Chunk{}, err)
			return
		}

		start := 0
		if after != "" {
			i := sort.SearchStrings(ids, after)
			if i == len(ids) || ids[i] != after {
				yield(eventstore.Chunk{}, fmt.Errorf("%w: %s", projector.ErrUnknownChunk, after))
				return
			}
			start = i + 1
		}

		for _, id := range ids[start:] {
			if err := ctx.Err(); err != nil {
				yield(eventstore.Chunk{}, err)
				return
			}
			chunk, err := r.Chunk(ctx, id)
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Chunk reads a single chunk file.
func (r *Reader) Chunk(_ context.Context, id string) (eventstore.Chunk, error) {
	f, err := r.FS.Open(id + Ext)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return eventstore.Chunk{}, fmt.Errorf("%w: %s", projector.ErrMissingChunk, id)
		}
		return eventstore.Chunk{}, fmt.Errorf("failed to open chunk %s: %w", id, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return eventstore.Chunk{}, fmt.Errorf("failed to decompress chunk %s: %w", id, err)
	}
	defer gz.Close()

	chunk := eventstore.Chunk{ID: id}
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return eventstore.Chunk{}, fmt.Errorf("failed to decode chunk %s line %d: %w", id, line, err)
		}
		chunk.Events = append(chunk.Events, rec.eventRecord())
	}
	if err := scanner.Err(); err != nil {
		return eventstore.Chunk{}, fmt.Errorf("failed to read chunk %s: %w", id, err)
	}
	return chunk, nil
}

// listChunks returns the chunk IDs in the root of fsys in ascending order.
func listChunks(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, Ext) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, Ext))
	}
	sort.Strings(ids)
	return ids, nil
}
