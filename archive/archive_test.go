package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/memory"
	"github.com/shogotsuneto/go-es-catchup/projector"
)

func rec(id string, seq int64) eventstore.EventRecord {
	return eventstore.EventRecord{
		Event:  eventstore.Event{Sequence: seq, Type: "GoalScored", Data: []byte(fmt.Sprintf(`{"n":%d}`, seq))},
		ID:     id,
		Stream: "my-game",
	}
}

func gzipLines(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func chunkIDs(t *testing.T, r *Reader, after string) ([]string, error) {
	t.Helper()
	var ids []string
	for chunk, err := range r.Chunks(context.Background(), after) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

func TestWriterAndReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	first := []eventstore.EventRecord{rec("a1", 1), rec("a2", 2)}
	second := []eventstore.EventRecord{rec("b1", 3)}
	for _, records := range [][]eventstore.EventRecord{second, first} {
		if _, err := w.WriteChunk(records); err != nil {
			t.Fatalf("WriteChunk failed: %v", err)
		}
	}

	r := NewReader(dir)
	var got []eventstore.Chunk
	for chunk, err := range r.Chunks(context.Background(), "") {
		if err != nil {
			t.Fatalf("Chunks failed: %v", err)
		}
		got = append(got, chunk)
	}

	want := []eventstore.Chunk{{ID: "a1", Events: first}, {ID: "b1", Events: second}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected chunks in name order\n got: %+v\nwant: %+v", got, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected no temporary files left behind, got %d entries", len(entries))
	}
}

func TestReaderChunksResumesAfterCursor(t *testing.T) {
	line := `{"id":"x","stream":"s","sequence":1,"type":"T","data":null}`
	r := &Reader{FS: fstest.MapFS{
		"c1" + Ext:         {Data: gzipLines(t, line)},
		"c2" + Ext:         {Data: gzipLines(t, line)},
		"c3" + Ext:         {Data: gzipLines(t, line)},
		"notes.txt":        {Data: []byte("ignored")},
		".chunk-123" + Ext: {Data: []byte("partial")},
	}}

	tests := []struct {
		name    string
		after   string
		want    []string
		wantErr error
	}{
		{name: "from start", after: "", want: []string{"c1", "c2", "c3"}},
		{name: "after middle", after: "c2", want: []string{"c3"}},
		{name: "after last", after: "c3", want: nil},
		{name: "unknown cursor", after: "c0", wantErr: projector.ErrUnknownChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := chunkIDs(t, r, tt.after)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Chunks failed: %v", err)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestReaderChunkErrors(t *testing.T) {
	r := &Reader{FS: fstest.MapFS{
		"bad-json" + Ext: {Data: gzipLines(t, `{"id":`)},
		"not-gzip" + Ext: {Data: []byte("plain text")},
	}}
	ctx := context.Background()

	if _, err := r.Chunk(ctx, "absent"); !errors.Is(err, projector.ErrMissingChunk) {
		t.Errorf("Expected ErrMissingChunk, got %v", err)
	}
	if _, err := r.Chunk(ctx, "bad-json"); err == nil {
		t.Error("Expected decode error")
	}
	if _, err := r.Chunk(ctx, "not-gzip"); err == nil {
		t.Error("Expected decompression error")
	}

	// A broken chunk stops iteration instead of being skipped.
	ids, err := chunkIDs(t, r, "")
	if err == nil {
		t.Fatal("Expected Chunks to fail on a broken chunk")
	}
	if len(ids) != 0 {
		t.Errorf("Expected no chunk before the failure, got %v", ids)
	}
}

func TestWriteChunkRejectsEmpty(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.WriteChunk(nil); !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("Expected ErrEmptyChunk, got %v", err)
	}
	if _, err := NewWriter(" "); err == nil {
		t.Error("Expected error for blank dir")
	}
}

func TestExportResumesFromLastID(t *testing.T) {
	store := memory.NewEventStore()
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if _, err := store.Write(ctx, "my-game", eventstore.Event{Sequence: i, Type: "GoalScored"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	dir := filepath.Join(t.TempDir(), "archive")
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	last, err := Export(ctx, store, w, "", 2)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	all, err := store.Fetch(ctx, "", 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if last != all[4].ID {
		t.Errorf("Expected last exported id %s, got %s", all[4].ID, last)
	}

	ids, err := chunkIDs(t, NewReader(dir), "")
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{all[0].ID, all[2].ID, all[4].ID}) {
		t.Errorf("Expected chunks of two named by first id, got %v", ids)
	}

	resume, err := w.LastID(ctx)
	if err != nil {
		t.Fatalf("LastID failed: %v", err)
	}
	if resume != last {
		t.Errorf("Expected LastID %s, got %s", last, resume)
	}

	again, err := Export(ctx, store, w, resume, 2)
	if err != nil {
		t.Fatalf("second Export failed: %v", err)
	}
	if again != resume {
		t.Errorf("Expected no-op export to keep cursor, got %s", again)
	}

	if _, err := store.Write(ctx, "my-game", eventstore.Event{Sequence: 6, Type: "GoalScored"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := Export(ctx, store, w, resume, 2); err != nil {
		t.Fatalf("third Export failed: %v", err)
	}
	ids, _ = chunkIDs(t, NewReader(dir), "")
	if len(ids) != 4 {
		t.Errorf("Expected a fourth chunk for the new event, got %v", ids)
	}
}

// An archive written by Export and a live feed over the same store deliver
// every event exactly once.
func TestProjectorOverExportedArchive(t *testing.T) {
	store := memory.NewEventStore()
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		if _, err := store.Write(ctx, "my-game", eventstore.Event{Sequence: i, Type: "GoalScored"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := Export(ctx, store, w, "", 3); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if _, err := store.Write(ctx, "my-game", eventstore.Event{Sequence: 5, Type: "GoalScored"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var delivered []int64
	handler := func(_ context.Context, r eventstore.EventRecord) error {
		delivered = append(delivered, r.Sequence)
		return nil
	}
	live := &projector.PollingFeed{Source: store, StopWhenIdle: true}
	states := memory.NewStateStore()

	source, err := projector.New("scores", NewReader(dir), live, handler, states)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := source.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(delivered, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("Expected every event once, got %v", delivered)
	}
}
