package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/internal/config"
	"github.com/shogotsuneto/go-es-catchup/projector"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Driver:        config.DriverSQLite,
		DSN:           filepath.Join(dir, "events.db"),
		EventsTable:   "events",
		StatesTable:   "projector_states",
		StateBackend:  config.StateSQL,
		BboltPath:     filepath.Join(dir, "states.db"),
		ArchiveDir:    filepath.Join(dir, "archive"),
		ChunkSize:     2,
		ProjectorName: "scores",
		BatchSize:     10,
		IdleSleep:     time.Millisecond,
	}
}

func runCmd(t *testing.T, cfg config.Config, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), cfg, args, &stdout, &stderr)
	return code, stdout.String()
}

func projected(t *testing.T, out string) []int64 {
	t.Helper()
	var seqs []int64
	for _, raw := range strings.Split(strings.TrimSpace(out), "\n") {
		if raw == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			t.Fatalf("decode output line %q: %v", raw, err)
		}
		seqs = append(seqs, l.Sequence)
	}
	return seqs
}

func TestRun_WriteArchiveProject(t *testing.T) {
	for _, backend := range []string{config.StateSQL, config.StateBbolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.StateBackend = backend

			if code, _ := runCmd(t, cfg, "init"); code != exitOK {
				t.Fatalf("init exited with %d", code)
			}
			for i, payload := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
				seq := []string{"1", "2", "3"}[i]
				if code, out := runCmd(t, cfg, "write", "my-game", seq, "GoalScored", payload); code != exitOK {
					t.Fatalf("write exited with %d: %s", code, out)
				}
			}

			code, out := runCmd(t, cfg, "write", "my-game", "2", "GoalScored", `{}`)
			if code != exitConflict {
				t.Fatalf("expected conflict exit code, got %d", code)
			}
			if strings.TrimSpace(out) != eventstore.Conflict.String() {
				t.Errorf("expected conflict output, got %q", out)
			}

			if code, _ := runCmd(t, cfg, "archive"); code != exitOK {
				t.Fatalf("archive exited with %d", code)
			}
			if code, _ := runCmd(t, cfg, "write", "my-game", "4", "GoalScored", `{"n":4}`); code != exitOK {
				t.Fatalf("write exited with %d", code)
			}

			code, out = runCmd(t, cfg, "project")
			if code != exitOK {
				t.Fatalf("project exited with %d", code)
			}
			if got := projected(t, out); len(got) != 4 || got[0] != 1 || got[3] != 4 {
				t.Errorf("expected events 1..4 once, got %v", got)
			}

			// A second run resumes in LIVE and only sees the new event.
			if code, _ := runCmd(t, cfg, "write", "my-game", "5", "GoalScored", `{"n":5}`); code != exitOK {
				t.Fatalf("write exited with %d", code)
			}
			code, out = runCmd(t, cfg, "project")
			if code != exitOK {
				t.Fatalf("second project exited with %d", code)
			}
			if got := projected(t, out); len(got) != 1 || got[0] != 5 {
				t.Errorf("expected only event 5, got %v", got)
			}
		})
	}
}

func TestRun_Usage(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command"},
		{name: "unknown command", args: []string{"replay"}},
		{name: "write arity", args: []string{"write", "my-game"}},
		{name: "bad sequence", args: []string{"write", "my-game", "x", "T", "{}"}},
		{name: "bad payload", args: []string{"write", "my-game", "1", "T", "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := runCmd(t, cfg, tt.args...); code != exitUsage {
				t.Errorf("expected usage exit code, got %d", code)
			}
		})
	}
}

func TestRun_ProjectRequiresName(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProjectorName = ""
	if code, _ := runCmd(t, cfg, "project"); code != exitError {
		t.Errorf("expected error exit code, got %d", code)
	}
}

func TestLiveStart(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	old := eventstore.IDLowerBound(now.Add(-48 * time.Hour))
	recent := eventstore.IDLowerBound(now.Add(-time.Minute))
	bound := eventstore.IDLowerBound(now.Add(-24 * time.Hour))

	tests := []struct {
		name      string
		state     projector.State
		retention time.Duration
		want      string
	}{
		{name: "no retention empty", state: projector.Empty(), want: ""},
		{name: "no retention uses watermark", state: projector.Live(old), want: old},
		{name: "retention bounds empty", state: projector.Empty(), retention: 24 * time.Hour, want: bound},
		{name: "retention bounds old watermark", state: projector.Catchup("c1", old), retention: 24 * time.Hour, want: bound},
		{name: "recent watermark wins", state: projector.Live(recent), retention: 24 * time.Hour, want: recent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := liveStart(tt.state, tt.retention, now); got != tt.want {
				t.Errorf("liveStart = %q, want %q", got, tt.want)
			}
		})
	}
}
