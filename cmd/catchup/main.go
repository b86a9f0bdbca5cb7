// Command catchup writes events, archives the store feed into chunk files and
// runs catch-up projectors against them.
//
// Usage:
//
//	catchup init
//	catchup write <stream> <sequence> <type> <json>
//	catchup archive
//	catchup project
//
// Settings are read from CATCHUP_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	eventstore "github.com/shogotsuneto/go-es-catchup"
	"github.com/shogotsuneto/go-es-catchup/archive"
	"github.com/shogotsuneto/go-es-catchup/internal/config"
	"github.com/shogotsuneto/go-es-catchup/internal/telemetry"
	"github.com/shogotsuneto/go-es-catchup/projector"
)

const defaultOTelShutdownTimeout = 5 * time.Second

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitConflict = 3
)

var errUsage = errors.New("usage: catchup init | write <stream> <sequence> <type> <json> | archive | project")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("catchup: %v", err)
		os.Exit(exitUsage)
	}

	shutdown, err := telemetry.Setup(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Printf("catchup: telemetry: %v", err)
	}

	code := run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultOTelShutdownTimeout)
	if err := shutdown(shutdownCtx); err != nil {
		log.Printf("catchup: telemetry shutdown: %v", err)
	}
	cancel()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) int {
	logger := eventstore.StdLogger{
		Logger:  log.New(stderr, "catchup ", log.LstdFlags),
		Verbose: cfg.Verbose,
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, errUsage)
		return exitUsage
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to open backend", "driver", cfg.Driver, "err", err)
		return exitError
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error(ctx, "failed to close backend", "err", err)
		}
	}()

	switch args[0] {
	case "init":
		err = runInit(ctx, b)
	case "write":
		var result eventstore.WriteResult
		result, err = runWrite(ctx, b, args[1:])
		if err == nil && result == eventstore.Conflict {
			fmt.Fprintln(stdout, result)
			return exitConflict
		}
		if err == nil {
			fmt.Fprintln(stdout, result)
		}
	case "archive":
		err = runArchive(ctx, cfg, b, stdout, logger)
	case "project":
		err = runProject(ctx, cfg, b, stdout, logger)
	default:
		err = errUsage
	}

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return exitUsage
	case err != nil:
		logger.Error(ctx, "command failed", "command", args[0], "err", err)
		return exitError
	}
	return exitOK
}

func runInit(ctx context.Context, b *backend) error {
	for _, schema := range b.schemas {
		if err := schema.InitSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func runWrite(ctx context.Context, b *backend, args []string) (eventstore.WriteResult, error) {
	if len(args) != 4 {
		return 0, errUsage
	}
	sequence, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid sequence %q", errUsage, args[1])
	}
	if !json.Valid([]byte(args[3])) {
		return 0, fmt.Errorf("%w: payload is not valid JSON", errUsage)
	}
	return b.store.Write(ctx, args[0], eventstore.Event{
		Sequence: sequence,
		Type:     args[2],
		Data:     []byte(args[3]),
	})
}

func runArchive(ctx context.Context, cfg config.Config, b *backend, stdout io.Writer, logger eventstore.Logger) error {
	w, err := archive.NewWriter(cfg.ArchiveDir)
	if err != nil {
		return err
	}
	after, err := w.LastID(ctx)
	if err != nil {
		return err
	}
	last, err := archive.Export(ctx, b.store, w, after, cfg.ChunkSize)
	if err != nil {
		return err
	}
	logger.Info(ctx, "archive exported", "dir", cfg.ArchiveDir, "from", after, "to", last)
	fmt.Fprintln(stdout, last)
	return nil
}

// line is the JSON form of a delivered record on stdout.
type line struct {
	ID       string          `json:"id"`
	Stream   string          `json:"stream"`
	Sequence int64           `json:"sequence"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

func runProject(ctx context.Context, cfg config.Config, b *backend, stdout io.Writer, logger eventstore.Logger) error {
	if err := cfg.RequireProjector(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	state, err := b.states.Get(ctx, cfg.ProjectorName)
	if err != nil {
		return err
	}
	live := &projector.PollingFeed{
		Source:       b.store,
		Start:        liveStart(state, cfg.LiveRetention, time.Now()),
		BatchSize:    cfg.BatchSize,
		IdleSleep:    cfg.IdleSleep,
		StopWhenIdle: !cfg.Follow,
		Logger:       logger,
	}

	enc := json.NewEncoder(stdout)
	handler := func(_ context.Context, r eventstore.EventRecord) error {
		data := json.RawMessage(r.Data)
		if !json.Valid(data) {
			encoded, err := json.Marshal(r.Data)
			if err != nil {
				return err
			}
			data = encoded
		}
		return enc.Encode(line{ID: r.ID, Stream: r.Stream, Sequence: r.Sequence, Type: r.Type, Data: data})
	}

	source, err := projector.New(cfg.ProjectorName, archive.NewReader(cfg.ArchiveDir), live, handler, b.states,
		projector.WithLogger(logger))
	if err != nil {
		return err
	}
	return source.Run(ctx)
}
