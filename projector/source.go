package projector

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

const tracerName = "github.com/shogotsuneto/go-es-catchup/projector"

// Archive errors. Readers must fail with these rather than skip chunks.
var (
	// ErrMissingChunk means a chunk that was listed or requested could not be retrieved.
	ErrMissingChunk = errors.New("missing archive chunk")
	// ErrUnknownChunk means a resume cursor does not name a chunk of the archive.
	ErrUnknownChunk = errors.New("unknown archive chunk")
)

// Archive produces historical chunks.
type Archive interface {
	// Chunks yields the chunks strictly after the chunk named after, in order.
	// An empty after starts from the first chunk.
	Chunks(ctx context.Context, after string) iter.Seq2[eventstore.Chunk, error]
	// Chunk returns a single chunk by ID. A chunk that cannot be found is an error.
	Chunk(ctx context.Context, id string) (eventstore.Chunk, error)
}

// LiveFeed produces recent events. It is consumed once per Run.
type LiveFeed interface {
	Events(ctx context.Context) iter.Seq2[eventstore.EventRecord, error]
}

// StateStore persists projector states keyed by projector name.
// A Get after a Put for the same name must observe the Put.
type StateStore interface {
	// Get returns the stored state, or Empty() when nothing was stored.
	Get(ctx context.Context, name string) (State, error)
	Put(ctx context.Context, name string, state State) error
}

// Handler is the consumer callback. It must tolerate redelivery of the last
// event it saw before a crash.
type Handler func(ctx context.Context, record eventstore.EventRecord) error

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. nil disables logging.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *Source) {
		s.logger = eventstore.OrNoOp(logger)
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Source) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Source delivers every event of an archive followed by a live feed to a
// handler, at most once per watermark, persisting its state after every event.
//
// Run is not safe for concurrent use with another Run for the same name;
// the caller must schedule at most one invocation per projector name.
type Source struct {
	name    string
	archive Archive
	live    LiveFeed
	handler Handler
	states  StateStore
	logger  eventstore.Logger
	tracer  trace.Tracer
}

// New creates a Source for the projector called name.
func New(name string, archive Archive, live LiveFeed, handler Handler, states StateStore, opts ...Option) (*Source, error) {
	if name == "" {
		return nil, errors.New("projector name must not be empty")
	}
	if archive == nil || live == nil || handler == nil || states == nil {
		return nil, errors.New("archive, live feed, handler and state store are required")
	}
	s := &Source{
		name:    name,
		archive: archive,
		live:    live,
		handler: handler,
		states:  states,
		logger:  eventstore.NoOpLogger{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the projector name.
func (s *Source) Name() string {
	return s.name
}

// Run loads the persisted state and resumes catch-up or live processing.
// It returns when the live feed ends, or with the first error from any
// collaborator. Calling Run again resumes from the last persisted state.
func (s *Source) Run(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "projector.run",
		trace.WithAttributes(attribute.String("projector.name", s.name)))
	defer func() { endSpan(span, err) }()

	state, err := s.states.Get(ctx, s.name)
	if err != nil {
		return fmt.Errorf("failed to load projector state: %w", err)
	}
	span.SetAttributes(attribute.String("projector.phase", string(state.Phase)))
	s.logger.Info(ctx, "projector starting", "projector", s.name, "state", state)

	switch state.Phase {
	case PhaseEmpty, "":
		return s.runCatchup(ctx, Catchup("", ""))
	case PhaseCatchup:
		return s.runCatchup(ctx, state)
	case PhaseLive:
		return s.runLive(ctx, state)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, state.Phase)
	}
}

func (s *Source) runCatchup(ctx context.Context, state State) (err error) {
	ctx, span := s.tracer.Start(ctx, "projector.catchup",
		trace.WithAttributes(
			attribute.String("projector.name", s.name),
			attribute.String("projector.chunk", state.Chunk),
		))
	defer func() { endSpan(span, err) }()

	// The persisted chunk is the one that was in progress. Re-read it so events
	// after the watermark are not lost; earlier ones are skipped by process.
	if state.Chunk != "" {
		chunk, err := s.archive.Chunk(ctx, state.Chunk)
		if err != nil {
			return fmt.Errorf("failed to read archive chunk %s: %w", state.Chunk, err)
		}
		if state, err = s.processChunk(ctx, chunk, state); err != nil {
			return err
		}
	}

	chunks := 0
	for chunk, err := range s.archive.Chunks(ctx, state.Chunk) {
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		state = Catchup(chunk.ID, state.LastEvent)
		if state, err = s.processChunk(ctx, chunk, state); err != nil {
			return err
		}
		chunks++
	}
	span.SetAttributes(attribute.Int("projector.chunks", chunks))

	s.logger.Info(ctx, "archive exhausted, switching to live", "projector", s.name, "lastEvent", state.LastEvent)
	return s.runLive(ctx, Live(state.LastEvent))
}

func (s *Source) processChunk(ctx context.Context, chunk eventstore.Chunk, state State) (State, error) {
	s.logger.Debug(ctx, "processing chunk", "projector", s.name, "chunk", chunk.ID, "events", len(chunk.Events))
	for _, record := range chunk.Events {
		var err error
		if state, err = s.step(ctx, record, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (s *Source) runLive(ctx context.Context, state State) (err error) {
	ctx, span := s.tracer.Start(ctx, "projector.live",
		trace.WithAttributes(
			attribute.String("projector.name", s.name),
			attribute.String("projector.last_event", state.LastEvent),
		))
	defer func() { endSpan(span, err) }()

	for record, err := range s.live.Events(ctx) {
		if err != nil {
			return fmt.Errorf("failed to read live feed: %w", err)
		}
		if state, err = s.step(ctx, record, state); err != nil {
			return err
		}
	}
	return nil
}

// step processes one record and persists the resulting state.
func (s *Source) step(ctx context.Context, record eventstore.EventRecord, state State) (State, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	next, err := s.process(ctx, record, state)
	if err != nil {
		return state, err
	}
	if err := s.states.Put(ctx, s.name, next); err != nil {
		return next, fmt.Errorf("failed to persist projector state: %w", err)
	}
	return next, nil
}

// process delivers record unless its ID is at or below the watermark, and
// returns the state with the watermark advanced. The handler completes before
// the watermark moves.
func (s *Source) process(ctx context.Context, record eventstore.EventRecord, state State) (State, error) {
	if record.ID <= state.LastEvent {
		s.logger.Debug(ctx, "skipping duplicate event", "projector", s.name, "id", record.ID, "lastEvent", state.LastEvent)
		return state, nil
	}
	if err := s.handler(ctx, record); err != nil {
		s.logger.Error(ctx, "handler failed", "projector", s.name, "id", record.ID, "error", err)
		return state, fmt.Errorf("handler failed for event %s: %w", record.ID, err)
	}
	state.LastEvent = record.ID
	return state, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
