package projector

import (
	"errors"
	"fmt"
)

// Phase identifies which variant of State is populated.
type Phase string

const (
	// PhaseEmpty means the projector has made no progress yet.
	PhaseEmpty Phase = "EMPTY"
	// PhaseCatchup means the projector is draining archive chunks.
	PhaseCatchup Phase = "CATCHUP"
	// PhaseLive means the projector is draining the live feed.
	PhaseLive Phase = "LIVE"
)

// ErrUnknownPhase is returned for a state whose phase is not one of the known variants.
var ErrUnknownPhase = errors.New("unknown projector phase")

// State is the persisted progress of one projector.
//
//	EMPTY                        no fields
//	CATCHUP{Chunk, LastEvent}    draining archive chunk Chunk
//	LIVE{LastEvent}              draining the live feed
//
// LastEvent is the watermark: the ID of the last event delivered to the
// handler. It never decreases for a given projector name.
type State struct {
	Phase     Phase  `json:"type"`
	Chunk     string `json:"chunk,omitempty"`
	LastEvent string `json:"lastEvent,omitempty"`
}

// Empty returns the initial state.
func Empty() State {
	return State{Phase: PhaseEmpty}
}

// Catchup returns a CATCHUP state positioned at chunk.
func Catchup(chunk, lastEvent string) State {
	return State{Phase: PhaseCatchup, Chunk: chunk, LastEvent: lastEvent}
}

// Live returns a LIVE state.
func Live(lastEvent string) State {
	return State{Phase: PhaseLive, LastEvent: lastEvent}
}

// IsEmpty reports whether no progress has been recorded.
func (s State) IsEmpty() bool {
	return s.Phase == PhaseEmpty || s.Phase == ""
}

// Validate checks that the fields match the phase.
func (s State) Validate() error {
	switch s.Phase {
	case PhaseEmpty, "":
		if s.Chunk != "" || s.LastEvent != "" {
			return fmt.Errorf("empty state must not carry chunk or watermark")
		}
	case PhaseCatchup:
	case PhaseLive:
		if s.Chunk != "" {
			return fmt.Errorf("live state must not carry a chunk")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, s.Phase)
	}
	return nil
}

func (s State) String() string {
	switch s.Phase {
	case PhaseCatchup:
		return fmt.Sprintf("CATCHUP{chunk:%q, lastEvent:%q}", s.Chunk, s.LastEvent)
	case PhaseLive:
		return fmt.Sprintf("LIVE{lastEvent:%q}", s.LastEvent)
	case PhaseEmpty, "":
		return "EMPTY"
	default:
		return fmt.Sprintf("%s{chunk:%q, lastEvent:%q}", s.Phase, s.Chunk, s.LastEvent)
	}
}

// ParseState rebuilds a State from its stored columns. An empty phase is EMPTY.
func ParseState(phase, chunk, lastEvent string) (State, error) {
	s := State{Phase: Phase(phase), Chunk: chunk, LastEvent: lastEvent}
	if s.Phase == "" {
		s.Phase = PhaseEmpty
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}
