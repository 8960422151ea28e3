package app

import (
	"errors"
	"fmt"

	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/handle"
	"github.com/igolaizola/sonicremix/pkg/remix"
)

var ErrInvalidTransition = errors.New("app: invalid transition")

type Phase string

const (
	Idle       Phase = "idle"
	Selected   Phase = "selected"
	Processing Phase = "processing"
	Ready      Phase = "ready"
	Failed     Phase = "error"
)

// Input is the selected file and the handle used to play it.
type Input struct {
	Audio  *audio.Encoded
	Handle *handle.Handle
}

// State is the application state. Result is only set when ready, Message
// only on error and Input is nil only when idle.
type State struct {
	Phase   Phase
	Input   *Input
	Result  *remix.Result
	Message string
}

func invalid(s State, op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.Phase)
}

// Select sets the input. A new selection may replace a previous one as long
// as no remix was started.
func Select(s State, in *Input) (State, error) {
	if in == nil {
		return s, fmt.Errorf("%w: select without input", ErrInvalidTransition)
	}
	switch s.Phase {
	case Idle, Selected:
	default:
		return s, invalid(s, "select")
	}
	return State{Phase: Selected, Input: in}, nil
}

// Start moves a selected input to processing. A finished remix requires a
// reset before starting again.
func Start(s State) (State, error) {
	if s.Phase != Selected || s.Input == nil {
		return s, invalid(s, "start")
	}
	return State{Phase: Processing, Input: s.Input}, nil
}

func Succeed(s State, r *remix.Result) (State, error) {
	if s.Phase != Processing || r == nil {
		return s, invalid(s, "succeed")
	}
	return State{Phase: Ready, Input: s.Input, Result: r}, nil
}

func Fail(s State, msg string) (State, error) {
	if s.Phase != Processing || msg == "" {
		return s, invalid(s, "fail")
	}
	return State{Phase: Failed, Input: s.Input, Message: msg}, nil
}

// Reset returns to idle from any phase.
func Reset(State) State {
	return State{Phase: Idle}
}
