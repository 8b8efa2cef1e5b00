package pipeline

import (
	"errors"
	"fmt"
)

// ErrState is returned when an operation is called before its required phase.
var ErrState = errors.New("invalid pipeline state")

// Phase is a step of the pipeline workflow. Phases only move forward.
type Phase int

const (
	Uninitialized Phase = iota
	Loaded
	Split
	Adapted
	ModelReady
	Trained
	Evaluated
)

var phaseNames = [...]string{"uninitialized", "loaded", "split", "adapted", "model_ready", "trained", "evaluated"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func stateError(op string, have, need Phase) error {
	return fmt.Errorf("%w: %s requires phase %s, pipeline is %s", ErrState, op, need, have)
}
