package coordinator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Coordinator errors.
var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrIncompatibleState  = errors.New("incompatible testcase state")
	ErrStepMismatch       = errors.New("step is not the current step")
	ErrMissingNode        = errors.New("node name is required")
	ErrComponentsNotReady = errors.New("testing tool components not ready")
	ErrTerminated         = errors.New("testing tool terminated")
)

// CoordinationError is a protocol or usage error raised while handling a
// control event: a bad configuration, an unknown test case or an event that
// does not fit the test case state. The state machine is left unchanged.
type CoordinationError struct {
	Op  string
	Err error
}

func (e *CoordinationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CoordinationError) Unwrap() error {
	return e.Err
}

func coordinationError(op string, err error) error {
	return &CoordinationError{Op: op, Err: err}
}

// TransitionError is returned when a trigger is not valid in the current
// state.
type TransitionError struct {
	Trigger Trigger
	State   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("can't trigger %s from state %s", e.Trigger, e.State)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ReadinessError is returned by Run when some components did not announce
// themselves in time.
type ReadinessError struct {
	Missing []string
	Timeout time.Duration
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("no ready signal within %s from: %s", e.Timeout, strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrComponentsNotReady) hold.
func (e *ReadinessError) Is(target error) bool {
	return target == ErrComponentsNotReady
}
