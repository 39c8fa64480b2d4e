package testsuite

import (
	"fmt"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

// StepType is the kind of action a step represents.
type StepType string

const (
	StepStimuli StepType = "stimuli"
	StepVerify  StepType = "verify"
	StepCheck   StepType = "check"
	StepFeature StepType = "feature"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepStimuli, StepVerify, StepCheck, StepFeature:
		return true
	}
	return false
}

// HasVerdict reports whether steps of this type carry a verdict.
func (t StepType) HasVerdict() bool {
	return t == StepCheck || t == StepVerify || t == StepFeature
}

// HasNode reports whether steps of this type target an IUT node.
func (t StepType) HasNode() bool {
	return t == StepStimuli || t == StepVerify
}

// StepState is the execution state of a step.
type StepState string

const (
	StepNull      StepState = ""
	StepExecuting StepState = "executing"
	StepFinished  StepState = "finished"
	StepPostponed StepState = "postponed"
	StepAborted   StepState = "aborted"
)

// String returns the state name, "null" for the rest state.
func (s StepState) String() string {
	if s == StepNull {
		return "null"
	}
	return string(s)
}

// ExecutionMode tells whether an IUT step is executed by a user or by an
// automated IUT.
type ExecutionMode string

const (
	UserAssisted ExecutionMode = "user_assisted"
	Automated    ExecutionMode = "automated"
)

// Step is one atomic action of a test case.
type Step struct {
	ID          string
	Type        StepType
	Description []string

	// Node and Mode are only set for stimuli and verify steps.
	Node string
	Mode ExecutionMode

	State StepState

	verdict *verdict.Verdict
}

// NewStep creates a step and validates its fields.
func NewStep(id string, typ StepType, description []string, node string, mode ExecutionMode) (*Step, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty step id", ErrInvalidStep)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: step %s has unknown type %q", ErrInvalidStep, id, typ)
	}

	s := &Step{ID: id, Type: typ, Description: description}
	if typ.HasNode() {
		if node == "" {
			return nil, fmt.Errorf("%w: %s step %s requires a node", ErrInvalidStep, typ, id)
		}
		if mode == "" {
			mode = UserAssisted
		}
		if mode != UserAssisted && mode != Automated {
			return nil, fmt.Errorf("%w: step %s has unknown execution mode %q", ErrInvalidStep, id, mode)
		}
		s.Node = node
		s.Mode = mode
	}
	if typ.HasVerdict() {
		s.verdict = verdict.New()
	}
	return s, nil
}

// Verdict returns the step's verdict, or nil for stimuli steps.
func (s *Step) Verdict() *verdict.Verdict {
	return s.verdict
}

// SetResult folds a result into the step verdict.
func (s *Step) SetResult(value verdict.Value, message string) error {
	if s.verdict == nil {
		return fmt.Errorf("%w: %s step %s", ErrNoVerdict, s.Type, s.ID)
	}
	return s.verdict.Update(value, message)
}

// Reinit resets the step for a new execution. In post-mortem mode check and
// feature steps are postponed until the capture is analyzed.
func (s *Step) Reinit(postMortem bool) {
	if s.Type.HasVerdict() {
		s.verdict = verdict.New()
	}
	if postMortem && (s.Type == StepCheck || s.Type == StepFeature) {
		s.State = StepPostponed
		return
	}
	s.State = StepNull
}

// Done reports whether the step no longer blocks verdict generation.
func (s *Step) Done() bool {
	switch s.State {
	case StepFinished, StepPostponed, StepAborted:
		return true
	}
	return false
}

// Summary returns the step description as a single line.
func (s *Step) Summary() string {
	return strings.Join(s.Description, " ")
}
