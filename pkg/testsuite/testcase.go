package testsuite

import (
	"fmt"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

// TestCaseState is the execution state of a test case.
type TestCaseState string

const (
	TestCaseNull             TestCaseState = ""
	TestCaseSkipped          TestCaseState = "skipped"
	TestCaseConfiguring      TestCaseState = "configuring"
	TestCaseReady            TestCaseState = "ready"
	TestCaseExecuting        TestCaseState = "executing"
	TestCaseReadyForAnalysis TestCaseState = "ready_for_analysis"
	TestCaseAnalyzing        TestCaseState = "analyzing"
	TestCaseFinished         TestCaseState = "finished"
	TestCaseAborted          TestCaseState = "aborted"
)

// String returns the state name, "null" for the rest state.
func (s TestCaseState) String() string {
	if s == TestCaseNull {
		return "null"
	}
	return string(s)
}

// Messages used in generated reports.
const (
	MsgNoInteropError  = "No interoperability error was detected."
	MsgEmptyAnalysis   = "Test Analysis Tool returned an empty analysis report"
	MsgTestCaseAborted = "Testcase was aborted"
)

// Partial is one entry of a test case report: a step verdict or a verdict
// returned by the posterior analysis of the capture. Verdict is nil for
// postponed steps.
type Partial struct {
	ID      string         `json:"id" cbor:"1,keyasint"`
	Verdict *verdict.Value `json:"verdict" cbor:"2,keyasint"`
	Message string         `json:"message" cbor:"3,keyasint,omitempty"`
}

// NewPartial returns a partial carrying value.
func NewPartial(id string, value verdict.Value, message string) Partial {
	return Partial{ID: id, Verdict: &value, Message: message}
}

// Report is the final report of a test case.
type Report struct {
	Verdict     verdict.Value `json:"verdict"`
	Description string        `json:"description"`
	Partials    []Partial     `json:"partial_verdicts"`

	// CaptureDigest identifies the capture the report was derived from.
	CaptureDigest string `json:"capture_digest,omitempty"`
}

// TestCase is an ordered sequence of steps run against one test configuration.
type TestCase struct {
	ID            string
	URI           string
	Objective     string
	ConfigID      string
	PreConditions []string
	Notes         string
	Steps         []*Step

	State  TestCaseState
	Report *Report

	cursor  int
	current *Step
}

// NewTestCase creates a test case. Step ids must be unique within the case.
func NewTestCase(id, configID string, steps []*Step) (*TestCase, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty testcase id", ErrInvalidStep)
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate step %s in %s", ErrInvalidStep, s.ID, id)
		}
		seen[s.ID] = true
	}
	return &TestCase{ID: id, ConfigID: configID, Steps: steps}, nil
}

// Reinit prepares the test case to be executed again.
func (tc *TestCase) Reinit(postMortem bool) {
	tc.State = TestCaseNull
	tc.Report = nil
	tc.cursor = 0
	tc.current = nil
	for _, s := range tc.Steps {
		s.Reinit(postMortem)
	}
}

// CurrentStep returns the step being executed, or nil.
func (tc *TestCase) CurrentStep() *Step {
	return tc.current
}

// NextStep moves the cursor to the next step in rest state, marks it as
// executing and returns it. It returns nil once the sequence is exhausted.
func (tc *TestCase) NextStep() *Step {
	for tc.cursor < len(tc.Steps) {
		s := tc.Steps[tc.cursor]
		tc.cursor++
		if s.State != StepNull {
			continue
		}
		s.State = StepExecuting
		tc.current = s
		return s
	}
	tc.current = nil
	return nil
}

// SetState changes the test case state. Skipping a case finishes all of its
// steps.
func (tc *TestCase) SetState(state TestCaseState) {
	tc.State = state
	if state == TestCaseSkipped {
		for _, s := range tc.Steps {
			s.State = StepFinished
		}
		tc.current = nil
	}
}

// Abort marks every step and the case as aborted.
func (tc *TestCase) Abort() {
	for _, s := range tc.Steps {
		if s.Type.HasVerdict() {
			_ = s.SetResult(verdict.Aborted, MsgTestCaseAborted)
		}
		s.State = StepAborted
	}
	tc.State = TestCaseAborted
	tc.current = nil
}

// AllStepsFinished reports whether every step is finished, postponed or aborted.
func (tc *TestCase) AllStepsFinished() bool {
	for _, s := range tc.Steps {
		if !s.Done() {
			return false
		}
	}
	return true
}

// placeholderReport is the report of a case that never produced one.
func (tc *TestCase) placeholderReport() Report {
	value := verdict.None
	if tc.State == TestCaseAborted {
		value = verdict.Aborted
	}
	state := tc.State.String()
	if tc.State == TestCaseNull {
		state = "not executed"
	}
	return Report{
		Verdict:     value,
		Description: fmt.Sprintf("Testcase %s was %s.", tc.ID, state),
		Partials:    []Partial{},
	}
}

// GenerateVerdict folds the verdicts of the check, verify and feature steps
// with the partial verdicts of the posterior analysis into the final report
// of the case, stores it and returns it.
//
// A case without any posterior analysis entry gets an error verdict: live
// step results alone are not evidence of interoperability.
func (tc *TestCase) GenerateVerdict(posterior []Partial) (Report, error) {
	if tc.State == TestCaseSkipped || tc.State == TestCaseAborted {
		r := tc.placeholderReport()
		tc.Report = &r
		return r, nil
	}

	if !tc.AllStepsFinished() {
		return Report{}, fmt.Errorf("%w: %s", ErrStepsNotFinished, tc.ID)
	}

	final := verdict.New()
	partials := tc.stepPartials(final, len(posterior))

	if len(posterior) == 0 {
		_ = final.Update(verdict.Error, MsgEmptyAnalysis)
	}
	for _, p := range posterior {
		partials = append(partials, p)
		if p.Verdict != nil {
			_ = final.Update(*p.Verdict, p.Message)
		}
	}

	if final.Value() == verdict.Pass {
		_ = final.Update(verdict.Pass, MsgNoInteropError)
	}

	r := Report{
		Verdict:     final.Value(),
		Description: final.Message(),
		Partials:    partials,
	}
	tc.Report = &r
	return r, nil
}

// GenerateDegradedVerdict builds the report of a case whose capture could
// not be analyzed. The step verdicts are folded with value and reason.
func (tc *TestCase) GenerateDegradedVerdict(value verdict.Value, reason string) (Report, error) {
	if !tc.AllStepsFinished() {
		return Report{}, fmt.Errorf("%w: %s", ErrStepsNotFinished, tc.ID)
	}

	final := verdict.New()
	partials := tc.stepPartials(final, 0)
	if err := final.Update(value, reason); err != nil {
		return Report{}, err
	}

	r := Report{
		Verdict:     final.Value(),
		Description: final.Message(),
		Partials:    partials,
	}
	tc.Report = &r
	return r, nil
}

// stepPartials lists the step verdicts and folds them into final.
func (tc *TestCase) stepPartials(final *verdict.Verdict, extra int) []Partial {
	partials := make([]Partial, 0, len(tc.Steps)+extra)
	for _, s := range tc.Steps {
		if !s.Type.HasVerdict() {
			continue
		}
		if s.State == StepPostponed {
			partials = append(partials, Partial{
				ID:      s.ID,
				Message: strings.ToUpper(string(s.Type)) + " step: postponed",
			})
			continue
		}
		v := s.Verdict()
		partials = append(partials, NewPartial(s.ID, v.Value(), v.Message()))
		_ = final.Update(v.Value(), v.Message())
	}
	return partials
}
