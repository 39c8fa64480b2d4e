package testsuite

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

// Session holds the session metadata received with the session configuration.
type Session struct {
	ID        string
	Users     []string
	Shortname string

	// TestCases is the requested subset of test case ids. Empty means all.
	TestCases []string
}

// Options configures a TestSuite.
type Options struct {
	// PostMortem postpones check and feature steps until the capture of the
	// test case is analyzed.
	PostMortem bool
}

// TestCaseInfo is the summary of a test case published to the session.
type TestCaseInfo struct {
	ID        string `json:"testcase_id" cbor:"1,keyasint"`
	URI       string `json:"testcase_ref,omitempty" cbor:"2,keyasint,omitempty"`
	Objective string `json:"objective,omitempty" cbor:"3,keyasint,omitempty"`
	State     string `json:"state" cbor:"4,keyasint"`
}

// Status summarizes where the session currently is.
type Status struct {
	Started       bool   `json:"started" cbor:"1,keyasint"`
	TestCaseID    string `json:"testcase_id,omitempty" cbor:"2,keyasint,omitempty"`
	TestCaseState string `json:"testcase_state,omitempty" cbor:"3,keyasint,omitempty"`
	StepID        string `json:"step_id,omitempty" cbor:"4,keyasint,omitempty"`
	StepType      string `json:"step_type,omitempty" cbor:"5,keyasint,omitempty"`
	StepState     string `json:"step_state,omitempty" cbor:"6,keyasint,omitempty"`
}

// CaseReport is the report entry of one test case in the session report.
type CaseReport struct {
	TestCaseID string `json:"testcase_id"`
	Report
}

// TestSuite is the ordered collection of test cases of a session.
type TestSuite struct {
	opts    Options
	cases   []*TestCase
	byID    map[string]*TestCase
	configs map[string]*TestConfig

	current *TestCase
	cursor  int

	addressing map[string]Address
	configured map[string]bool

	session Session
}

// New creates a test suite. Test case ids must be unique and every test
// case must reference a known configuration.
func New(cases []*TestCase, configs []*TestConfig, opts Options) (*TestSuite, error) {
	ts := &TestSuite{
		opts:       opts,
		byID:       make(map[string]*TestCase, len(cases)),
		configs:    make(map[string]*TestConfig, len(configs)),
		addressing: make(map[string]Address),
		configured: make(map[string]bool),
	}

	for _, c := range configs {
		ts.configs[c.ID] = c
		for node, addr := range c.DefaultAddressing {
			ts.addressing[node] = addr
		}
	}

	for _, tc := range cases {
		if _, ok := ts.byID[tc.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTestCase, tc.ID)
		}
		if _, ok := ts.configs[tc.ConfigID]; !ok {
			return nil, fmt.Errorf("%w: %s referenced by %s", ErrUnknownConfig, tc.ConfigID, tc.ID)
		}
		tc.Reinit(opts.PostMortem)
		ts.byID[tc.ID] = tc
		ts.cases = append(ts.cases, tc)
	}
	return ts, nil
}

// TestCase returns the test case with the given id.
func (ts *TestSuite) TestCase(id string) (*TestCase, bool) {
	tc, ok := ts.byID[id]
	return tc, ok
}

// TestCaseIDs returns the test case ids in declared order.
func (ts *TestSuite) TestCaseIDs() []string {
	ids := make([]string, len(ts.cases))
	for i, tc := range ts.cases {
		ids[i] = tc.ID
	}
	return ids
}

// Config returns the configuration with the given id.
func (ts *TestSuite) Config(id string) (*TestConfig, bool) {
	c, ok := ts.configs[id]
	return c, ok
}

// CurrentTestCase returns the test case being run, or nil.
func (ts *TestSuite) CurrentTestCase() *TestCase {
	return ts.current
}

// CurrentStep returns the step being run, or nil.
func (ts *TestSuite) CurrentStep() *Step {
	if ts.current == nil {
		return nil
	}
	return ts.current.CurrentStep()
}

// CurrentConfig returns the configuration of the current test case, or nil.
func (ts *TestSuite) CurrentConfig() *TestConfig {
	if ts.current == nil {
		return nil
	}
	return ts.configs[ts.current.ConfigID]
}

// Session returns the session configuration.
func (ts *TestSuite) Session() Session {
	return ts.session
}

// NextTestCase makes the next test case in rest state current and returns it.
// The search is circular, starting after the last offered case. It returns
// nil when no case is left to run.
func (ts *TestSuite) NextTestCase() *TestCase {
	n := len(ts.cases)
	for i := 0; i < n; i++ {
		tc := ts.cases[(ts.cursor+i)%n]
		if tc.State == TestCaseNull {
			ts.cursor = (ts.cursor + i + 1) % n
			ts.current = tc
			return tc
		}
	}
	ts.current = nil
	return nil
}

// GoToTestCase reinitializes the test case with the given id and makes it
// current, whatever its state.
func (ts *TestSuite) GoToTestCase(id string) (*TestCase, error) {
	tc, ok := ts.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTestCaseNotFound, id)
	}
	tc.Reinit(ts.opts.PostMortem)
	ts.current = tc
	ts.cursor = (slices.Index(ts.cases, tc) + 1) % len(ts.cases)
	return tc, nil
}

// ReinitTestCase resets the test case with the given id without changing
// the current test case.
func (ts *TestSuite) ReinitTestCase(id string) error {
	tc, ok := ts.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTestCaseNotFound, id)
	}
	tc.Reinit(ts.opts.PostMortem)
	return nil
}

// NextStep advances the step cursor of the current test case.
func (ts *TestSuite) NextStep() *Step {
	if ts.current == nil {
		return nil
	}
	return ts.current.NextStep()
}

// SkipTestCase skips the test case with the given id. An empty or unknown id
// refers to the current test case. Skipping an already skipped case is a
// no-op.
func (ts *TestSuite) SkipTestCase(id string) (*TestCase, error) {
	tc, ok := ts.byID[id]
	if !ok {
		tc = ts.current
	}
	if tc == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoTestCase, id)
	}
	if tc.State == TestCaseSkipped {
		return tc, nil
	}
	tc.SetState(TestCaseSkipped)
	if ts.current == tc {
		ts.current = nil
	}
	return tc, nil
}

// IsCurrent reports whether id names the current test case. An empty id
// refers to the current test case.
func (ts *TestSuite) IsCurrent(id string) bool {
	if ts.current == nil {
		return false
	}
	if id == "" {
		return true
	}
	if _, ok := ts.byID[id]; !ok {
		return true
	}
	return ts.current.ID == id
}

// AbortCurrentTestCase aborts the current test case and clears it.
func (ts *TestSuite) AbortCurrentTestCase() *TestCase {
	tc := ts.current
	if tc == nil {
		return nil
	}
	tc.Abort()
	ts.current = nil
	return tc
}

// NormalizeTestCaseID turns a requested test case reference into a test case
// id. References may be plain ids or URLs ending in /tests/<id>.
func NormalizeTestCaseID(ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		if i := strings.LastIndex(u.Path, "/tests/"); i >= 0 {
			ref = u.Path[i+len("/tests/"):]
		}
	}
	return strings.ToUpper(strings.Trim(ref, "/"))
}

// Configure applies the session configuration. Test cases not requested are
// skipped. An empty selection keeps every test case. Unknown ids are
// rejected and nothing is changed.
func (ts *TestSuite) Configure(s Session) error {
	selected := make([]string, 0, len(s.TestCases))
	var unknown []string
	for _, ref := range s.TestCases {
		id := NormalizeTestCaseID(ref)
		if _, ok := ts.byID[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, id)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrTestCaseNotFound, strings.Join(unknown, ", "))
	}

	s.TestCases = selected
	ts.session = s
	ts.applySelection()
	return nil
}

func (ts *TestSuite) applySelection() {
	if len(ts.session.TestCases) == 0 {
		return
	}
	var skip []string
	for _, tc := range ts.cases {
		if !slices.Contains(ts.session.TestCases, tc.ID) {
			skip = append(skip, tc.ID)
		}
	}
	sort.Strings(skip)
	for _, id := range skip {
		_, _ = ts.SkipTestCase(id)
	}
}

// Reinit resets every test case and the navigation state, then re-applies
// the session selection.
func (ts *TestSuite) Reinit() {
	for _, tc := range ts.cases {
		tc.Reinit(ts.opts.PostMortem)
	}
	ts.current = nil
	ts.cursor = 0
	ts.applySelection()
}

// NodeAddress returns the address known for node.
func (ts *TestSuite) NodeAddress(node string) (Address, bool) {
	a, ok := ts.addressing[node]
	return a, ok
}

// UpdateNodeAddress records the address reported by an IUT and marks the
// node as configured for the current configuration round.
func (ts *TestSuite) UpdateNodeAddress(node string, addr Address) {
	ts.addressing[node] = addr
	ts.configured[node] = true
}

// ResetConfiguredNodes starts a new configuration round.
func (ts *TestSuite) ResetConfiguredNodes() {
	clear(ts.configured)
}

// AllNodesConfigured reports whether every node of the current configuration
// reported in the current round.
func (ts *TestSuite) AllNodesConfigured() bool {
	cfg := ts.CurrentConfig()
	if cfg == nil || len(cfg.Nodes) == 0 {
		return false
	}
	for _, n := range cfg.Nodes {
		if !ts.configured[n] {
			return false
		}
	}
	return true
}

// CurrentStepTargetAddress returns the address of the peer of the node the
// current step runs on.
func (ts *TestSuite) CurrentStepTargetAddress() (string, error) {
	step := ts.CurrentStep()
	cfg := ts.CurrentConfig()
	if step == nil || cfg == nil || step.Node == "" {
		return "", nil
	}
	target, err := cfg.TargetNode(step.Node)
	if err != nil {
		return "", err
	}
	addr, ok := ts.addressing[target]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, target)
	}
	return addr.String(), nil
}

// FinishStimuliStep finishes the current stimuli step.
func (ts *TestSuite) FinishStimuliStep() error {
	step, err := ts.executingStep(StepStimuli)
	if err != nil {
		return err
	}
	step.State = StepFinished
	return nil
}

// FinishCheckStep finishes the current check or feature step with the
// verdict token reported by the checker.
func (ts *TestSuite) FinishCheckStep(token, description string) error {
	step, err := ts.executingStep(StepCheck, StepFeature)
	if err != nil {
		return err
	}
	prefix := strings.ToUpper(string(step.Type)) + " step: "
	if err := step.Verdict().UpdateToken(token, prefix+description); err != nil {
		return err
	}
	step.State = StepFinished
	return nil
}

// FinishVerifyStep finishes the current verify step with the user answer.
func (ts *TestSuite) FinishVerifyStep(ok bool) error {
	step, err := ts.executingStep(StepVerify)
	if err != nil {
		return err
	}
	if ok {
		_ = step.SetResult(verdict.Pass, "VERIFY step: User informed that the information was displayed correctly on the IUT")
	} else {
		_ = step.SetResult(verdict.Fail, "VERIFY step: User informed that the information was not displayed correctly on the IUT")
	}
	step.State = StepFinished
	return nil
}

func (ts *TestSuite) executingStep(types ...StepType) (*Step, error) {
	step := ts.CurrentStep()
	if step == nil || step.State != StepExecuting {
		return nil, ErrStepNotExecuting
	}
	if !slices.Contains(types, step.Type) {
		return nil, fmt.Errorf("%w: step %s is %s, not %s", ErrUnexpectedStepType, step.ID, step.Type, types[0])
	}
	return step, nil
}

// TestCases returns a summary of every test case in declared order.
func (ts *TestSuite) TestCases() []TestCaseInfo {
	out := make([]TestCaseInfo, len(ts.cases))
	for i, tc := range ts.cases {
		out[i] = TestCaseInfo{ID: tc.ID, URI: tc.URI, Objective: tc.Objective, State: tc.State.String()}
	}
	return out
}

// Status returns where the session currently is.
func (ts *TestSuite) Status() Status {
	tc := ts.current
	if tc == nil {
		return Status{}
	}
	st := Status{Started: true, TestCaseID: tc.ID, TestCaseState: tc.State.String()}
	if step := tc.CurrentStep(); step != nil {
		st.StepID = step.ID
		st.StepType = string(step.Type)
		st.StepState = step.State.String()
	}
	return st
}

// Report returns one report entry per test case in declared order. Cases
// that never produced a report get a placeholder describing their state.
func (ts *TestSuite) Report() []CaseReport {
	out := make([]CaseReport, len(ts.cases))
	for i, tc := range ts.cases {
		r := tc.Report
		if r == nil {
			p := tc.placeholderReport()
			r = &p
		}
		out[i] = CaseReport{TestCaseID: tc.ID, Report: *r}
	}
	return out
}
