package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fsismondi/ioppytest-sub000/internal/loader"
	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

const suiteYAML = `--- !configuration
configuration_id: COAP_CFG_01
nodes: [coap_client, coap_server]
topology:
  - link_id: link_01
    capture_filter: udp port 5683
    nodes: [coap_client, coap_server]
default_addressing:
  - node: coap_client
    ipv6_prefix: bbbb
    ipv6_host: "1"
  - node: coap_server
    ipv6_prefix: bbbb
    ipv6_host: "2"
--- !testcase
testcase_id: TD_COAP_CORE_01
configuration: COAP_CFG_01
objective: Perform GET transaction (CON mode)
sequence:
  - {step_id: TD_COAP_CORE_01_step_01, type: stimuli, node: coap_client, description: Send GET}
  - {step_id: TD_COAP_CORE_01_step_02, type: check, description: Type is CON}
  - {step_id: TD_COAP_CORE_01_step_03, type: verify, node: coap_client, description: Payload displayed}
--- !testcase
testcase_id: TD_COAP_CORE_02
configuration: COAP_CFG_01
objective: Perform DELETE transaction (CON mode)
sequence:
  - {step_id: TD_COAP_CORE_02_step_01, type: stimuli, node: coap_client, description: Send DELETE}
  - {step_id: TD_COAP_CORE_02_step_02, type: check, description: Code is 2.02}
--- !testcase
testcase_id: TD_COAP_CORE_03
configuration: COAP_CFG_01
objective: Perform PUT transaction (CON mode)
sequence:
  - {step_id: TD_COAP_CORE_03_step_01, type: stimuli, node: coap_client, description: Send PUT}
  - {step_id: TD_COAP_CORE_03_step_02, type: feature, description: Server supports PUT}
`

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSniffer returns a capture named after the test case.
type fakeSniffer struct {
	mu         sync.Mutex
	starts     []string
	stops      int
	captureErr error
}

func (s *fakeSniffer) Start(_ context.Context, captureID, _, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, captureID+"/"+linkID)
	return nil
}

func (s *fakeSniffer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSniffer) Capture(_ context.Context, id string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captureErr != nil {
		return Capture{}, s.captureErr
	}
	return Capture{Filename: id + ".pcap", Payload: []byte("pcap " + id)}, nil
}

func (s *fakeSniffer) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// fakeAnalyzer returns a single frame check of the configured value.
type fakeAnalyzer struct {
	mu       sync.Mutex
	value    verdict.Value
	err      error
	requests []AnalysisRequest
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req AnalysisRequest) ([]testsuite.Partial, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.err != nil {
		return nil, a.err
	}
	return []testsuite.Partial{testsuite.NewPartial("frame_check_[1/1]", a.value, "frame check")}, nil
}

// mockSniffer is a testify mock of Sniffer.
type mockSniffer struct {
	mock.Mock
}

func (m *mockSniffer) Start(ctx context.Context, captureID, filter, linkID string) error {
	return m.Called(ctx, captureID, filter, linkID).Error(0)
}

func (m *mockSniffer) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSniffer) Capture(ctx context.Context, captureID string) (Capture, error) {
	args := m.Called(ctx, captureID)
	return args.Get(0).(Capture), args.Error(1)
}

// memResults keeps written reports.
type memResults struct {
	mu      sync.Mutex
	cases   map[string]testsuite.Report
	session []testsuite.CaseReport
}

func (r *memResults) WriteTestCase(id string, rep testsuite.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cases == nil {
		r.cases = make(map[string]testsuite.Report)
	}
	r.cases[id] = rep
	return nil
}

func (r *memResults) WriteSession(_ testsuite.Session, reports []testsuite.CaseReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = reports
	return nil
}

// recorder collects the events published on the bus.
type recorder struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func newRecorder(t *testing.T, client *bus.Client) *recorder {
	t.Helper()
	r := &recorder{}
	sub, err := client.Subscribe([]string{"event.#"}, func(_ *wire.Envelope, msg wire.Message) {
		r.mu.Lock()
		r.msgs = append(r.msgs, msg)
		r.mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return r
}

// last returns the last recorded message of kind k, or nil.
func (r *recorder) last(k wire.Kind) wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Kind() == k {
			return r.msgs[i]
		}
	}
	return nil
}

func (r *recorder) count(k wire.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind() == k {
			n++
		}
	}
	return n
}

// waitFor waits until n messages of kind k were recorded and returns the
// last one.
func (r *recorder) waitFor(t *testing.T, k wire.Kind, n int) wire.Message {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(k) >= n }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d %s", n, k)
	return r.last(k)
}

type harness struct {
	c        *Coordinator
	client   *bus.Client
	sniffer  *fakeSniffer
	analyzer *fakeAnalyzer
	results  *memResults
	rec      *recorder
}

// newHarness builds a coordinator over an in-memory bus. Tests drive it
// by firing triggers directly, without Run.
func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	parsed, err := loader.Parse([]byte(suiteYAML))
	require.NoError(t, err)
	suite, err := parsed.Build()
	require.NoError(t, err)

	mem := bus.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	client := bus.NewClient(mem, bus.ClientOptions{Source: ComponentName, Logger: discard})

	h := &harness{
		client:   client,
		sniffer:  &fakeSniffer{},
		analyzer: &fakeAnalyzer{value: verdict.Pass},
		results:  &memResults{},
	}
	cfg := Config{
		IUTConfigTimeout: time.Hour,
		Sniffer:          h.sniffer,
		Analyzer:         h.analyzer,
		Results:          h.results,
		Logger:           discard,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	h.c, err = New(suite, client, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		h.c.iutTimer.disarm()
		h.c.readyTimer.disarm()
	})
	h.rec = newRecorder(t, client)
	return h
}

func (h *harness) fire(t *testing.T, tr Trigger, p params) {
	t.Helper()
	require.NoError(t, h.c.fire(tr, p))
}

// startSuite bootstraps, configures and starts the test suite.
func (h *harness) startSuite(t *testing.T, testCases ...string) {
	t.Helper()
	h.fire(t, TriggerBootstrap, params{})
	h.fire(t, TriggerConfigureTestSuite, params{session: testsuite.Session{ID: "session-1", TestCases: testCases}})
	h.fire(t, TriggerStartTestSuite, params{})
}

// configureIUTs reports the configuration of both nodes.
func (h *harness) configureIUTs(t *testing.T) {
	t.Helper()
	for _, node := range []string{"coap_client", "coap_server"} {
		h.fire(t, TriggerIUTConfigurationExecuted, params{node: node})
	}
}

// executeStep reports the evidence of the current step.
func (h *harness) executeStep(t *testing.T, token string, verifyOK bool) {
	t.Helper()
	step := h.c.suite.CurrentStep()
	require.NotNil(t, step, "no step executing")
	typ := step.Type
	if typ == testsuite.StepFeature {
		typ = testsuite.StepCheck
	}
	h.fire(t, TriggerStepExecuted, params{step: stepResult{
		typ:      typ,
		stepID:   step.ID,
		token:    token,
		verifyOK: verifyOK,
	}})
}

// runCurrent configures, starts and executes the current test case.
func (h *harness) runCurrent(t *testing.T, token string) {
	t.Helper()
	h.configureIUTs(t)
	h.fire(t, TriggerStartTestCase, params{})
	for h.c.state == StateWaitingForStepExecuted {
		h.executeStep(t, token, true)
	}
}

func (h *harness) current(t *testing.T) string {
	t.Helper()
	tc := h.c.suite.CurrentTestCase()
	require.NotNil(t, tc, "no current testcase")
	return tc.ID
}
