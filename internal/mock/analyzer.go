package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Analyzer is a fake capture analyzer. Unless scripted otherwise, every
// capture passes with a single partial verdict.
type Analyzer struct {
	*service

	mu        sync.Mutex
	results   map[string][]wire.AnalysisEntry
	scripts   map[string]Behavior
	analyzed  []string
}

// NewAnalyzer creates an analyzer served through client.
func NewAnalyzer(client *bus.Client, opts Options) *Analyzer {
	a := &Analyzer{
		service:   newService(wire.ComponentAnalysis, client, opts),
		results:   make(map[string][]wire.AnalysisEntry),
		scripts:   make(map[string]Behavior),
	}
	a.behaviorOf = a.testCaseBehavior
	return a
}

// Start subscribes the analyzer to its requests and announces it.
func (a *Analyzer) Start(ctx context.Context) error {
	return a.start(ctx, map[wire.Kind]handlerFunc{
		wire.KindAnalyzeTestCase: a.handleAnalyze,
	})
}

// SetResult sets the partial verdicts returned for testCaseID.
func (a *Analyzer) SetResult(testCaseID string, entries ...wire.AnalysisEntry) {
	a.mu.Lock()
	a.results[testCaseID] = entries
	a.mu.Unlock()
}

// ScriptTestCase sets the behavior of analysis requests for testCaseID. It
// takes precedence over Script.
func (a *Analyzer) ScriptTestCase(testCaseID string, b Behavior) {
	a.mu.Lock()
	a.scripts[testCaseID] = b
	a.mu.Unlock()
}

func (a *Analyzer) testCaseBehavior(msg wire.Message) (Behavior, bool) {
	m, ok := msg.(*wire.AnalyzeTestCase)
	if !ok {
		return Behavior{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.scripts[m.TestCaseID]
	return b, ok
}

// Analyzed returns the test case ids analyzed so far, in order.
func (a *Analyzer) Analyzed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.analyzed...)
}

func (a *Analyzer) handleAnalyze(_ *wire.Envelope, msg wire.Message) (wire.Message, error) {
	m := msg.(*wire.AnalyzeTestCase)
	payload, err := base64.StdEncoding.DecodeString(m.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	a.mu.Lock()
	a.analyzed = append(a.analyzed, m.TestCaseID)
	entries, ok := a.results[m.TestCaseID]
	a.mu.Unlock()

	if !ok {
		entries = []wire.AnalysisEntry{{
			Verdict:     verdict.Pass.String(),
			Description: fmt.Sprintf("%d bytes of %s conform to %s", len(payload), m.Filename, m.TestCaseID),
		}}
	}
	return &wire.AnalysisReply{
		ReplyStatus: okStatus(),
		TestCaseID:  m.TestCaseID,
		Partials:    entries,
	}, nil
}
