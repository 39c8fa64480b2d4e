package iut

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// DefaultStimuliTimeout bounds the execution of a single stimuli.
const DefaultStimuliTimeout = 15 * time.Second

// ComponentPrefix prefixes the component name agents announce.
const ComponentPrefix = "automated_iut."

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("agent already running")

// AgentConfig configures an Agent.
type AgentConfig struct {
	StimuliTimeout time.Duration

	// StartTestCases makes the agent start every ready test case it
	// implements. One agent per session should set it.
	StartTestCases bool

	// AutomatedOnly ignores steps meant to be executed by a user.
	AutomatedOnly bool

	// StopOnReport makes Run return once the session report is published.
	StopOnReport bool

	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultAgentConfig returns the default agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{StimuliTimeout: DefaultStimuliTimeout}
}

// Stats counts what an agent did during a session.
type Stats struct {
	Configured    int
	Stimuli       int
	StimuliFailed int
	Verified      int
	Skipped       int
	Started       int
}

// Agent connects an Adapter to the session bus.
type Agent struct {
	adapter    Adapter
	configurer Configurer
	verifier   Verifier
	caps       capabilities

	client *bus.Client
	cfg    AgentConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stats   Stats
	report  []testsuite.CaseReport
	stop    chan struct{}
	stopped bool
}

// NewAgent validates adapter and creates an agent for its node.
func NewAgent(adapter Adapter, client *bus.Client, cfg AgentConfig) (*Agent, error) {
	caps, err := validateAdapter(adapter)
	if err != nil {
		return nil, err
	}
	if cfg.StimuliTimeout <= 0 {
		cfg.StimuliTimeout = DefaultStimuliTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		adapter: adapter,
		caps:    caps,
		client:  client,
		cfg:     cfg,
		stop:    make(chan struct{}),
	}
	a.logger = logger.With("component", a.Name())
	a.configurer, _ = adapter.(Configurer)
	a.verifier, _ = adapter.(Verifier)
	return a, nil
}

// Name returns the component name of the agent.
func (a *Agent) Name() string {
	return ComponentPrefix + a.adapter.Node()
}

// Stats returns the counters of the agent.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Report returns the last session report received.
func (a *Agent) Report() []testsuite.CaseReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

// Run serves the agent until ctx is done or the testing tool terminates.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	sub, err := a.client.Subscribe([]string{
		wire.RouteTestCaseConfiguration,
		wire.RouteTestCaseReady,
		wire.RouteStimuliExecute,
		wire.RouteVerifyExecute,
		wire.RouteTestSuiteReport,
		wire.RouteTestingToolTerminate,
	}, func(_ *wire.Envelope, msg wire.Message) {
		a.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if err := a.client.Publish(ctx, &wire.ComponentReady{Component: a.Name(), Version: version.Current}); err != nil {
		return err
	}
	a.logger.Info("agent started", "node", a.adapter.Node())

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-a.stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if perr := a.client.Publish(shutdownCtx, &wire.ComponentShutdown{Component: a.Name()}); perr != nil {
		a.logger.Warn("shutdown not announced", "error", perr)
	}
	a.logger.Info("agent stopped")
	return err
}

func (a *Agent) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stopped {
		a.stopped = true
		close(a.stop)
	}
}

func (a *Agent) count(f func(*Stats)) {
	a.mu.Lock()
	f(&a.stats)
	a.mu.Unlock()
}

func (a *Agent) handle(ctx context.Context, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.TestCaseConfiguration:
		a.configure(ctx, m)
	case *wire.TestCaseReady:
		a.testCaseReady(ctx, m)
	case *wire.StepExecute:
		a.executeStep(ctx, m)
	case *wire.TestSuiteReport:
		a.mu.Lock()
		a.report = m.Report
		a.mu.Unlock()
		a.logger.Info("session report received", "session", m.SessionID, "testcases", len(m.Report))
		if a.cfg.StopOnReport {
			a.shutdown()
		}
	case *wire.TestingToolTerminate:
		a.logger.Info("testing tool terminated", "reason", m.Reason)
		a.shutdown()
	}
}

func (a *Agent) configure(ctx context.Context, m *wire.TestCaseConfiguration) {
	if m.Node != a.adapter.Node() {
		return
	}
	var addr Address
	if a.configurer != nil {
		var err error
		addr, err = a.configurer.Configure(ctx, m.TestCaseID)
		if err != nil {
			a.logger.Error("configuration failed", "testcase", m.TestCaseID, "error", err)
			return
		}
	}
	a.count(func(s *Stats) { s.Configured++ })
	a.publish(ctx, &wire.ConfigurationExecuted{
		Node:       m.Node,
		TestCaseID: m.TestCaseID,
		IPv6Prefix: addr.Prefix,
		IPv6Host:   addr.Host,
	})
}

func (a *Agent) testCaseReady(ctx context.Context, m *wire.TestCaseReady) {
	if !a.caps.implements(m.TestCaseID) {
		a.logger.Info("skipping unimplemented test case", "testcase", m.TestCaseID)
		a.count(func(s *Stats) { s.Skipped++ })
		a.publish(ctx, &wire.TestCaseSkip{TestCaseID: m.TestCaseID})
		return
	}
	if a.cfg.StartTestCases {
		a.count(func(s *Stats) { s.Started++ })
		a.publish(ctx, &wire.TestCaseStart{TestCaseID: m.TestCaseID})
	}
}

func (a *Agent) executeStep(ctx context.Context, m *wire.StepExecute) {
	if m.Node != a.adapter.Node() {
		return
	}
	if a.cfg.AutomatedOnly && m.Mode != testsuite.Automated {
		a.logger.Debug("leaving step to the user", "step", m.StepID)
		return
	}
	req := StepRequest{
		TestCaseID:    m.TestCaseID,
		StepID:        m.StepID,
		TargetAddress: m.TargetAddress,
		Description:   m.Description,
	}

	switch m.Type {
	case testsuite.StepStimuli:
		if !a.caps.hasStimuli(m.StepID) {
			a.logger.Info("ignoring unimplemented stimuli", "step", m.StepID)
			return
		}
		a.stimuli(ctx, req)
		a.publish(ctx, &wire.StimuliExecuted{StepID: m.StepID, Node: m.Node})

	case testsuite.StepVerify:
		ok := true
		if a.verifier != nil {
			var err error
			ok, err = a.verifier.Verify(ctx, req)
			if err != nil {
				a.logger.Warn("verify failed", "step", m.StepID, "error", err)
				ok = false
			}
		}
		a.count(func(s *Stats) { s.Verified++ })
		a.publish(ctx, &wire.VerifyExecuted{StepID: m.StepID, Node: m.Node, VerifyResponse: ok})
	}
}

// stimuli runs one stimuli within the stimuli timeout. A failed stimuli is
// still reported as executed: the capture analysis grades its effect.
func (a *Agent) stimuli(ctx context.Context, req StepRequest) {
	sctx, cancel := context.WithTimeout(ctx, a.cfg.StimuliTimeout)
	defer cancel()

	start := time.Now()
	err := a.adapter.Stimuli(sctx, req)
	a.count(func(s *Stats) {
		s.Stimuli++
		if err != nil {
			s.StimuliFailed++
		}
	})
	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			a.logger.Error("stimuli timed out", "step", req.StepID, "timeout", a.cfg.StimuliTimeout)
			return
		}
		a.logger.Error("stimuli failed", "step", req.StepID, "error", err)
		return
	}
	a.logger.Info("stimuli executed", "step", req.StepID, "duration", time.Since(start))
}

func (a *Agent) publish(ctx context.Context, msg wire.Message) {
	if err := a.client.Publish(ctx, msg); err != nil {
		a.logger.Warn("publish failed", "kind", msg.Kind(), "error", err)
	}
}
