package coordinator

import (
	"errors"
	"fmt"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Messages of degraded verdicts.
const (
	msgSnifferFailure  = "Error encountered with packet sniffer"
	msgAnalysisFailure = "PCAP analysis failed"
)

// Session.

func (c *Coordinator) applySessionConfiguration(p *params) error {
	if err := c.suite.Configure(p.session); err != nil {
		return coordinationError("configure testsuite", err)
	}
	c.client.SetSessionID(p.session.ID)
	c.logger.Info("testsuite configured", "session", p.session.ID, "testcases", c.suite.Session().TestCases)
	return nil
}

func (c *Coordinator) publishTestSuiteConfigured(_ *params) error {
	s := c.suite.Session()
	return c.publish(&wire.TestSuiteConfigured{SessionID: s.ID, TestCases: s.TestCases})
}

func (c *Coordinator) publishTestSuiteStarted(_ *params) error {
	return c.publish(&wire.TestSuiteStarted{})
}

func (c *Coordinator) reinitTestSuite(_ *params) error {
	c.suite.Reinit()
	c.report = nil
	return nil
}

// configureAgents pushes the known addressing of every node to the agents.
func (c *Coordinator) configureAgents(_ *params) error {
	seen := make(map[string]bool)
	for _, id := range c.suite.TestCaseIDs() {
		tc, _ := c.suite.TestCase(id)
		cfg, ok := c.suite.Config(tc.ConfigID)
		if !ok {
			continue
		}
		for _, node := range cfg.Nodes {
			addr, ok := c.suite.NodeAddress(node)
			if !ok || seen[node] {
				continue
			}
			seen[node] = true
			err := c.publish(&wire.AgentConfigure{Node: node, IPv6Prefix: addr.Prefix, IPv6Host: addr.Host})
			if err != nil {
				c.logger.Warn("agent configuration not sent", "node", node, "error", err)
			}
		}
	}
	return nil
}

func (c *Coordinator) finishTestSuite(_ *params) error {
	c.iutTimer.disarm()
	c.report = c.suite.Report()
	session := c.suite.Session()

	if c.cfg.Results != nil {
		if err := c.cfg.Results.WriteSession(session, c.report); err != nil {
			c.logger.Error("session report not written", "error", err)
		}
	}
	c.logger.Info("testsuite finished", "session", session.ID, "testcases", len(c.report))

	return errors.Join(
		c.publish(&wire.TestSuiteReport{SessionID: session.ID, Report: c.report}),
		c.publish(&wire.TestSuiteFinished{}),
	)
}

func (c *Coordinator) abortTestSuite(_ *params) error {
	if tc := c.suite.CurrentTestCase(); tc != nil {
		c.stopCapture(tc)
		c.suite.AbortCurrentTestCase()
		c.logEntityState(log.StateEntityTestCase, tc.ID, "", tc.State.String())
		c.logger.Warn("testcase aborted with the testsuite", "testcase", tc.ID)
	}
	return nil
}

// Test case navigation.

// prepareNextTestCase makes the selected or next test case current, or
// finishes the test suite when none is left.
func (c *Coordinator) prepareNextTestCase(_ *params) error {
	in := c.intent
	c.intent = intent{}

	var tc *testsuite.TestCase
	if in.testCaseID != "" {
		var err error
		tc, err = c.suite.GoToTestCase(in.testCaseID)
		if err != nil {
			c.logger.Warn("going to the next testcase instead", "testcase", in.testCaseID, "error", err)
		} else if in.restart {
			c.logger.Info("restarting testcase", "testcase", tc.ID)
		}
	}
	if tc == nil {
		tc = c.suite.NextTestCase()
	}
	if tc == nil {
		c.logger.Info("no testcase left")
		return c.fire(TriggerFinishTestSuite, params{})
	}

	c.logger.Info("next testcase", "testcase", tc.ID, "config", tc.ConfigID)
	c.setTestCaseState(tc, testsuite.TestCaseConfiguring)
	return c.fire(TriggerStartConfiguration, params{})
}

func (c *Coordinator) selectTestCase(p *params) error {
	id := testsuite.NormalizeTestCaseID(p.testCaseID)
	if _, ok := c.suite.TestCase(id); !ok {
		return coordinationError("select testcase", fmt.Errorf("%w: %q", testsuite.ErrTestCaseNotFound, p.testCaseID))
	}

	if cur := c.suite.CurrentTestCase(); cur != nil && cur.ID != id {
		c.stopCapture(cur)
		if !finished(cur) {
			if err := c.suite.ReinitTestCase(cur.ID); err != nil {
				return coordinationError("select testcase", err)
			}
		}
	}
	c.intent = intent{testCaseID: id}
	return nil
}

func (c *Coordinator) restartTestCase(_ *params) error {
	cur := c.suite.CurrentTestCase()
	if cur == nil {
		return coordinationError("restart testcase", testsuite.ErrNoTestCase)
	}
	c.stopCapture(cur)
	c.intent = intent{testCaseID: cur.ID, restart: true}
	return nil
}

// skippingCurrent reports whether a skip refers to the current test case.
func (c *Coordinator) skippingCurrent(p *params) bool {
	if p.testCaseID == "" {
		return c.suite.CurrentTestCase() != nil
	}
	return c.suite.IsCurrent(testsuite.NormalizeTestCaseID(p.testCaseID))
}

func (c *Coordinator) skipCurrentTestCase(_ *params) error {
	cur := c.suite.CurrentTestCase()
	c.stopCapture(cur)
	tc, err := c.suite.SkipTestCase(cur.ID)
	if err != nil {
		return coordinationError("skip testcase", err)
	}
	c.logger.Info("testcase skipped", "testcase", tc.ID)
	c.logEntityState(log.StateEntityTestCase, tc.ID, "", tc.State.String())
	return nil
}

func (c *Coordinator) skipOtherTestCase(p *params) error {
	tc, err := c.suite.SkipTestCase(testsuite.NormalizeTestCaseID(p.testCaseID))
	if err != nil {
		return coordinationError("skip testcase", err)
	}
	c.logger.Info("testcase skipped", "testcase", tc.ID)
	c.logEntityState(log.StateEntityTestCase, tc.ID, "", tc.State.String())
	return nil
}

func (c *Coordinator) abortTestCase(_ *params) error {
	cur := c.suite.CurrentTestCase()
	if cur == nil {
		return coordinationError("abort testcase", testsuite.ErrNoTestCase)
	}
	c.stopCapture(cur)
	c.aborted = c.suite.AbortCurrentTestCase()
	c.logEntityState(log.StateEntityTestCase, cur.ID, "", cur.State.String())
	return nil
}

func (c *Coordinator) notifyTestCaseAborted(_ *params) error {
	tc := c.aborted
	c.aborted = nil
	if tc != nil {
		r, err := tc.GenerateVerdict(nil)
		if err == nil {
			c.writeTestCase(tc.ID, r)
		}
		c.logger.Warn("testcase aborted", "testcase", tc.ID)
		if err := c.publish(&wire.TestCaseAborted{TestCaseID: tc.ID}); err != nil {
			c.logger.Warn("abort notification not sent", "error", err)
		}
	}
	return c.fire(TriggerPrepareNextTestCase, params{})
}

// IUT configuration.

func (c *Coordinator) resetConfiguredNodes(_ *params) error {
	c.suite.ResetConfiguredNodes()
	return nil
}

// publishTestCaseConfiguration asks every IUT of the configuration to set
// itself up.
func (c *Coordinator) publishTestCaseConfiguration(_ *params) error {
	tc := c.suite.CurrentTestCase()
	cfg := c.suite.CurrentConfig()
	if tc == nil || cfg == nil {
		return coordinationError("configure testcase", testsuite.ErrNoTestCase)
	}

	var desc []string
	if cfg.Description != "" {
		desc = []string{cfg.Description}
	}
	var errs []error
	for _, node := range cfg.Nodes {
		errs = append(errs, c.publish(&wire.TestCaseConfiguration{
			TestCaseID:  tc.ID,
			ConfigID:    cfg.ID,
			Node:        node,
			Description: desc,
		}))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) armIUTConfigurationTimer(_ *params) error {
	c.iutTimer.arm(c.cfg.IUTConfigTimeout)
	return nil
}

func (c *Coordinator) disarmIUTConfigurationTimer(_ *params) error {
	c.iutTimer.disarm()
	return nil
}

// updateNodeAddress records the addressing reported by an IUT. A report
// without addressing keeps the known one.
func (c *Coordinator) updateNodeAddress(p *params) error {
	if p.node == "" {
		return coordinationError("configuration executed", ErrMissingNode)
	}
	addr := p.address
	if addr.Prefix == "" && addr.Host == "" {
		if known, ok := c.suite.NodeAddress(p.node); ok {
			addr = known
		}
	}
	c.suite.UpdateNodeAddress(p.node, addr)
	c.logger.Info("IUT configured", "node", p.node, "address", addr)
	return nil
}

func (c *Coordinator) checkAllNodesConfigured(_ *params) error {
	if c.state != StateWaitingForIUTConfiguration || !c.suite.AllNodesConfigured() {
		return nil
	}
	return c.fire(TriggerAllIUTConfigurationExecuted, params{})
}

func (c *Coordinator) notifyTestCaseReady(_ *params) error {
	tc := c.suite.CurrentTestCase()
	if tc == nil {
		return testsuite.ErrNoTestCase
	}
	c.setTestCaseState(tc, testsuite.TestCaseReady)
	return c.publish(&wire.TestCaseReady{
		TestCaseID:  tc.ID,
		URI:         tc.URI,
		Objective:   tc.Objective,
		Description: tc.PreConditions,
	})
}

// Execution.

// startTestCase starts the capture of every link of the configuration. A
// capture that fails to start does not prevent the test case from running.
func (c *Coordinator) startTestCase(_ *params) error {
	tc := c.suite.CurrentTestCase()
	if tc == nil {
		return coordinationError("start testcase", testsuite.ErrNoTestCase)
	}
	if tc.State != testsuite.TestCaseConfiguring && tc.State != testsuite.TestCaseReady {
		return coordinationError("start testcase", fmt.Errorf("%w: %s is %s", ErrIncompatibleState, tc.ID, tc.State))
	}

	c.setTestCaseState(tc, testsuite.TestCaseExecuting)
	if cfg := c.suite.CurrentConfig(); cfg != nil {
		for _, link := range cfg.Topology {
			if err := c.sniffer.Start(c.ctx, tc.ID, link.CaptureFilter, link.ID); err != nil {
				c.logger.Error("capture not started", "testcase", tc.ID, "link", link.ID, "error", err)
			}
		}
	}
	return nil
}

func (c *Coordinator) publishTestCaseStarted(_ *params) error {
	tc := c.suite.CurrentTestCase()
	if tc == nil {
		return nil
	}
	return c.publish(&wire.TestCaseStarted{TestCaseID: tc.ID})
}

// prepareNextStep announces the next step, or finishes the test case once
// the sequence is exhausted.
func (c *Coordinator) prepareNextStep(_ *params) error {
	tc := c.suite.CurrentTestCase()
	if tc == nil {
		return testsuite.ErrNoTestCase
	}
	if step := c.suite.NextStep(); step != nil {
		c.logEntityState(log.StateEntityStep, step.ID, testsuite.StepNull.String(), step.State.String())
		return c.fire(TriggerStartNextStep, params{})
	}
	c.setTestCaseState(tc, testsuite.TestCaseReadyForAnalysis)
	return c.fire(TriggerFinishTestCase, params{})
}

func (c *Coordinator) publishStepExecute(_ *params) error {
	tc := c.suite.CurrentTestCase()
	step := c.suite.CurrentStep()
	if tc == nil || step == nil {
		return testsuite.ErrStepNotExecuting
	}
	target, err := c.suite.CurrentStepTargetAddress()
	if err != nil {
		c.logger.Warn("no target address for step", "step", step.ID, "error", err)
	}
	c.logger.Info("executing step", "testcase", tc.ID, "step", step.ID, "type", step.Type, "node", step.Node)
	return c.publish(&wire.StepExecute{
		Type:          step.Type,
		StepID:        step.ID,
		TestCaseID:    tc.ID,
		Node:          step.Node,
		Mode:          step.Mode,
		TargetAddress: target,
		Description:   step.Description,
	})
}

// recordStepResult finishes the executing step with the reported evidence.
func (c *Coordinator) recordStepResult(p *params) error {
	step := c.suite.CurrentStep()
	if step == nil {
		return coordinationError("step executed", testsuite.ErrStepNotExecuting)
	}
	if p.step.stepID != "" && p.step.stepID != step.ID {
		return coordinationError("step executed", fmt.Errorf("%w: got %s, executing %s", ErrStepMismatch, p.step.stepID, step.ID))
	}

	var err error
	switch p.step.typ {
	case testsuite.StepStimuli:
		err = c.suite.FinishStimuliStep()
	case testsuite.StepVerify:
		err = c.suite.FinishVerifyStep(p.step.verifyOK)
	default:
		err = c.suite.FinishCheckStep(p.step.token, p.step.description)
	}
	if err != nil {
		return coordinationError("step executed", err)
	}
	c.logEntityState(log.StateEntityStep, step.ID, testsuite.StepExecuting.String(), step.State.String())
	return nil
}

// finishTestCase collects the capture, analyzes it and publishes the
// verdict of the current test case.
func (c *Coordinator) finishTestCase(_ *params) error {
	tc := c.suite.CurrentTestCase()
	if tc == nil {
		return c.fire(TriggerPrepareNextTestCase, params{})
	}
	if err := c.publish(&wire.TestCaseFinished{TestCaseID: tc.ID}); err != nil {
		c.logger.Warn("finish notification not sent", "error", err)
	}

	c.setTestCaseState(tc, testsuite.TestCaseAnalyzing)
	r := c.analyze(tc)
	c.setTestCaseState(tc, testsuite.TestCaseFinished)
	c.writeTestCase(tc.ID, r)

	c.logger.Info("testcase verdict", "testcase", tc.ID, "verdict", r.Verdict)
	if err := c.publish(&wire.TestCaseVerdict{
		TestCaseID:    tc.ID,
		Verdict:       r.Verdict,
		Description:   r.Description,
		Partials:      r.Partials,
		CaptureDigest: r.CaptureDigest,
	}); err != nil {
		c.logger.Warn("verdict not sent", "error", err)
	}
	return c.fire(TriggerPrepareNextTestCase, params{})
}

// analyze produces the report of tc. A sniffer failure yields an error
// verdict and an analyzer failure an inconclusive one.
func (c *Coordinator) analyze(tc *testsuite.TestCase) testsuite.Report {
	if err := c.sniffer.Stop(c.ctx); err != nil {
		c.logger.Warn("capture not stopped", "testcase", tc.ID, "error", err)
	}

	capture, err := c.sniffer.Capture(c.ctx, tc.ID)
	if err != nil {
		c.logger.Error("capture not retrieved", "testcase", tc.ID, "error", err)
		return c.degrade(tc, verdict.Error, msgSnifferFailure+": "+err.Error())
	}

	var r testsuite.Report
	partials, err := c.analyzer.Analyze(c.ctx, AnalysisRequest{
		TestCaseID: tc.ID,
		Protocol:   c.cfg.Protocol,
		Capture:    capture,
	})
	if err != nil {
		c.logger.Warn("analysis failed", "testcase", tc.ID, "error", err)
		r = c.degrade(tc, verdict.Inconclusive, msgAnalysisFailure+": "+err.Error())
	} else if r, err = tc.GenerateVerdict(partials); err != nil {
		r = c.degrade(tc, verdict.Error, err.Error())
	}

	r.CaptureDigest = capture.Digest()
	tc.Report = &r
	return r
}

func (c *Coordinator) degrade(tc *testsuite.TestCase, v verdict.Value, reason string) testsuite.Report {
	r, err := tc.GenerateDegradedVerdict(v, reason)
	if err != nil {
		r = testsuite.Report{
			Verdict:     verdict.Error,
			Description: reason + ": " + err.Error(),
			Partials:    []testsuite.Partial{},
		}
		tc.Report = &r
	}
	return r
}

func (c *Coordinator) stopCapture(tc *testsuite.TestCase) {
	if tc == nil || tc.State != testsuite.TestCaseExecuting {
		return
	}
	if err := c.sniffer.Stop(c.ctx); err != nil {
		c.logger.Warn("capture not stopped", "testcase", tc.ID, "error", err)
	}
}

func (c *Coordinator) writeTestCase(id string, r testsuite.Report) {
	if c.cfg.Results == nil {
		return
	}
	if err := c.cfg.Results.WriteTestCase(id, r); err != nil {
		c.logger.Error("testcase report not written", "testcase", id, "error", err)
	}
}

func finished(tc *testsuite.TestCase) bool {
	switch tc.State {
	case testsuite.TestCaseFinished, testsuite.TestCaseSkipped, testsuite.TestCaseAborted:
		return true
	}
	return false
}
