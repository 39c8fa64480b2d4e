package wire

import (
	"fmt"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

// Kind is the discriminant of a message body.
type Kind uint16

const (
	KindUnknown Kind = iota

	// Control events.
	KindSessionConfiguration
	KindTestSuiteStart
	KindTestSuiteAbort
	KindTestCaseStart
	KindTestCaseSelect
	KindTestCaseSkip
	KindTestCaseRestart
	KindTestCaseAbort
	KindConfigurationExecuted
	KindStimuliExecuted
	KindVerifyExecuted
	KindCheckExecuted
	KindComponentReady
	KindComponentShutdown
	KindTestingToolTerminate

	// Notifications.
	KindTestingToolReady
	KindTestSuiteReady
	KindTestSuiteConfigured
	KindTestSuiteStarted
	KindTestSuiteFinished
	KindTestSuiteReport
	KindTestCaseConfiguration
	KindTestCaseReady
	KindTestCaseStarted
	KindTestCaseFinished
	KindTestCaseVerdict
	KindTestCaseAborted
	KindStimuliExecute
	KindVerifyExecute
	KindCheckExecute
	KindAgentConfigure

	// Service requests and replies.
	KindAck
	KindGetTestCases
	KindTestCasesReply
	KindGetStatus
	KindStatusReply
	KindSniffingStart
	KindSniffingStop
	KindGetCapture
	KindCaptureReply
	KindAnalyzeTestCase
	KindAnalysisReply

	kindCount
)

type kindInfo struct {
	name string

	// route is the default routing key. Replies have none: they are
	// published under the reply-to key of their request.
	route string

	newBody func() Message
}

var registry = map[Kind]kindInfo{
	KindSessionConfiguration:  {"session.configuration", RouteSessionConfiguration, func() Message { return &SessionConfiguration{} }},
	KindTestSuiteStart:        {"testsuite.start", RouteTestSuiteStart, func() Message { return &TestSuiteStart{} }},
	KindTestSuiteAbort:        {"testsuite.abort", RouteTestSuiteAbort, func() Message { return &TestSuiteAbort{} }},
	KindTestCaseStart:         {"testcase.start", RouteTestCaseStart, func() Message { return &TestCaseStart{} }},
	KindTestCaseSelect:        {"testcase.select", RouteTestCaseSelect, func() Message { return &TestCaseSelect{} }},
	KindTestCaseSkip:          {"testcase.skip", RouteTestCaseSkip, func() Message { return &TestCaseSkip{} }},
	KindTestCaseRestart:       {"testcase.restart", RouteTestCaseRestart, func() Message { return &TestCaseRestart{} }},
	KindTestCaseAbort:         {"testcase.abort", RouteTestCaseAbort, func() Message { return &TestCaseAbort{} }},
	KindConfigurationExecuted: {"configuration.executed", RouteConfigurationDone, func() Message { return &ConfigurationExecuted{} }},
	KindStimuliExecuted:       {"step.stimuli.executed", RouteStimuliExecuted, func() Message { return &StimuliExecuted{} }},
	KindVerifyExecuted:        {"step.verify.executed", RouteVerifyExecuted, func() Message { return &VerifyExecuted{} }},
	KindCheckExecuted:         {"step.check.executed", RouteCheckExecuted, func() Message { return &CheckExecuted{} }},
	KindComponentReady:        {"component.ready", RouteComponentReady, func() Message { return &ComponentReady{} }},
	KindComponentShutdown:     {"component.shutdown", RouteComponentShutdown, func() Message { return &ComponentShutdown{} }},
	KindTestingToolTerminate:  {"testingtool.terminate", RouteTestingToolTerminate, func() Message { return &TestingToolTerminate{} }},

	KindTestingToolReady:      {"testingtool.ready", RouteTestingToolReady, func() Message { return &TestingToolReady{} }},
	KindTestSuiteReady:        {"testsuite.ready", RouteTestSuiteReady, func() Message { return &TestSuiteReady{} }},
	KindTestSuiteConfigured:   {"testsuite.configured", RouteTestSuiteConfigured, func() Message { return &TestSuiteConfigured{} }},
	KindTestSuiteStarted:      {"testsuite.started", RouteTestSuiteStarted, func() Message { return &TestSuiteStarted{} }},
	KindTestSuiteFinished:     {"testsuite.finished", RouteTestSuiteFinished, func() Message { return &TestSuiteFinished{} }},
	KindTestSuiteReport:       {"testsuite.report", RouteTestSuiteReport, func() Message { return &TestSuiteReport{} }},
	KindTestCaseConfiguration: {"testcase.configuration", RouteTestCaseConfiguration, func() Message { return &TestCaseConfiguration{} }},
	KindTestCaseReady:         {"testcase.ready", RouteTestCaseReady, func() Message { return &TestCaseReady{} }},
	KindTestCaseStarted:       {"testcase.started", RouteTestCaseStarted, func() Message { return &TestCaseStarted{} }},
	KindTestCaseFinished:      {"testcase.finished", RouteTestCaseFinished, func() Message { return &TestCaseFinished{} }},
	KindTestCaseVerdict:       {"testcase.verdict", RouteTestCaseVerdict, func() Message { return &TestCaseVerdict{} }},
	KindTestCaseAborted:       {"testcase.aborted", RouteTestCaseAborted, func() Message { return &TestCaseAborted{} }},
	KindStimuliExecute:        {"step.stimuli.execute", RouteStimuliExecute, func() Message { return &StepExecute{Type: testsuite.StepStimuli} }},
	KindVerifyExecute:         {"step.verify.execute", RouteVerifyExecute, func() Message { return &StepExecute{Type: testsuite.StepVerify} }},
	KindCheckExecute:          {"step.check.execute", RouteCheckExecute, func() Message { return &StepExecute{Type: testsuite.StepCheck} }},
	KindAgentConfigure:        {"agent.configure", RouteAgentConfigure, func() Message { return &AgentConfigure{} }},

	KindAck:             {"ack", "", func() Message { return &Ack{} }},
	KindGetTestCases:    {"testcases.get", RouteGetTestCases, func() Message { return &GetTestCases{} }},
	KindTestCasesReply:  {"testcases.reply", "", func() Message { return &TestCasesReply{} }},
	KindGetStatus:       {"status.get", RouteGetStatus, func() Message { return &GetStatus{} }},
	KindStatusReply:     {"status.reply", "", func() Message { return &StatusReply{} }},
	KindSniffingStart:   {"sniffing.start", RouteSniffStart, func() Message { return &SniffingStart{} }},
	KindSniffingStop:    {"sniffing.stop", RouteSniffStop, func() Message { return &SniffingStop{} }},
	KindGetCapture:      {"sniffing.capture.get", RouteGetCapture, func() Message { return &GetCapture{} }},
	KindCaptureReply:    {"sniffing.capture.reply", "", func() Message { return &CaptureReply{} }},
	KindAnalyzeTestCase: {"analysis.analyze", RouteAnalyze, func() Message { return &AnalyzeTestCase{} }},
	KindAnalysisReply:   {"analysis.reply", "", func() Message { return &AnalysisReply{} }},
}

func init() {
	if err := validateRegistry(); err != nil {
		panic(err)
	}
}

// validateRegistry checks that every kind is registered once, that names and
// routes are unique and that constructors produce bodies of their own kind.
func validateRegistry() error {
	names := make(map[string]Kind, len(registry))
	routes := make(map[string]Kind, len(registry))
	for k := KindUnknown + 1; k < kindCount; k++ {
		info, ok := registry[k]
		if !ok {
			return fmt.Errorf("wire: kind %d is not registered", k)
		}
		if prev, dup := names[info.name]; dup {
			return fmt.Errorf("wire: kinds %d and %d share name %q", prev, k, info.name)
		}
		names[info.name] = k
		if info.route != "" {
			if prev, dup := routes[info.route]; dup {
				return fmt.Errorf("wire: kinds %d and %d share route %q", prev, k, info.route)
			}
			routes[info.route] = k
		}
		if got := info.newBody().Kind(); got != k {
			return fmt.Errorf("wire: constructor of %q builds kind %d", info.name, got)
		}
	}
	return nil
}

// String returns the kind name.
func (k Kind) String() string {
	if info, ok := registry[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

// Valid reports whether k is a registered kind.
func (k Kind) Valid() bool {
	_, ok := registry[k]
	return ok
}

// Route returns the default routing key of k, empty for replies.
func (k Kind) Route() string {
	return registry[k].route
}

// IsReply reports whether k is a reply kind.
func (k Kind) IsReply() bool {
	info, ok := registry[k]
	return ok && info.route == ""
}

// KindByName returns the kind with the given name.
func KindByName(name string) (Kind, bool) {
	for k, info := range registry {
		if info.name == name {
			return k, true
		}
	}
	return KindUnknown, false
}

func (*SessionConfiguration) Kind() Kind  { return KindSessionConfiguration }
func (*TestSuiteStart) Kind() Kind        { return KindTestSuiteStart }
func (*TestSuiteAbort) Kind() Kind        { return KindTestSuiteAbort }
func (*TestCaseStart) Kind() Kind         { return KindTestCaseStart }
func (*TestCaseSelect) Kind() Kind        { return KindTestCaseSelect }
func (*TestCaseSkip) Kind() Kind          { return KindTestCaseSkip }
func (*TestCaseRestart) Kind() Kind       { return KindTestCaseRestart }
func (*TestCaseAbort) Kind() Kind         { return KindTestCaseAbort }
func (*ConfigurationExecuted) Kind() Kind { return KindConfigurationExecuted }
func (*StimuliExecuted) Kind() Kind       { return KindStimuliExecuted }
func (*VerifyExecuted) Kind() Kind        { return KindVerifyExecuted }
func (*CheckExecuted) Kind() Kind         { return KindCheckExecuted }
func (*ComponentReady) Kind() Kind        { return KindComponentReady }
func (*ComponentShutdown) Kind() Kind     { return KindComponentShutdown }
func (*TestingToolTerminate) Kind() Kind  { return KindTestingToolTerminate }
func (*TestingToolReady) Kind() Kind      { return KindTestingToolReady }
func (*TestSuiteReady) Kind() Kind        { return KindTestSuiteReady }
func (*TestSuiteConfigured) Kind() Kind   { return KindTestSuiteConfigured }
func (*TestSuiteStarted) Kind() Kind      { return KindTestSuiteStarted }
func (*TestSuiteFinished) Kind() Kind     { return KindTestSuiteFinished }
func (*TestSuiteReport) Kind() Kind       { return KindTestSuiteReport }
func (*TestCaseConfiguration) Kind() Kind { return KindTestCaseConfiguration }
func (*TestCaseReady) Kind() Kind         { return KindTestCaseReady }
func (*TestCaseStarted) Kind() Kind       { return KindTestCaseStarted }
func (*TestCaseFinished) Kind() Kind      { return KindTestCaseFinished }
func (*TestCaseVerdict) Kind() Kind       { return KindTestCaseVerdict }
func (*TestCaseAborted) Kind() Kind       { return KindTestCaseAborted }
func (*AgentConfigure) Kind() Kind        { return KindAgentConfigure }
func (*Ack) Kind() Kind                   { return KindAck }
func (*GetTestCases) Kind() Kind          { return KindGetTestCases }
func (*TestCasesReply) Kind() Kind        { return KindTestCasesReply }
func (*GetStatus) Kind() Kind             { return KindGetStatus }
func (*StatusReply) Kind() Kind           { return KindStatusReply }
func (*SniffingStart) Kind() Kind         { return KindSniffingStart }
func (*SniffingStop) Kind() Kind          { return KindSniffingStop }
func (*GetCapture) Kind() Kind            { return KindGetCapture }
func (*CaptureReply) Kind() Kind          { return KindCaptureReply }
func (*AnalyzeTestCase) Kind() Kind       { return KindAnalyzeTestCase }
func (*AnalysisReply) Kind() Kind         { return KindAnalysisReply }

// Kind returns the execute kind matching the step type. Feature steps are
// announced like check steps.
func (m *StepExecute) Kind() Kind {
	switch m.Type {
	case testsuite.StepStimuli:
		return KindStimuliExecute
	case testsuite.StepVerify:
		return KindVerifyExecute
	case testsuite.StepCheck, testsuite.StepFeature:
		return KindCheckExecute
	}
	return KindUnknown
}
