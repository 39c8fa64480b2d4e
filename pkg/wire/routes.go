package wire

// Component names announced in ComponentReady.
const (
	ComponentTestCoordination = "testcoordination"
	ComponentSniffing         = "sniffing"
	ComponentAnalysis         = "analysis"
)

// ReplySuffix is appended to a request routing key to form its reply key.
const ReplySuffix = ".reply"

// ReplyRoute returns the routing key replies to requests on key are
// published under.
func ReplyRoute(key string) string {
	return key + ReplySuffix
}

// Control events consumed by the coordinator.
const (
	RouteSessionConfiguration = "control.session.configuration"
	RouteTestSuiteStart       = "control.testsuite.start"
	RouteTestSuiteAbort       = "control.testsuite.abort"
	RouteTestCaseStart        = "control.testcase.start"
	RouteTestCaseSelect       = "control.testcase.select"
	RouteTestCaseSkip         = "control.testcase.skip"
	RouteTestCaseRestart      = "control.testcase.restart"
	RouteTestCaseAbort        = "control.testcase.abort"
	RouteConfigurationDone    = "control.configuration.executed"
	RouteStimuliExecuted      = "control.step.stimuli.executed"
	RouteVerifyExecuted       = "control.step.verify.executed"
	RouteCheckExecuted        = "control.step.check.executed"
	RouteComponentReady       = "control.testingtool.component.ready"
	RouteComponentShutdown    = "control.testingtool.component.shutdown"
	RouteTestingToolTerminate = "control.testingtool.terminate"
)

// Notifications published by the coordinator.
const (
	RouteTestingToolReady      = "event.testingtool.ready"
	RouteTestSuiteReady        = "event.testsuite.ready"
	RouteTestSuiteConfigured   = "event.testsuite.configured"
	RouteTestSuiteStarted      = "event.testsuite.started"
	RouteTestSuiteFinished     = "event.testsuite.finished"
	RouteTestSuiteReport       = "event.testsuite.report"
	RouteTestCaseConfiguration = "event.testcase.configuration"
	RouteTestCaseReady         = "event.testcase.ready"
	RouteTestCaseStarted       = "event.testcase.started"
	RouteTestCaseFinished      = "event.testcase.finished"
	RouteTestCaseVerdict       = "event.testcase.verdict"
	RouteTestCaseAborted       = "event.testcase.aborted"
	RouteStimuliExecute        = "event.step.stimuli.execute"
	RouteVerifyExecute         = "event.step.verify.execute"
	RouteCheckExecute          = "event.step.check.execute"
	RouteAgentConfigure        = "event.agent.configure"
)

// Service requests. Replies are published under ReplyRoute(key).
const (
	RouteGetTestCases = "service.testsuite.testcases.get"
	RouteGetStatus    = "service.testsuite.status.get"
	RouteSniffStart   = "service.sniffing.start"
	RouteSniffStop    = "service.sniffing.stop"
	RouteGetCapture   = "service.sniffing.capture.get"
	RouteAnalyze      = "service.analysis.testcase.analyze"
)
