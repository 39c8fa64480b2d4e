package wire

import (
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

// Message is implemented by every message body.
type Message interface {
	Kind() Kind
}

// ---------------------------------------------------------------------------
// Control events
// ---------------------------------------------------------------------------

// SessionConfiguration configures the session before the test suite starts.
type SessionConfiguration struct {
	SessionID string   `cbor:"1,keyasint,omitempty"`
	Users     []string `cbor:"2,keyasint,omitempty"`
	Shortname string   `cbor:"3,keyasint,omitempty"`

	// TestCases lists the requested test case ids or URLs. Empty means all.
	TestCases []string `cbor:"4,keyasint,omitempty"`
}

type TestSuiteStart struct{}

type TestSuiteAbort struct{}

// TestCaseStart starts the current test case, or the given one.
type TestCaseStart struct {
	TestCaseID string `cbor:"1,keyasint,omitempty"`
}

type TestCaseSelect struct {
	TestCaseID string `cbor:"1,keyasint"`
}

// TestCaseSkip skips the given test case, or the current one when empty.
type TestCaseSkip struct {
	TestCaseID string `cbor:"1,keyasint,omitempty"`
}

type TestCaseRestart struct{}

type TestCaseAbort struct{}

// ConfigurationExecuted is sent by an IUT once it configured its node.
type ConfigurationExecuted struct {
	Node       string `cbor:"1,keyasint"`
	IPv6Prefix string `cbor:"2,keyasint,omitempty"`
	IPv6Host   string `cbor:"3,keyasint,omitempty"`
	TestCaseID string `cbor:"4,keyasint,omitempty"`
}

type StimuliExecuted struct {
	StepID string `cbor:"1,keyasint,omitempty"`
	Node   string `cbor:"2,keyasint,omitempty"`
}

type VerifyExecuted struct {
	StepID         string `cbor:"1,keyasint,omitempty"`
	Node           string `cbor:"2,keyasint,omitempty"`
	VerifyResponse bool   `cbor:"3,keyasint"`
}

type CheckExecuted struct {
	StepID         string `cbor:"1,keyasint,omitempty"`
	PartialVerdict string `cbor:"2,keyasint"`
	Description    string `cbor:"3,keyasint,omitempty"`
}

// ComponentReady announces that a testing tool component is up.
type ComponentReady struct {
	Component string `cbor:"1,keyasint"`
	Version   string `cbor:"2,keyasint,omitempty"`
}

type ComponentShutdown struct {
	Component string `cbor:"1,keyasint"`
}

type TestingToolTerminate struct {
	Reason string `cbor:"1,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

type TestingToolReady struct {
	SessionID string `cbor:"1,keyasint,omitempty"`
}

type TestSuiteReady struct {
	TestCases []testsuite.TestCaseInfo `cbor:"1,keyasint"`
}

type TestSuiteConfigured struct {
	SessionID string   `cbor:"1,keyasint,omitempty"`
	TestCases []string `cbor:"2,keyasint,omitempty"`
}

type TestSuiteStarted struct{}

type TestSuiteFinished struct{}

type TestSuiteReport struct {
	SessionID string                 `cbor:"1,keyasint,omitempty"`
	Report    []testsuite.CaseReport `cbor:"2,keyasint"`
}

// TestCaseConfiguration asks one node to configure itself for a test case.
type TestCaseConfiguration struct {
	TestCaseID  string   `cbor:"1,keyasint"`
	ConfigID    string   `cbor:"2,keyasint"`
	Node        string   `cbor:"3,keyasint"`
	Description []string `cbor:"4,keyasint,omitempty"`
}

type TestCaseReady struct {
	TestCaseID  string   `cbor:"1,keyasint"`
	URI         string   `cbor:"2,keyasint,omitempty"`
	Objective   string   `cbor:"3,keyasint,omitempty"`
	Description []string `cbor:"4,keyasint,omitempty"`
}

type TestCaseStarted struct {
	TestCaseID string `cbor:"1,keyasint"`
}

type TestCaseFinished struct {
	TestCaseID string `cbor:"1,keyasint"`
}

type TestCaseVerdict struct {
	TestCaseID    string              `cbor:"1,keyasint"`
	Verdict       verdict.Value       `cbor:"2,keyasint"`
	Description   string              `cbor:"3,keyasint,omitempty"`
	Partials      []testsuite.Partial `cbor:"4,keyasint,omitempty"`
	CaptureDigest string              `cbor:"5,keyasint,omitempty"`
}

type TestCaseAborted struct {
	TestCaseID string `cbor:"1,keyasint"`
}

// StepExecute announces the step to execute. Its kind depends on Type.
type StepExecute struct {
	Type          testsuite.StepType      `cbor:"1,keyasint"`
	StepID        string                  `cbor:"2,keyasint"`
	TestCaseID    string                  `cbor:"3,keyasint"`
	Node          string                  `cbor:"4,keyasint,omitempty"`
	Mode          testsuite.ExecutionMode `cbor:"5,keyasint,omitempty"`
	TargetAddress string                  `cbor:"6,keyasint,omitempty"`
	Description   []string                `cbor:"7,keyasint,omitempty"`
}

// AgentConfigure asks the network agent of a node to bring up its data
// plane interface.
type AgentConfigure struct {
	Node       string `cbor:"1,keyasint"`
	IPv6Prefix string `cbor:"2,keyasint,omitempty"`
	IPv6Host   string `cbor:"3,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

// ReplyStatus is embedded in every reply.
type ReplyStatus struct {
	OK    bool   `cbor:"1,keyasint"`
	Error string `cbor:"2,keyasint,omitempty"`
}

// Result returns the status of a reply.
func (s ReplyStatus) Result() ReplyStatus {
	return s
}

// Reply is implemented by every reply message.
type Reply interface {
	Message
	Result() ReplyStatus
}

// Ack is the reply of requests that return nothing but a status.
type Ack struct {
	ReplyStatus
}

type GetTestCases struct{}

type TestCasesReply struct {
	ReplyStatus
	TestCases []testsuite.TestCaseInfo `cbor:"3,keyasint,omitempty"`
}

type GetStatus struct{}

type StatusReply struct {
	ReplyStatus
	State     string                   `cbor:"3,keyasint,omitempty"`
	SessionID string                   `cbor:"4,keyasint,omitempty"`
	Progress  testsuite.Status         `cbor:"5,keyasint"`
	TestCases []testsuite.TestCaseInfo `cbor:"6,keyasint,omitempty"`
}

type SniffingStart struct {
	CaptureID string `cbor:"1,keyasint"`
	Filter    string `cbor:"2,keyasint,omitempty"`
	LinkID    string `cbor:"3,keyasint,omitempty"`
}

type SniffingStop struct{}

type GetCapture struct {
	CaptureID string `cbor:"1,keyasint"`
}

// CaptureReply carries a capture file as base64.
type CaptureReply struct {
	ReplyStatus
	Filename string `cbor:"3,keyasint,omitempty"`
	Value    string `cbor:"4,keyasint,omitempty"`
}

// AnalyzeTestCase asks the analyzer to check a capture.
type AnalyzeTestCase struct {
	TestCaseID string `cbor:"1,keyasint"`
	Protocol   string `cbor:"2,keyasint,omitempty"`
	Filename   string `cbor:"3,keyasint,omitempty"`
	Value      string `cbor:"4,keyasint"`
}

// AnalysisEntry is one partial verdict returned by the analyzer.
type AnalysisEntry struct {
	Verdict     string `cbor:"1,keyasint"`
	Description string `cbor:"2,keyasint,omitempty"`
}

type AnalysisReply struct {
	ReplyStatus
	TestCaseID string          `cbor:"3,keyasint,omitempty"`
	Partials   []AnalysisEntry `cbor:"4,keyasint,omitempty"`
}
