package coordinator

import "slices"

// State is a state of the coordinator state machine.
type State uint8

const (
	StateNull State = iota
	StateBootstrapping
	StateWaitingForTestSuiteConfig
	StateWaitingForTestSuiteStart
	StatePreparingNextTestCase
	StateWaitingForIUTConfiguration
	StateWaitingForTestCaseStart
	StatePreparingNextStep
	StateWaitingForStepExecuted
	StateTestCaseFinished
	StateTestCaseAborted
	StateTestSuiteFinished

	stateCount
)

var stateNames = [stateCount]string{
	StateNull:                       "null",
	StateBootstrapping:              "bootstrapping",
	StateWaitingForTestSuiteConfig:  "waiting_for_testsuite_config",
	StateWaitingForTestSuiteStart:   "waiting_for_testsuite_start",
	StatePreparingNextTestCase:      "preparing_next_testcase",
	StateWaitingForIUTConfiguration: "waiting_for_iut_configuration_executed",
	StateWaitingForTestCaseStart:    "waiting_for_testcase_start",
	StatePreparingNextStep:          "preparing_next_step",
	StateWaitingForStepExecuted:     "waiting_for_step_executed",
	StateTestCaseFinished:           "testcase_finished",
	StateTestCaseAborted:            "testcase_aborted",
	StateTestSuiteFinished:          "testsuite_finished",
}

// String returns the state name.
func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return "unknown"
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s < stateCount
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateTestSuiteFinished
}

// allStatesExcept returns every state but the given ones, in order.
func allStatesExcept(excluded ...State) []State {
	out := make([]State, 0, stateCount)
	for s := StateNull; s < stateCount; s++ {
		if !slices.Contains(excluded, s) {
			out = append(out, s)
		}
	}
	return out
}
