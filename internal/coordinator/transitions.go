package coordinator

import (
	"fmt"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

// Trigger is an event of the coordinator state machine.
type Trigger uint8

const (
	triggerNone Trigger = iota
	TriggerBootstrap
	TriggerBootstrapComplete
	TriggerConfigureTestSuite
	TriggerStartTestSuite
	TriggerStartConfiguration
	TriggerFinishTestSuite
	TriggerIUTConfigurationExecuted
	TriggerAllIUTConfigurationExecuted
	TriggerIUTConfigurationTimeout
	TriggerStartTestCase
	TriggerStartNextStep
	TriggerStepExecuted
	TriggerFinishTestCase
	TriggerPrepareNextTestCase
	TriggerAbortTestCase
	TriggerSelectTestCase
	TriggerRestartTestCase
	TriggerSkipTestCase
	TriggerAbortTestSuite

	triggerCount
)

var triggerNames = [triggerCount]string{
	triggerNone:                        "none",
	TriggerBootstrap:                   "bootstrap",
	TriggerBootstrapComplete:           "bootstrap_complete",
	TriggerConfigureTestSuite:          "configure_testsuite",
	TriggerStartTestSuite:              "start_testsuite",
	TriggerStartConfiguration:          "start_configuration",
	TriggerFinishTestSuite:             "finish_testsuite",
	TriggerIUTConfigurationExecuted:    "iut_configuration_executed",
	TriggerAllIUTConfigurationExecuted: "all_iut_configuration_executed",
	TriggerIUTConfigurationTimeout:     "iut_configuration_timeout",
	TriggerStartTestCase:               "start_testcase",
	TriggerStartNextStep:               "start_next_step",
	TriggerStepExecuted:                "step_executed",
	TriggerFinishTestCase:              "finish_testcase",
	TriggerPrepareNextTestCase:         "prepare_next_testcase",
	TriggerAbortTestCase:               "abort_testcase",
	TriggerSelectTestCase:              "select_testcase",
	TriggerRestartTestCase:             "restart_testcase",
	TriggerSkipTestCase:                "skip_testcase",
	TriggerAbortTestSuite:              "abort_testsuite",
}

// String returns the trigger name.
func (t Trigger) String() string {
	if t < triggerCount {
		return triggerNames[t]
	}
	return "unknown"
}

// params carries the data of the event that fired a trigger.
type params struct {
	testCaseID string
	session    testsuite.Session
	node       string
	address    testsuite.Address
	step       stepResult
}

// stepResult is the evidence reported for the executing step.
type stepResult struct {
	typ         testsuite.StepType
	stepID      string
	token       string
	description string
	verifyOK    bool
}

type (
	hook      func(c *Coordinator, p *params) error
	condition func(c *Coordinator, p *params) bool
)

// transition is one row of the transition table. Internal transitions run
// their hooks without leaving the source state.
type transition struct {
	trigger    Trigger
	sources    []State
	dest       State
	internal   bool
	conditions []condition
	before     []hook
	after      []hook
}

// stateHooks are run whenever a state is entered or left.
type stateHooks struct {
	onEnter []hook
	onExit  []hook
}

var (
	transitions []transition
	stateTable  [stateCount]stateHooks

	// transitionIndex maps a source state and a trigger to its candidates.
	transitionIndex map[State]map[Trigger][]*transition
)

func init() {
	stateTable = buildStateTable()
	transitions = buildTransitions()
	index, err := indexTransitions(transitions)
	if err != nil {
		panic(err)
	}
	transitionIndex = index
}

func buildStateTable() [stateCount]stateHooks {
	var t [stateCount]stateHooks
	t[StateBootstrapping] = stateHooks{
		onEnter: []hook{(*Coordinator).bootstrap},
		onExit:  []hook{(*Coordinator).publishTestSuiteReady},
	}
	t[StateWaitingForTestSuiteConfig] = stateHooks{
		onExit: []hook{(*Coordinator).publishTestSuiteConfigured},
	}
	t[StateWaitingForTestSuiteStart] = stateHooks{
		onExit: []hook{(*Coordinator).publishTestSuiteStarted},
	}
	t[StatePreparingNextTestCase] = stateHooks{
		onEnter: []hook{(*Coordinator).prepareNextTestCase},
	}
	t[StateWaitingForIUTConfiguration] = stateHooks{
		onEnter: []hook{(*Coordinator).armIUTConfigurationTimer},
		onExit:  []hook{(*Coordinator).disarmIUTConfigurationTimer},
	}
	t[StateWaitingForTestCaseStart] = stateHooks{
		onEnter: []hook{(*Coordinator).notifyTestCaseReady},
	}
	t[StatePreparingNextStep] = stateHooks{
		onEnter: []hook{(*Coordinator).prepareNextStep},
	}
	t[StateWaitingForStepExecuted] = stateHooks{
		onEnter: []hook{(*Coordinator).publishStepExecute},
	}
	t[StateTestCaseFinished] = stateHooks{
		onEnter: []hook{(*Coordinator).finishTestCase},
	}
	t[StateTestCaseAborted] = stateHooks{
		onEnter: []hook{(*Coordinator).notifyTestCaseAborted},
	}
	t[StateTestSuiteFinished] = stateHooks{
		onEnter: []hook{(*Coordinator).finishTestSuite},
	}
	return t
}

func buildTransitions() []transition {
	testCaseStates := []State{
		StateWaitingForIUTConfiguration,
		StateWaitingForTestCaseStart,
		StateWaitingForStepExecuted,
		StateTestCaseFinished,
	}
	skipOtherStates := append([]State{
		StateWaitingForTestSuiteConfig,
		StateWaitingForTestSuiteStart,
	}, testCaseStates...)

	return []transition{
		{
			trigger: TriggerBootstrap,
			sources: []State{StateNull},
			dest:    StateBootstrapping,
		},
		{
			trigger: TriggerBootstrapComplete,
			sources: []State{StateBootstrapping},
			dest:    StateWaitingForTestSuiteConfig,
		},
		{
			trigger: TriggerConfigureTestSuite,
			sources: []State{StateWaitingForTestSuiteConfig},
			dest:    StateWaitingForTestSuiteStart,
			before:  []hook{(*Coordinator).applySessionConfiguration},
		},
		{
			trigger: TriggerStartTestSuite,
			sources: []State{StateWaitingForTestSuiteStart, StateWaitingForTestSuiteConfig},
			dest:    StatePreparingNextTestCase,
			before:  []hook{(*Coordinator).reinitTestSuite, (*Coordinator).configureAgents},
		},
		{
			trigger: TriggerStartConfiguration,
			sources: []State{StatePreparingNextTestCase},
			dest:    StateWaitingForIUTConfiguration,
			before:  []hook{(*Coordinator).resetConfiguredNodes},
			after:   []hook{(*Coordinator).publishTestCaseConfiguration},
		},
		{
			trigger: TriggerFinishTestSuite,
			sources: []State{StatePreparingNextTestCase},
			dest:    StateTestSuiteFinished,
		},
		{
			trigger:  TriggerIUTConfigurationExecuted,
			sources:  allStatesExcept(StateNull, StateTestSuiteFinished),
			internal: true,
			before:   []hook{(*Coordinator).updateNodeAddress},
			after:    []hook{(*Coordinator).checkAllNodesConfigured},
		},
		{
			trigger: TriggerAllIUTConfigurationExecuted,
			sources: []State{StateWaitingForIUTConfiguration},
			dest:    StateWaitingForTestCaseStart,
		},
		{
			trigger: TriggerIUTConfigurationTimeout,
			sources: []State{StateWaitingForIUTConfiguration},
			dest:    StateWaitingForTestCaseStart,
		},
		{
			trigger: TriggerStartTestCase,
			sources: []State{StateWaitingForTestCaseStart, StateWaitingForIUTConfiguration},
			dest:    StatePreparingNextStep,
			before:  []hook{(*Coordinator).startTestCase},
			after:   []hook{(*Coordinator).publishTestCaseStarted},
		},
		{
			trigger: TriggerStartNextStep,
			sources: []State{StatePreparingNextStep},
			dest:    StateWaitingForStepExecuted,
		},
		{
			trigger: TriggerStepExecuted,
			sources: []State{StateWaitingForStepExecuted},
			dest:    StatePreparingNextStep,
			before:  []hook{(*Coordinator).recordStepResult},
		},
		{
			trigger: TriggerFinishTestCase,
			sources: []State{StatePreparingNextStep},
			dest:    StateTestCaseFinished,
		},
		{
			trigger: TriggerPrepareNextTestCase,
			sources: []State{StateTestCaseFinished, StateTestCaseAborted},
			dest:    StatePreparingNextTestCase,
		},
		{
			trigger: TriggerAbortTestCase,
			sources: []State{StateWaitingForIUTConfiguration, StateWaitingForTestCaseStart, StateWaitingForStepExecuted},
			dest:    StateTestCaseAborted,
			before:  []hook{(*Coordinator).abortTestCase},
		},
		{
			trigger: TriggerSelectTestCase,
			sources: testCaseStates,
			dest:    StatePreparingNextTestCase,
			before:  []hook{(*Coordinator).selectTestCase},
		},
		{
			trigger: TriggerRestartTestCase,
			sources: testCaseStates,
			dest:    StatePreparingNextTestCase,
			before:  []hook{(*Coordinator).restartTestCase},
		},
		{
			trigger:    TriggerSkipTestCase,
			sources:    testCaseStates,
			dest:       StatePreparingNextTestCase,
			conditions: []condition{(*Coordinator).skippingCurrent},
			before:     []hook{(*Coordinator).skipCurrentTestCase},
		},
		{
			trigger:    TriggerSkipTestCase,
			sources:    skipOtherStates,
			internal:   true,
			conditions: []condition{not((*Coordinator).skippingCurrent)},
			before:     []hook{(*Coordinator).skipOtherTestCase},
		},
		{
			trigger: TriggerAbortTestSuite,
			sources: allStatesExcept(StateNull, StateBootstrapping, StateTestSuiteFinished),
			dest:    StateTestSuiteFinished,
			before:  []hook{(*Coordinator).abortTestSuite},
		},
	}
}

func not(c condition) condition {
	return func(co *Coordinator, p *params) bool {
		return !c(co, p)
	}
}

// indexTransitions validates the table and indexes it by source state. A
// source state may only have several candidates for one trigger when all of
// them are conditional.
func indexTransitions(table []transition) (map[State]map[Trigger][]*transition, error) {
	index := make(map[State]map[Trigger][]*transition)
	for i := range table {
		tr := &table[i]
		if tr.trigger == triggerNone || tr.trigger >= triggerCount {
			return nil, fmt.Errorf("coordinator: transition %d has unknown trigger %d", i, tr.trigger)
		}
		if len(tr.sources) == 0 {
			return nil, fmt.Errorf("coordinator: transition %s has no source state", tr.trigger)
		}
		if !tr.internal && !tr.dest.Valid() {
			return nil, fmt.Errorf("coordinator: transition %s has unknown destination %d", tr.trigger, tr.dest)
		}
		for _, src := range tr.sources {
			if !src.Valid() {
				return nil, fmt.Errorf("coordinator: transition %s has unknown source %d", tr.trigger, src)
			}
			if src.Terminal() {
				return nil, fmt.Errorf("coordinator: transition %s leaves terminal state %s", tr.trigger, src)
			}
			if index[src] == nil {
				index[src] = make(map[Trigger][]*transition)
			}
			index[src][tr.trigger] = append(index[src][tr.trigger], tr)
		}
	}

	for src, byTrigger := range index {
		for trig, candidates := range byTrigger {
			if len(candidates) < 2 {
				continue
			}
			for _, tr := range candidates {
				if len(tr.conditions) == 0 {
					return nil, fmt.Errorf("coordinator: ambiguous transitions for %s from %s", trig, src)
				}
			}
		}
	}
	return index, nil
}

// lookup returns the first candidate transition whose conditions hold.
func (c *Coordinator) lookup(t Trigger, p *params) *transition {
	for _, tr := range transitionIndex[c.state][t] {
		ok := true
		for _, cond := range tr.conditions {
			if !cond(c, p) {
				ok = false
				break
			}
		}
		if ok {
			return tr
		}
	}
	return nil
}

// queuedTrigger is a trigger fired from a hook.
type queuedTrigger struct {
	trigger Trigger
	params  params
}

// fire runs trigger t. Triggers fired while a transition is running are
// queued and run, in order, once it completed.
func (c *Coordinator) fire(t Trigger, p params) error {
	if c.firing {
		c.queue = append(c.queue, queuedTrigger{trigger: t, params: p})
		return nil
	}

	c.firing = true
	defer func() { c.firing = false }()

	err := c.transition(t, &p)
	for len(c.queue) > 0 {
		q := c.queue[0]
		c.queue = c.queue[1:]
		if qerr := c.transition(q.trigger, &q.params); qerr != nil {
			c.logger.Error("queued trigger failed", "trigger", q.trigger, "state", c.state, "error", qerr)
		}
	}
	return err
}

func (c *Coordinator) transition(t Trigger, p *params) error {
	src := c.state
	tr := c.lookup(t, p)
	if tr == nil {
		return &TransitionError{Trigger: t, State: src}
	}

	for _, h := range tr.before {
		if err := h(c, p); err != nil {
			return err
		}
	}

	if !tr.internal {
		c.runHooks("on_exit", src, stateTable[src].onExit, p)
		c.setState(tr.dest, t)
		c.runHooks("on_enter", tr.dest, stateTable[tr.dest].onEnter, p)
	}

	for _, h := range tr.after {
		if err := h(c, p); err != nil {
			c.logger.Error("after hook failed", "trigger", t, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) runHooks(kind string, s State, hooks []hook, p *params) {
	for _, h := range hooks {
		if err := h(c, p); err != nil {
			c.logger.Error("state hook failed", "hook", kind, "state", s, "error", err)
		}
	}
}
