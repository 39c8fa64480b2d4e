// Package console provides the interactive operator console of a test
// session.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/fsismondi/ioppytest-sub000/internal/reporter"
	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Name is the component name of the console.
const Name = "session-console"

// ErrNoPendingStep is returned when a step answer has no step to answer.
var ErrNoPendingStep = errors.New("no step waiting for an answer")

// Session is the session the console configures.
type Session struct {
	ID        string
	Users     []string
	Shortname string
}

// Console sends the operator's commands to the coordinator and prints the
// session notifications.
type Console struct {
	client  *bus.Client
	session Session
	timeout time.Duration

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	stimuli *wire.StepExecute
	verify  *wire.StepExecute
	check   *wire.StepExecute
	report  *wire.TestSuiteReport
}

// New creates a console for session writing to out.
func New(client *bus.Client, session Session, out io.Writer) *Console {
	return &Console{
		client:  client,
		session: session,
		timeout: bus.DefaultRequestTimeout,
		out:     out,
	}
}

// SetTimeout sets the timeout of requests to the coordinator.
func (c *Console) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Watch prints the session notifications until the subscription is
// cancelled.
func (c *Console) Watch() (bus.Subscription, error) {
	return c.client.Subscribe([]string{"event.#"}, func(_ *wire.Envelope, msg wire.Message) {
		c.notify(msg)
	})
}

func (c *Console) notify(msg wire.Message) {
	switch m := msg.(type) {
	case *wire.TestingToolReady:
		c.printf("* testing tool ready, type 'configure' to set the session up\n")
	case *wire.TestSuiteReady:
		c.printf("* test suite ready: %d test cases\n", len(m.TestCases))
	case *wire.TestSuiteConfigured:
		c.printf("* session %s configured, type 'start' to start the test suite\n", m.SessionID)
	case *wire.TestSuiteStarted:
		c.printf("* test suite started\n")
	case *wire.TestCaseConfiguration:
		c.printf("* [%s] configure node %s (%s)\n", m.TestCaseID, m.Node, m.ConfigID)
		c.printLines(m.Description)
	case *wire.TestCaseReady:
		c.printf("* [%s] ready: %s\n", m.TestCaseID, m.Objective)
		c.printf("  type 'go' to start it or 'skip' to skip it\n")
	case *wire.TestCaseStarted:
		c.printf("* [%s] started\n", m.TestCaseID)
	case *wire.StepExecute:
		c.stepExecute(m)
	case *wire.TestCaseVerdict:
		c.clearSteps()
		c.printf("* [%s] verdict: %s", m.TestCaseID, m.Verdict)
		if m.Description != "" {
			c.printf(" (%s)", m.Description)
		}
		c.printf("\n")
	case *wire.TestCaseAborted:
		c.clearSteps()
		c.printf("* [%s] aborted\n", m.TestCaseID)
	case *wire.TestSuiteFinished:
		c.printf("* test suite finished\n")
	case *wire.TestSuiteReport:
		c.mu.Lock()
		c.report = m
		c.mu.Unlock()
		c.printf("* session report received, type 'report' to show it\n")
	}
}

func (c *Console) printLines(lines []string) {
	for _, l := range lines {
		c.printf("    %s\n", l)
	}
}

func (c *Console) stepExecute(m *wire.StepExecute) {
	c.printf("* [%s] %s step %s", m.TestCaseID, m.Type, m.StepID)
	if m.Node != "" {
		c.printf(" on %s", m.Node)
	}
	if m.TargetAddress != "" {
		c.printf(" (target %s)", m.TargetAddress)
	}
	c.printf("\n")
	c.printLines(m.Description)

	if m.Mode == testsuite.Automated {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch m.Type {
	case testsuite.StepStimuli:
		c.stimuli = m
		c.printf("  type 'done' once executed\n")
	case testsuite.StepVerify:
		c.verify = m
		c.printf("  type 'yes' or 'no' to answer\n")
	case testsuite.StepCheck:
		c.check = m
		c.printf("  type 'check <pass|inconclusive|fail> [description]' to answer\n")
	}
}

func (c *Console) clearSteps() {
	c.mu.Lock()
	c.stimuli, c.verify, c.check = nil, nil, nil
	c.mu.Unlock()
}

// takeStep returns and clears the pending step of type t.
func (c *Console) takeStep(t testsuite.StepType) (*wire.StepExecute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var step *wire.StepExecute
	switch t {
	case testsuite.StepStimuli:
		step, c.stimuli = c.stimuli, nil
	case testsuite.StepVerify:
		step, c.verify = c.verify, nil
	case testsuite.StepCheck:
		step, c.check = c.check, nil
	}
	if step == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingStep, t)
	}
	return step, nil
}

// Execute runs one command line. It returns true when the operator quits.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "configure", "conf":
		err = c.send(ctx, &wire.SessionConfiguration{
			SessionID: c.session.ID,
			Users:     c.session.Users,
			Shortname: c.session.Shortname,
			TestCases: args,
		})
	case "start":
		err = c.send(ctx, &wire.TestSuiteStart{})
	case "go":
		err = c.send(ctx, &wire.TestCaseStart{TestCaseID: optionalArg(args)})
	case "skip":
		err = c.send(ctx, &wire.TestCaseSkip{TestCaseID: optionalArg(args)})
	case "select", "sel":
		if len(args) != 1 {
			err = errors.New("usage: select <testcase>")
			break
		}
		err = c.send(ctx, &wire.TestCaseSelect{TestCaseID: args[0]})
	case "restart":
		err = c.send(ctx, &wire.TestCaseRestart{})
	case "abort":
		err = c.send(ctx, &wire.TestCaseAbort{})
	case "abort-suite":
		err = c.send(ctx, &wire.TestSuiteAbort{})
	case "configured":
		err = c.cmdConfigured(ctx, args)
	case "done":
		err = c.cmdDone(ctx)
	case "yes", "y":
		err = c.cmdVerify(ctx, true)
	case "no", "n":
		err = c.cmdVerify(ctx, false)
	case "check":
		err = c.cmdCheck(ctx, args)
	case "status", "st":
		err = c.cmdStatus(ctx)
	case "testcases", "ls":
		err = c.cmdTestCases(ctx)
	case "report":
		c.cmdReport()
	case "terminate":
		err = c.client.Publish(ctx, &wire.TestingToolTerminate{Reason: strings.Join(args, " ")})
	case "quit", "exit", "q":
		return true
	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		c.printf("Error: %v\n", err)
	}
	return false
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// send delivers a control event and waits for the coordinator to accept it.
func (c *Console) send(ctx context.Context, msg wire.Message) error {
	_, err := c.client.Request(ctx, msg, bus.RequestOptions{Timeout: c.timeout})
	if err != nil {
		return err
	}
	c.printf("ok\n")
	return nil
}

func (c *Console) cmdConfigured(ctx context.Context, args []string) error {
	if len(args) != 1 && len(args) != 3 {
		return errors.New("usage: configured <node> [<ipv6-prefix> <ipv6-host>]")
	}
	msg := &wire.ConfigurationExecuted{Node: args[0]}
	if len(args) == 3 {
		msg.IPv6Prefix, msg.IPv6Host = args[1], args[2]
	}
	return c.send(ctx, msg)
}

func (c *Console) cmdDone(ctx context.Context) error {
	step, err := c.takeStep(testsuite.StepStimuli)
	if err != nil {
		return err
	}
	return c.send(ctx, &wire.StimuliExecuted{StepID: step.StepID, Node: step.Node})
}

func (c *Console) cmdVerify(ctx context.Context, ok bool) error {
	step, err := c.takeStep(testsuite.StepVerify)
	if err != nil {
		return err
	}
	return c.send(ctx, &wire.VerifyExecuted{StepID: step.StepID, Node: step.Node, VerifyResponse: ok})
}

func (c *Console) cmdCheck(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: check <pass|inconclusive|fail> [description]")
	}
	v, err := verdict.Parse(args[0])
	if err != nil {
		return err
	}
	step, err := c.takeStep(testsuite.StepCheck)
	if err != nil {
		return err
	}
	return c.send(ctx, &wire.CheckExecuted{
		StepID:         step.StepID,
		PartialVerdict: v.String(),
		Description:    strings.Join(args[1:], " "),
	})
}

func (c *Console) cmdStatus(ctx context.Context) error {
	reply, err := c.client.Request(ctx, &wire.GetStatus{}, bus.RequestOptions{Timeout: c.timeout})
	if err != nil {
		return err
	}
	st, ok := reply.(*wire.StatusReply)
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrUnexpectedReply, reply.Kind())
	}
	c.printf("State:    %s\n", st.State)
	if st.SessionID != "" {
		c.printf("Session:  %s\n", st.SessionID)
	}
	p := st.Progress
	if p.TestCaseID != "" {
		c.printf("TestCase: %s (%s)\n", p.TestCaseID, p.TestCaseState)
	}
	if p.StepID != "" {
		c.printf("Step:     %s %s (%s)\n", p.StepType, p.StepID, p.StepState)
	}
	return nil
}

func (c *Console) cmdTestCases(ctx context.Context) error {
	reply, err := c.client.Request(ctx, &wire.GetTestCases{}, bus.RequestOptions{Timeout: c.timeout})
	if err != nil {
		return err
	}
	tc, ok := reply.(*wire.TestCasesReply)
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrUnexpectedReply, reply.Kind())
	}
	for _, info := range tc.TestCases {
		c.printf("  %-24s %-12s %s\n", info.ID, info.State, info.Objective)
	}
	return nil
}

func (c *Console) cmdReport() {
	c.mu.Lock()
	report := c.report
	c.mu.Unlock()
	if report == nil {
		c.printf("No session report yet\n")
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	reporter.NewTextReporter(c.out, true).ReportSession(&reporter.SessionResult{
		Session: testsuite.Session{ID: report.SessionID, Shortname: c.session.Shortname, Users: c.session.Users},
		Reports: report.Report,
	})
}

func (c *Console) printHelp() {
	c.printf(`
Session Console Commands:
  Session:
    configure [testcase ...]  - Configure the session (all test cases when none given)
    start                     - Start the test suite
    abort-suite               - Abort the test suite
    terminate [reason]        - Terminate the testing tool

  Test Cases:
    go [testcase]             - Start the current (or given) test case
    skip [testcase]           - Skip the current (or given) test case
    select <testcase>         - Select the next test case
    restart                   - Restart the current test case
    abort                     - Abort the current test case

  Steps:
    configured <node> [prefix host] - Report a node as configured
    done                      - Confirm the pending stimuli
    yes | no                  - Answer the pending verify step
    check <verdict> [text]    - Answer the pending check step

  Information:
    status                    - Show the session status
    testcases                 - List the test cases
    report                    - Show the session report
    help                      - Show this help
    quit                      - Exit the console
`)
}

// Run reads commands from rl until the operator quits, input ends or ctx is
// done.
func (c *Console) Run(ctx context.Context, rl *readline.Instance) {
	c.printHelp()
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			c.printf("Exiting...\n")
			return
		}
		if c.Execute(ctx, strings.TrimSpace(line)) {
			c.printf("Exiting...\n")
			return
		}
	}
}
