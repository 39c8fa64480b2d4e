// Package coordinator drives an interoperability test session: it walks the
// test suite case by case and step by step, reacting to control events from
// the bus, and produces the verdict of every test case.
//
// All session state is owned by a single event loop. Bus handlers and timers
// only push events into the loop's mailbox.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("coordinator already started")

// Snapshot is a consistent view of the session, safe to read from any
// goroutine.
type Snapshot struct {
	State     State
	SessionID string
	Progress  testsuite.Status
	TestCases []testsuite.TestCaseInfo

	// Report is set once the test suite is finished.
	Report []testsuite.CaseReport
}

// event is an item of the loop mailbox.
type event interface {
	isEvent()
}

type messageEvent struct {
	env *wire.Envelope
	msg wire.Message
}

func (messageEvent) isEvent() {}

// intent is the test case prepareNextTestCase should go to instead of the
// next one in order.
type intent struct {
	testCaseID string
	restart    bool
}

// Coordinator runs the test session state machine.
type Coordinator struct {
	cfg      Config
	suite    *testsuite.TestSuite
	client   *bus.Client
	sniffer  Sniffer
	analyzer Analyzer
	checker  *version.Checker
	logger   *slog.Logger
	events   log.Logger

	mailbox *bus.Mailbox[event]
	snap    atomic.Pointer[Snapshot]
	started atomic.Bool

	// ctx is set once by Run before any handler is registered.
	ctx context.Context

	// Owned by the event loop.
	state      State
	firing     bool
	queue      []queuedTrigger
	intent     intent
	aborted    *testsuite.TestCase
	report     []testsuite.CaseReport
	ready      map[string]bool
	pending    map[string]bool
	iutTimer   *stateTimer
	readyTimer *stateTimer
	fatal      error
}

// New creates a coordinator for suite, talking over client.
func New(suite *testsuite.TestSuite, client *bus.Client, cfg Config) (*Coordinator, error) {
	cfg.applyDefaults()

	checker, err := version.NewChecker(cfg.VersionConstraint)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		suite:    suite,
		client:   client,
		sniffer:  cfg.Sniffer,
		analyzer: cfg.Analyzer,
		checker:  checker,
		logger:   cfg.Logger.With("component", ComponentName),
		events:   cfg.EventLog,
		mailbox:  bus.NewMailbox[event](),
		ready:    make(map[string]bool),
		ctx:      context.Background(),
	}
	if c.sniffer == nil {
		c.sniffer = NewBusSniffer(client, cfg.SnifferTimeout)
	}
	if c.analyzer == nil {
		c.analyzer = NewBusAnalyzer(client, cfg.AnalyzerTimeout)
	}
	c.iutTimer = newStateTimer("iut_configuration", c.pushTimeout)
	c.readyTimer = newStateTimer("readiness", c.pushTimeout)
	c.updateSnapshot()
	return c, nil
}

// State returns the current state of the state machine.
func (c *Coordinator) State() State {
	return c.snap.Load().State
}

// Snapshot returns the latest view of the session.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Run bootstraps the state machine and processes events until the test
// suite is finished, the testing tool is terminated, the context is done or
// bootstrapping failed.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.ctx = ctx
	defer c.iutTimer.disarm()
	defer c.readyTimer.disarm()

	subs, err := c.subscribe()
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	if err := c.client.Publish(ctx, &wire.ComponentReady{Component: ComponentName, Version: version.Current}); err != nil {
		return err
	}

	if err := c.fire(TriggerBootstrap, params{}); err != nil {
		return err
	}
	c.updateSnapshot()

	for {
		if done, err := c.done(); done {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.mailbox.Notify():
		}

		for {
			ev, ok := c.mailbox.Pop()
			if !ok {
				break
			}
			c.handle(ev)
			c.updateSnapshot()
			if done, err := c.done(); done {
				return err
			}
		}
	}
}

func (c *Coordinator) done() (bool, error) {
	if c.fatal != nil {
		return true, c.fatal
	}
	return c.state.Terminal(), nil
}

func (c *Coordinator) subscribe() ([]bus.Subscription, error) {
	control, err := c.client.Subscribe([]string{"control.#"}, func(env *wire.Envelope, msg wire.Message) {
		c.mailbox.Push(messageEvent{env: env, msg: msg})
	})
	if err != nil {
		return nil, err
	}

	services, err := c.client.Subscribe(serviceRoutes(), c.serveService)
	if err != nil {
		_ = control.Unsubscribe()
		return nil, err
	}
	return []bus.Subscription{control, services}, nil
}

func (c *Coordinator) pushTimeout(ev timeoutEvent) {
	c.mailbox.Push(ev)
}

func (c *Coordinator) handle(ev event) {
	switch ev := ev.(type) {
	case messageEvent:
		c.handleMessage(ev.env, ev.msg)

	case timeoutEvent:
		if !ev.timer.expire(ev.gen) {
			c.logger.Debug("dropping stale timeout", "timer", ev.timer.name)
			return
		}
		switch ev.timer {
		case c.iutTimer:
			c.logger.Warn("IUT configuration timed out, using known addressing",
				"timeout", c.cfg.IUTConfigTimeout)
			if err := c.fire(TriggerIUTConfigurationTimeout, params{}); err != nil {
				c.logger.Warn("timeout ignored", "error", err)
			}
		case c.readyTimer:
			c.readinessTimeout()
		}
	}
}

func (c *Coordinator) publish(msg wire.Message) error {
	return c.client.Publish(c.ctx, msg)
}

// setState moves the state machine to s.
func (c *Coordinator) setState(s State, t Trigger) {
	old := c.state
	c.state = s
	c.logger.Info("state changed", "from", old, "to", s, "trigger", t)
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		Component: ComponentName,
		Direction: log.DirectionNone,
		Category:  log.CategoryState,
		SessionID: c.suite.Session().ID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityCoordinator,
			OldState: old.String(),
			NewState: s.String(),
			Trigger:  t.String(),
		},
	})
	c.updateSnapshot()
}

func (c *Coordinator) setTestCaseState(tc *testsuite.TestCase, s testsuite.TestCaseState) {
	old := tc.State
	tc.SetState(s)
	c.logger.Debug("testcase state changed", "testcase", tc.ID, "from", old, "to", s)
	c.logEntityState(log.StateEntityTestCase, tc.ID, old.String(), s.String())
}

func (c *Coordinator) logEntityState(entity log.StateEntity, id, old, s string) {
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		Component: ComponentName,
		Direction: log.DirectionNone,
		Category:  log.CategoryState,
		SessionID: c.suite.Session().ID,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: s,
			Trigger:  id,
		},
	})
}

func (c *Coordinator) updateSnapshot() {
	c.snap.Store(&Snapshot{
		State:     c.state,
		SessionID: c.suite.Session().ID,
		Progress:  c.suite.Status(),
		TestCases: c.suite.TestCases(),
		Report:    c.report,
	})
}
