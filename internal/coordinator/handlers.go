package coordinator

import (
	"errors"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// controlHandler turns a control event into triggers.
type controlHandler func(c *Coordinator, msg wire.Message) error

var controlHandlers = map[wire.Kind]controlHandler{
	wire.KindSessionConfiguration: func(c *Coordinator, msg wire.Message) error {
		m := msg.(*wire.SessionConfiguration)
		return c.fire(TriggerConfigureTestSuite, params{session: testsuite.Session{
			ID:        m.SessionID,
			Users:     m.Users,
			Shortname: m.Shortname,
			TestCases: m.TestCases,
		}})
	},
	wire.KindTestSuiteStart: func(c *Coordinator, _ wire.Message) error {
		return c.fire(TriggerStartTestSuite, params{})
	},
	wire.KindTestSuiteAbort: func(c *Coordinator, _ wire.Message) error {
		return c.fire(TriggerAbortTestSuite, params{})
	},
	wire.KindTestCaseStart: func(c *Coordinator, msg wire.Message) error {
		return c.startRequested(msg.(*wire.TestCaseStart).TestCaseID)
	},
	wire.KindTestCaseSelect: func(c *Coordinator, msg wire.Message) error {
		return c.fire(TriggerSelectTestCase, params{testCaseID: msg.(*wire.TestCaseSelect).TestCaseID})
	},
	wire.KindTestCaseSkip: func(c *Coordinator, msg wire.Message) error {
		return c.fire(TriggerSkipTestCase, params{testCaseID: msg.(*wire.TestCaseSkip).TestCaseID})
	},
	wire.KindTestCaseRestart: func(c *Coordinator, _ wire.Message) error {
		return c.fire(TriggerRestartTestCase, params{})
	},
	wire.KindTestCaseAbort: func(c *Coordinator, _ wire.Message) error {
		return c.fire(TriggerAbortTestCase, params{})
	},
	wire.KindConfigurationExecuted: func(c *Coordinator, msg wire.Message) error {
		m := msg.(*wire.ConfigurationExecuted)
		return c.fire(TriggerIUTConfigurationExecuted, params{
			testCaseID: m.TestCaseID,
			node:       m.Node,
			address:    testsuite.Address{Prefix: m.IPv6Prefix, Host: m.IPv6Host},
		})
	},
	wire.KindStimuliExecuted: func(c *Coordinator, msg wire.Message) error {
		m := msg.(*wire.StimuliExecuted)
		return c.fire(TriggerStepExecuted, params{step: stepResult{typ: testsuite.StepStimuli, stepID: m.StepID}})
	},
	wire.KindVerifyExecuted: func(c *Coordinator, msg wire.Message) error {
		m := msg.(*wire.VerifyExecuted)
		return c.fire(TriggerStepExecuted, params{step: stepResult{
			typ:      testsuite.StepVerify,
			stepID:   m.StepID,
			verifyOK: m.VerifyResponse,
		}})
	},
	wire.KindCheckExecuted: func(c *Coordinator, msg wire.Message) error {
		m := msg.(*wire.CheckExecuted)
		return c.fire(TriggerStepExecuted, params{step: stepResult{
			typ:         testsuite.StepCheck,
			stepID:      m.StepID,
			token:       m.PartialVerdict,
			description: m.Description,
		}})
	},
	wire.KindComponentReady: func(c *Coordinator, msg wire.Message) error {
		return c.componentReady(msg.(*wire.ComponentReady))
	},
	wire.KindComponentShutdown: func(c *Coordinator, msg wire.Message) error {
		c.logger.Info("component shut down", "name", msg.(*wire.ComponentShutdown).Component)
		return nil
	},
	wire.KindTestingToolTerminate: func(c *Coordinator, msg wire.Message) error {
		return c.terminate(msg.(*wire.TestingToolTerminate).Reason)
	},
}

// startRequested starts the requested test case, selecting it first when it
// is not the current one.
func (c *Coordinator) startRequested(ref string) error {
	if ref != "" {
		id := testsuite.NormalizeTestCaseID(ref)
		if cur := c.suite.CurrentTestCase(); cur == nil || cur.ID != id {
			if err := c.fire(TriggerSelectTestCase, params{testCaseID: ref}); err != nil {
				return err
			}
		}
	}
	return c.fire(TriggerStartTestCase, params{})
}

// terminate finishes the session with whatever was run so far.
func (c *Coordinator) terminate(reason string) error {
	c.logger.Warn("testing tool terminated", "reason", reason)
	switch {
	case c.state.Terminal():
		return nil
	case c.state == StateNull || c.state == StateBootstrapping:
		c.fatal = ErrTerminated
		return nil
	}
	return c.fire(TriggerAbortTestSuite, params{})
}

func (c *Coordinator) handleMessage(env *wire.Envelope, msg wire.Message) {
	h, ok := controlHandlers[msg.Kind()]
	if !ok {
		c.logger.Debug("ignoring control message", "kind", msg.Kind(), "routing_key", env.RoutingKey)
		return
	}

	if err := h(c, msg); err != nil {
		c.handleError(env, msg, err)
		return
	}
	if env.ReplyTo != "" {
		if err := c.client.Reply(c.ctx, env, &wire.Ack{ReplyStatus: wire.ReplyStatus{OK: true}}); err != nil {
			c.logger.Warn("reply not sent", "kind", msg.Kind(), "error", err)
		}
	}
}

// handleError logs a rejected control event and answers it when a reply is
// expected. The state machine is unchanged.
func (c *Coordinator) handleError(env *wire.Envelope, msg wire.Message, err error) {
	var te *TransitionError
	switch {
	case errors.As(err, &te) && c.state == StateWaitingForTestCaseStart:
		c.logger.Debug("event ignored", "kind", msg.Kind(), "error", err)
	case errors.As(err, &te):
		c.logger.Warn("event ignored", "kind", msg.Kind(), "error", err)
	default:
		c.logger.Warn("event rejected", "kind", msg.Kind(), "error", err)
	}

	c.events.Log(log.Event{
		Timestamp: env.Timestamp,
		Component: ComponentName,
		Direction: log.DirectionNone,
		Category:  log.CategoryError,
		SessionID: c.suite.Session().ID,
		Error: &log.ErrorEventData{
			Message: err.Error(),
			Context: env.RoutingKey,
		},
	})

	if env.ReplyTo != "" {
		if rerr := c.client.ReplyError(c.ctx, env, err); rerr != nil {
			c.logger.Warn("reply not sent", "kind", msg.Kind(), "error", rerr)
		}
	}
}
