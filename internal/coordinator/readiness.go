package coordinator

import (
	"maps"
	"slices"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// bootstrap waits for the configured components to announce themselves.
func (c *Coordinator) bootstrap(_ *params) error {
	if !c.cfg.ComponentChecks || len(c.cfg.Components) == 0 {
		c.logger.Info("skipping component readiness checks")
		return c.fire(TriggerBootstrapComplete, params{})
	}

	c.pending = make(map[string]bool, len(c.cfg.Components))
	for _, name := range c.cfg.Components {
		if !c.ready[name] {
			c.pending[name] = true
		}
	}
	if len(c.pending) == 0 {
		return c.fire(TriggerBootstrapComplete, params{})
	}

	c.logger.Info("waiting for components", "components", c.pendingComponents(), "timeout", c.cfg.ReadinessTimeout)
	c.readyTimer.arm(c.cfg.ReadinessTimeout)
	return nil
}

// componentReady records a ready signal. An incompatible component during
// bootstrap is fatal.
func (c *Coordinator) componentReady(m *wire.ComponentReady) error {
	if m.Component == ComponentName {
		return nil
	}
	if err := c.checker.Check(m.Component, m.Version); err != nil {
		err = coordinationError("component ready", err)
		if c.state == StateBootstrapping {
			c.fatal = err
		}
		return err
	}

	c.ready[m.Component] = true
	c.logger.Info("component ready", "name", m.Component, "version", m.Version)

	if c.state != StateBootstrapping || !c.pending[m.Component] {
		return nil
	}
	delete(c.pending, m.Component)
	if len(c.pending) > 0 {
		return nil
	}
	c.readyTimer.disarm()
	return c.fire(TriggerBootstrapComplete, params{})
}

func (c *Coordinator) readinessTimeout() {
	if c.state != StateBootstrapping {
		return
	}
	err := &ReadinessError{Missing: c.pendingComponents(), Timeout: c.cfg.ReadinessTimeout}
	c.logger.Error("components not ready", "error", err)
	c.fatal = err
}

func (c *Coordinator) pendingComponents() []string {
	return slices.Sorted(maps.Keys(c.pending))
}

// publishTestSuiteReady announces the testing tool and its test cases.
func (c *Coordinator) publishTestSuiteReady(_ *params) error {
	if err := c.publish(&wire.TestingToolReady{SessionID: c.suite.Session().ID}); err != nil {
		return err
	}
	return c.publish(&wire.TestSuiteReady{TestCases: c.suite.TestCases()})
}
