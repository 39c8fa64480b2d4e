package coordinator

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// serviceHandler answers a service request from a session snapshot. It runs
// on the bus goroutine and never touches loop state.
type serviceHandler func(s *Snapshot) wire.Message

var serviceHandlers = map[string]serviceHandler{
	wire.RouteGetTestCases: func(s *Snapshot) wire.Message {
		return &wire.TestCasesReply{
			ReplyStatus: wire.ReplyStatus{OK: true},
			TestCases:   s.TestCases,
		}
	},
	wire.RouteGetStatus: func(s *Snapshot) wire.Message {
		return &wire.StatusReply{
			ReplyStatus: wire.ReplyStatus{OK: true},
			State:       s.State.String(),
			SessionID:   s.SessionID,
			Progress:    s.Progress,
			TestCases:   s.TestCases,
		}
	},
}

func serviceRoutes() []string {
	return slices.Sorted(maps.Keys(serviceHandlers))
}

func (c *Coordinator) serveService(env *wire.Envelope, msg wire.Message) {
	if env.ReplyTo == "" {
		c.logger.Debug("service request without reply-to", "routing_key", env.RoutingKey)
		return
	}

	h, ok := serviceHandlers[env.RoutingKey]
	if !ok {
		err := fmt.Errorf("unsupported service %s", msg.Kind())
		if rerr := c.client.ReplyError(c.ctx, env, err); rerr != nil {
			c.logger.Warn("reply not sent", "routing_key", env.RoutingKey, "error", rerr)
		}
		return
	}
	if err := c.client.Reply(c.ctx, env, h(c.snap.Load())); err != nil {
		c.logger.Warn("reply not sent", "routing_key", env.RoutingKey, "error", err)
	}
}
