// Package mock provides fake testing tool components that serve the sniffing
// and analysis requests of the coordinator over the bus.
package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Behavior scripts how a service answers one operation.
type Behavior struct {
	// Delay postpones the reply.
	Delay time.Duration

	// Fail makes the service reply with an error status. Err is the reported
	// error, ErrInjected when nil.
	Fail bool
	Err  error

	// Silent drops the request so that the caller times out.
	Silent bool
}

// Options configures a fake service.
type Options struct {
	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger

	// Version is announced in ComponentReady. Empty uses version.Current.
	Version string
}

type handlerFunc func(env *wire.Envelope, msg wire.Message) (wire.Message, error)

// service is the request loop shared by the fakes.
type service struct {
	name    string
	client  *bus.Client
	logger  *slog.Logger
	version string

	mu        sync.Mutex
	behaviors map[wire.Kind]Behavior
	calls     map[wire.Kind]int
	subs      []bus.Subscription
	ctx       context.Context
	timers    []*time.Timer

	// behaviorOf refines the behavior of a request beyond its kind.
	behaviorOf func(msg wire.Message) (Behavior, bool)
}

func newService(name string, client *bus.Client, opts Options) *service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := opts.Version
	if v == "" {
		v = version.Current
	}
	return &service{
		name:      name,
		client:    client,
		logger:    logger.With("component", name),
		version:   v,
		behaviors: make(map[wire.Kind]Behavior),
		calls:     make(map[wire.Kind]int),
	}
}

// Name returns the component name the service announces.
func (s *service) Name() string {
	return s.name
}

// Script sets the behavior of requests of kind k.
func (s *service) Script(k wire.Kind, b Behavior) {
	s.mu.Lock()
	s.behaviors[k] = b
	s.mu.Unlock()
}

// Calls returns how many requests of kind k were received.
func (s *service) Calls(k wire.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[k]
}

// start subscribes the handlers and announces the component. The service
// announces itself again whenever the coordinator starts, so that it may
// start in any order.
func (s *service) start(ctx context.Context, handlers map[wire.Kind]handlerFunc) error {
	s.mu.Lock()
	if s.subs != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.ctx = ctx
	s.mu.Unlock()

	routes := make([]string, 0, len(handlers))
	for k := range handlers {
		routes = append(routes, k.Route())
	}
	reqSub, err := s.client.Subscribe(routes, func(env *wire.Envelope, msg wire.Message) {
		h, ok := handlers[msg.Kind()]
		if !ok {
			return
		}
		s.serve(env, msg, h)
	})
	if err != nil {
		return err
	}

	readySub, err := s.client.Subscribe([]string{wire.RouteComponentReady}, func(_ *wire.Envelope, msg wire.Message) {
		if m, ok := msg.(*wire.ComponentReady); ok && m.Component == wire.ComponentTestCoordination {
			s.announce()
		}
	})
	if err != nil {
		reqSub.Unsubscribe()
		return err
	}

	s.mu.Lock()
	s.subs = []bus.Subscription{reqSub, readySub}
	s.mu.Unlock()

	s.logger.Info("service started", "routes", routes)
	s.announce()
	return nil
}

func (s *service) announce() {
	err := s.client.Publish(s.ctx, &wire.ComponentReady{Component: s.name, Version: s.version})
	if err != nil {
		s.logger.Warn("failed to announce component", "error", err)
	}
}

// Stop unsubscribes the service and drops pending delayed replies.
func (s *service) Stop() error {
	s.mu.Lock()
	subs := s.subs
	timers := s.timers
	s.subs = nil
	s.timers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *service) serve(env *wire.Envelope, msg wire.Message, h handlerFunc) {
	s.mu.Lock()
	b := s.behaviors[msg.Kind()]
	s.calls[msg.Kind()]++
	s.mu.Unlock()
	if s.behaviorOf != nil {
		if override, ok := s.behaviorOf(msg); ok {
			b = override
		}
	}

	if env.ReplyTo == "" {
		return
	}
	if b.Silent {
		s.logger.Debug("dropping request", "kind", msg.Kind())
		return
	}

	respond := func() {
		if b.Fail {
			err := b.Err
			if err == nil {
				err = ErrInjected
			}
			s.replyError(env, err)
			return
		}
		reply, err := h(env, msg)
		if err != nil {
			s.replyError(env, err)
			return
		}
		if err := s.client.Reply(s.ctx, env, reply); err != nil {
			s.logger.Warn("failed to reply", "kind", msg.Kind(), "error", err)
		}
	}

	if b.Delay <= 0 {
		respond()
		return
	}
	s.mu.Lock()
	s.timers = append(s.timers, time.AfterFunc(b.Delay, respond))
	s.mu.Unlock()
}

func (s *service) replyError(env *wire.Envelope, err error) {
	if rerr := s.client.ReplyError(s.ctx, env, err); rerr != nil {
		s.logger.Warn("failed to reply", "error", rerr)
	}
}

func okStatus() wire.ReplyStatus {
	return wire.ReplyStatus{OK: true}
}
