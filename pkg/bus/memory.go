package bus

import (
	"context"
	"sync"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Memory is an in-process Bus. Each subscription has its own mailbox and
// delivery goroutine, so a slow handler never blocks publishers or other
// subscribers.
type Memory struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

type memorySub struct {
	bus      *Memory
	patterns []string
	handler  Handler
	box      *Mailbox[*wire.Envelope]
	done     chan struct{}
	once     sync.Once
}

// Publish routes env to all matching subscriptions.
func (m *Memory) Publish(ctx context.Context, env *wire.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for s := range m.subs {
		if Matches(s.patterns, env.RoutingKey) {
			s.box.Push(env)
		}
	}
	return nil
}

// Subscribe registers h for patterns.
func (m *Memory) Subscribe(patterns []string, h Handler) (Subscription, error) {
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	s := &memorySub{
		bus:      m,
		patterns: append([]string(nil), patterns...),
		handler:  h,
		box:      NewMailbox[*wire.Envelope](),
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	go s.run()
	return s, nil
}

// SubscriptionCount returns the number of active subscriptions.
func (m *Memory) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close stops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[*memorySub]struct{})
	m.mu.Unlock()

	for s := range subs {
		s.stop()
	}
	return nil
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.box.Notify():
			for {
				env, ok := s.box.Pop()
				if !ok {
					break
				}
				select {
				case <-s.done:
					return
				default:
				}
				s.handler(env)
			}
		}
	}
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe removes the subscription. Queued envelopes are dropped.
func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

// Compile-time interface satisfaction check.
var _ Bus = (*Memory)(nil)
