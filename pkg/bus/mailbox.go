package bus

import "sync"

// Mailbox is an unbounded FIFO queue. Push never blocks, so bus handlers can
// hand work to a single consumer goroutine without stalling delivery.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Push appends v.
func (m *Mailbox[T]) Push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that receives after Push. One notification may
// cover several items; consumers drain with Pop until it reports false.
func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.notify
}

// Pop removes and returns the oldest item.
func (m *Mailbox[T]) Pop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	v := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	return v, true
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
