package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Client errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAckTimeout       = errors.New("broker did not acknowledge")
)

// ClientConfig configures a broker client.
type ClientConfig struct {
	// MaxMessageSize is the maximum websocket message size.
	MaxMessageSize int64

	// HandshakeTimeout bounds a single dial attempt (default: 10s).
	HandshakeTimeout time.Duration

	// DialAttempts is the number of dial attempts (default: 5).
	DialAttempts int

	// Backoff between dial attempts.
	Backoff BackoffConfig

	// AckTimeout bounds subscribe and unsubscribe round trips (default: 5s).
	AckTimeout time.Duration

	// KeepAlive configuration.
	KeepAlive KeepAliveConfig

	// Logger for operational logs (optional).
	Logger *slog.Logger
}

// Client is a bus.Bus backed by a remote broker.
type Client struct {
	config ClientConfig
	logger *slog.Logger
	ws     *websocket.Conn
	out    *bus.Mailbox[*Frame]
	ka     *keepAlive

	mu      sync.Mutex
	nextSeq uint32
	nextSub uint32
	pending map[uint32]chan *Frame
	subs    map[uint32]*clientSub

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the broker at url, retrying with backoff.
func Dial(ctx context.Context, url string, config ClientConfig) (*Client, error) {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.DialAttempts <= 0 {
		config.DialAttempts = 5
	}
	if config.AckTimeout == 0 {
		config.AckTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	backoff := NewBackoff(config.Backoff)

	var ws *websocket.Conn
	var lastErr error
	for attempt := 0; attempt < config.DialAttempts; attempt++ {
		var err error
		ws, _, err = dialer.DialContext(ctx, url, nil)
		if err == nil {
			break
		}
		lastErr = err
		logger.Debug("dial failed", "url", url, "attempt", attempt+1, "error", err)
		if attempt == config.DialAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff.Next())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("dial %s: %w", url, lastErr)
	}
	ws.SetReadLimit(config.MaxMessageSize)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:  config,
		logger:  logger,
		ws:      ws,
		out:     bus.NewMailbox[*Frame](),
		pending: make(map[uint32]chan *Frame),
		subs:    make(map[uint32]*clientSub),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.ka = newKeepAlive(config.KeepAlive, func(payload []byte) error {
		return ws.WriteControl(websocket.PingMessage, payload, time.Now().Add(time.Second))
	}, func() {
		logger.Warn("broker stopped answering pings", "url", url)
		c.Close()
	})
	ws.SetPongHandler(func(appData string) error {
		c.ka.pongReceived(appData)
		return nil
	})

	go c.readLoop()
	go c.writeLoop()
	go c.ka.run(runCtx)
	return c, nil
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Publish sends env to the broker. Frames leave in call order.
func (c *Client) Publish(ctx context.Context, env *wire.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if c.isClosed() {
		return bus.ErrClosed
	}
	c.out.Push(&Frame{Type: FramePublish, Envelope: env})
	return nil
}

// Subscribe registers h on the broker and returns once the broker
// acknowledged the subscription.
func (c *Client) Subscribe(patterns []string, h bus.Handler) (bus.Subscription, error) {
	if err := bus.ValidatePatterns(patterns); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nextSub++
	s := &clientSub{
		id:      c.nextSub,
		client:  c,
		handler: h,
		box:     bus.NewMailbox[*wire.Envelope](),
		done:    make(chan struct{}),
	}
	c.subs[s.id] = s
	c.mu.Unlock()

	go s.run()

	if err := c.roundTrip(&Frame{Type: FrameSubscribe, SubID: s.id, Patterns: patterns}); err != nil {
		c.drop(s)
		return nil, err
	}
	return s, nil
}

func (c *Client) drop(s *clientSub) {
	c.mu.Lock()
	delete(c.subs, s.id)
	c.mu.Unlock()
	s.stop()
}

// roundTrip sends a frame and waits for its ack.
func (c *Client) roundTrip(f *Frame) error {
	if c.isClosed() {
		return bus.ErrClosed
	}

	ch := make(chan *Frame, 1)
	c.mu.Lock()
	c.nextSeq++
	f.Seq = c.nextSeq
	c.pending[f.Seq] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
	}()

	c.out.Push(f)

	timer := time.NewTimer(c.config.AckTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return bus.ErrClosed
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrAckTimeout, f.Type)
	case ack := <-ch:
		if ack.Error != "" {
			return fmt.Errorf("broker rejected %s: %s", f.Type, ack.Error)
		}
		return nil
	}
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("broker connection lost", "error", err)
			}
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping invalid frame", "error", err)
			continue
		}

		switch f.Type {
		case FrameAck:
			c.mu.Lock()
			ch, ok := c.pending[f.Seq]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case FrameDeliver:
			c.mu.Lock()
			s, ok := c.subs[f.SubID]
			c.mu.Unlock()
			if ok {
				s.box.Push(f.Envelope)
			}
		default:
			c.logger.Warn("unexpected frame from broker", "type", f.Type)
		}
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.out.Notify():
			for {
				f, ok := c.out.Pop()
				if !ok {
					break
				}
				data, err := EncodeFrame(f)
				if err != nil {
					c.logger.Warn("frame encoding failed", "type", f.Type, "error", err)
					continue
				}
				if int64(len(data)) > c.config.MaxMessageSize {
					c.logger.Warn("dropping frame", "type", f.Type, "error", ErrFrameTooLarge, "size", len(data))
					continue
				}
				if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
					c.Close()
					return
				}
			}
		}
	}
}

// Close closes the connection. It is safe to call Close multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[uint32]*clientSub)
		c.mu.Unlock()
		for _, s := range subs {
			s.stop()
		}
	})
	return err
}

// clientSub delivers envelopes of one subscription from its own goroutine,
// so handlers may issue requests without blocking the read loop.
type clientSub struct {
	id      uint32
	client  *Client
	handler bus.Handler
	box     *bus.Mailbox[*wire.Envelope]
	done    chan struct{}
	once    sync.Once
}

func (s *clientSub) run() {
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
				s.handler(env)
			}
		}
	}
}

func (s *clientSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe removes the subscription locally and on the broker.
func (s *clientSub) Unsubscribe() error {
	c := s.client
	c.drop(s)
	if c.isClosed() {
		return nil
	}
	return c.roundTrip(&Frame{Type: FrameUnsubscribe, SubID: s.id})
}

// Compile-time interface satisfaction check.
var _ bus.Bus = (*Client)(nil)
