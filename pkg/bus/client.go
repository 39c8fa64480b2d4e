package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// DefaultRequestTimeout is used by Request when neither the call nor the
// client sets a timeout.
const DefaultRequestTimeout = 10 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	// Source is stamped on published envelopes and used as the component
	// name of event log entries.
	Source string

	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger

	// EventLog records every published and delivered envelope.
	EventLog log.Logger

	// RequestTimeout is the default Request timeout.
	RequestTimeout time.Duration
}

// RequestOptions tunes a single Request.
type RequestOptions struct {
	// Timeout per attempt. Zero uses the client default.
	Timeout time.Duration

	// Retries is the number of extra attempts after a timeout.
	Retries int

	// Backoff is the delay before the first retry. It doubles per retry.
	Backoff time.Duration

	// RoutingKey overrides the default route of the request kind.
	RoutingKey string
}

// MessageHandler receives decoded messages.
type MessageHandler func(env *wire.Envelope, msg wire.Message)

// Client adds typed messages and request/reply on top of a Bus.
type Client struct {
	bus     Bus
	source  string
	logger  *slog.Logger
	events  log.Logger
	timeout time.Duration

	mu        sync.Mutex
	sessionID string
}

// NewClient wraps b.
func NewClient(b Bus, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		bus:     b,
		source:  opts.Source,
		logger:  logger.With("component", opts.Source),
		events:  log.OrNoop(opts.EventLog),
		timeout: timeout,
	}
}

// Bus returns the underlying bus.
func (c *Client) Bus() Bus {
	return c.bus
}

// Source returns the component name of the client.
func (c *Client) Source() string {
	return c.source
}

// SetSessionID stamps subsequent event log entries with id.
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) logEnvelope(dir log.Direction, env *wire.Envelope) {
	e := log.NewMessageEvent(c.source, dir, env)
	c.mu.Lock()
	e.SessionID = c.sessionID
	c.mu.Unlock()
	c.events.Log(e)
}

// Publish sends msg under its default routing key.
func (c *Client) Publish(ctx context.Context, msg wire.Message) error {
	env, err := wire.NewEnvelope(msg)
	if err != nil {
		return err
	}
	return c.PublishEnvelope(ctx, env)
}

// PublishEnvelope stamps and sends a prepared envelope.
func (c *Client) PublishEnvelope(ctx context.Context, env *wire.Envelope) error {
	if env.Source == "" {
		env.Source = c.source
	}
	if err := c.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", env.RoutingKey, err)
	}
	c.logEnvelope(log.DirectionOut, env)
	return nil
}

// Subscribe delivers decoded messages matching patterns to h. Envelopes that
// fail to decode are logged and dropped.
func (c *Client) Subscribe(patterns []string, h MessageHandler) (Subscription, error) {
	return c.bus.Subscribe(patterns, func(env *wire.Envelope) {
		c.logEnvelope(log.DirectionIn, env)
		msg, err := env.Decode()
		if err != nil {
			c.logger.Warn("dropping undecodable message",
				"routing_key", env.RoutingKey, "error", err)
			return
		}
		h(env, msg)
	})
}

// Reply answers req with msg.
func (c *Client) Reply(ctx context.Context, req *wire.Envelope, msg wire.Message) error {
	env, err := wire.NewReply(req, msg)
	if err != nil {
		return err
	}
	return c.PublishEnvelope(ctx, env)
}

// ReplyError answers req with an Ack carrying err.
func (c *Client) ReplyError(ctx context.Context, req *wire.Envelope, err error) error {
	return c.Reply(ctx, req, &wire.Ack{ReplyStatus: wire.ReplyStatus{OK: false, Error: err.Error()}})
}

// Request publishes msg and waits for its reply. Replies with an error status
// are returned as *ServiceError, timeouts as *TimeoutError.
func (c *Client) Request(ctx context.Context, msg wire.Message, opts RequestOptions) (wire.Message, error) {
	if msg == nil {
		return nil, wire.ErrNilMessage
	}
	key := opts.RoutingKey
	if key == "" {
		key = msg.Kind().Route()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var reply wire.Message
	err := retryWithBackoff(ctx, RetryConfig{
		MaxAttempts: opts.Retries + 1,
		BaseDelay:   opts.Backoff,
	}, func() error {
		var err error
		reply, err = c.requestOnce(ctx, key, msg, timeout)
		return err
	})
	if err != nil {
		return nil, err
	}

	if r, ok := reply.(wire.Reply); ok {
		if st := r.Result(); !st.OK {
			return nil, &ServiceError{RoutingKey: key, Message: st.Error}
		}
	}
	return reply, nil
}

func (c *Client) requestOnce(ctx context.Context, key string, msg wire.Message, timeout time.Duration) (wire.Message, error) {
	env, err := wire.NewEnvelopeWithKey(key, msg)
	if err != nil {
		return nil, err
	}
	env.CorrelationID = uuid.NewString()
	env.ReplyTo = wire.ReplyRoute(key)

	replyCh := make(chan *wire.Envelope, 1)
	sub, err := c.bus.Subscribe([]string{env.ReplyTo}, func(r *wire.Envelope) {
		if r.CorrelationID != env.CorrelationID {
			return
		}
		select {
		case replyCh <- r:
		default:
			// Duplicate reply
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", env.ReplyTo, err)
	}
	defer sub.Unsubscribe()

	if err := c.PublishEnvelope(ctx, env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		c.logger.Warn("request timed out", "routing_key", key, "timeout", timeout)
		return nil, &TimeoutError{RoutingKey: key, Timeout: timeout}
	case r := <-replyCh:
		c.logEnvelope(log.DirectionIn, r)
		reply, err := r.Decode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
		}
		if !reply.Kind().IsReply() {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Kind())
		}
		return reply, nil
	}
}

// Close closes the underlying bus.
func (c *Client) Close() error {
	return c.bus.Close()
}
