package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Bus errors.
var (
	ErrClosed          = errors.New("bus is closed")
	ErrRequestTimeout  = errors.New("request timed out")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrNoPatterns      = errors.New("no subscription patterns")
)

// Handler receives delivered envelopes. Envelopes are shared between
// subscribers and must not be modified.
type Handler func(env *wire.Envelope)

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is a topic exchange.
type Bus interface {
	// Publish routes env to every subscription with a matching pattern.
	Publish(ctx context.Context, env *wire.Envelope) error

	// Subscribe registers h for the given patterns. Deliveries to one
	// subscription are sequential and in publish order. The subscription is
	// active when Subscribe returns.
	Subscribe(patterns []string, h Handler) (Subscription, error)

	// Close releases the bus. Publish and Subscribe fail with ErrClosed
	// afterwards.
	Close() error
}

// TimeoutError is returned when a request got no reply in time.
type TimeoutError struct {
	RoutingKey string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s", e.RoutingKey, e.Timeout)
}

// Is makes errors.Is(err, ErrRequestTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// ServiceError is returned when a service replied with an error status.
type ServiceError struct {
	RoutingKey string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: service error", e.RoutingKey)
	}
	return fmt.Sprintf("%s: %s", e.RoutingKey, e.Message)
}

// ValidatePatterns checks a subscription pattern list.
func ValidatePatterns(patterns []string) error {
	if len(patterns) == 0 {
		return ErrNoPatterns
	}
	for _, p := range patterns {
		if err := wire.ValidatePattern(p); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether key matches any of patterns.
func Matches(patterns []string, key string) bool {
	for _, p := range patterns {
		if wire.MatchRoute(p, key) {
			return true
		}
	}
	return false
}
