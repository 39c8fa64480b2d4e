package log

import (
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Event represents a bus log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Component is the name of the component that recorded the event.
	Component string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to Component.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// SessionID is the test session the event belongs to, once known.
	SessionID string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a delivered message.
	DirectionIn Direction = 0
	// DirectionOut indicates a published message.
	DirectionOut Direction = 1
	// DirectionNone is used for events that are not messages.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a bus envelope.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures an envelope.
type MessageEvent struct {
	Kind          wire.Kind `cbor:"1,keyasint"`
	RoutingKey    string    `cbor:"2,keyasint"`
	CorrelationID string    `cbor:"3,keyasint,omitempty"`
	ReplyTo       string    `cbor:"4,keyasint,omitempty"`
	Source        string    `cbor:"5,keyasint,omitempty"`

	// Body is the CBOR body of the envelope (may be truncated for large bodies).
	Body []byte `cbor:"6,keyasint,omitempty"`

	// Size is the size of the untruncated body.
	Size int `cbor:"7,keyasint"`

	// Truncated indicates if Body was truncated.
	Truncated bool `cbor:"8,keyasint,omitempty"`
}

// MaxBodySize is the largest body stored in a MessageEvent. Capture payloads
// are usually much larger and are cut.
const MaxBodySize = 64 * 1024

// NewMessageEvent builds the event of an envelope.
func NewMessageEvent(component string, dir Direction, env *wire.Envelope) Event {
	body := env.Body
	truncated := false
	if len(body) > MaxBodySize {
		body = body[:MaxBodySize]
		truncated = true
	}
	return Event{
		Timestamp: time.Now(),
		Component: component,
		Direction: dir,
		Category:  CategoryMessage,
		Message: &MessageEvent{
			Kind:          env.Kind,
			RoutingKey:    env.RoutingKey,
			CorrelationID: env.CorrelationID,
			ReplyTo:       env.ReplyTo,
			Source:        env.Source,
			Body:          body,
			Size:          len(env.Body),
			Truncated:     truncated,
		},
	}
}

// Envelope rebuilds the envelope of a message event. It returns false when
// the body was truncated and cannot be decoded.
func (m *MessageEvent) Envelope(ts time.Time) (*wire.Envelope, bool) {
	if m.Truncated {
		return nil, false
	}
	return &wire.Envelope{
		Kind:          m.Kind,
		RoutingKey:    m.RoutingKey,
		CorrelationID: m.CorrelationID,
		ReplyTo:       m.ReplyTo,
		Timestamp:     ts,
		Source:        m.Source,
		Body:          m.Body,
	}, true
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityCoordinator indicates a coordinator state machine transition.
	StateEntityCoordinator StateEntity = 0
	// StateEntityTestCase indicates a test case state change.
	StateEntityTestCase StateEntity = 1
	// StateEntityStep indicates a step state change.
	StateEntityStep StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityCoordinator:
		return "COORDINATOR"
	case StateEntityTestCase:
		return "TESTCASE"
	case StateEntityStep:
		return "STEP"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures state machine transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`

	// Trigger that caused the change (if available).
	Trigger string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors.
type ErrorEventData struct {
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
