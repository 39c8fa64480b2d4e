package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Envelope errors.
var (
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrNoRoutingKey = errors.New("missing routing key")
	ErrNoReplyTo    = errors.New("request has no reply-to")
	ErrKindMismatch = errors.New("body does not match envelope kind")
	ErrNilMessage   = errors.New("nil message")
)

// Envelope is the unit published on the bus.
//
// CBOR encoding:
//
//	{
//	  1: kind,           // uint16
//	  2: routingKey,     // string
//	  3: correlationId,  // string, requests and replies only
//	  4: replyTo,        // string, requests only
//	  5: timestamp,      // RFC 3339 text
//	  6: source,         // string, publishing component
//	  7: body            // embedded CBOR of the message
//	}
type Envelope struct {
	Kind          Kind            `cbor:"1,keyasint"`
	RoutingKey    string          `cbor:"2,keyasint"`
	CorrelationID string          `cbor:"3,keyasint,omitempty"`
	ReplyTo       string          `cbor:"4,keyasint,omitempty"`
	Timestamp     time.Time       `cbor:"5,keyasint"`
	Source        string          `cbor:"6,keyasint,omitempty"`
	Body          cbor.RawMessage `cbor:"7,keyasint,omitempty"`
}

// Validate checks that the envelope can be routed and decoded.
func (e *Envelope) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
	}
	if e.RoutingKey == "" {
		return ErrNoRoutingKey
	}
	return nil
}

// NewEnvelope wraps msg in an envelope published under its default routing key.
func NewEnvelope(msg Message) (*Envelope, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	return NewEnvelopeWithKey(msg.Kind().Route(), msg)
}

// NewEnvelopeWithKey wraps msg in an envelope published under key.
func NewEnvelopeWithKey(key string, msg Message) (*Envelope, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	kind := msg.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoRoutingKey, kind)
	}
	body, err := Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return &Envelope{
		Kind:       kind,
		RoutingKey: key,
		Timestamp:  time.Now(),
		Body:       body,
	}, nil
}

// NewReply wraps msg in a reply to req.
func NewReply(req *Envelope, msg Message) (*Envelope, error) {
	if req.ReplyTo == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoReplyTo, req.Kind)
	}
	env, err := NewEnvelopeWithKey(req.ReplyTo, msg)
	if err != nil {
		return nil, err
	}
	env.CorrelationID = req.CorrelationID
	return env, nil
}

// Decode decodes the body into the message type registered for the kind.
func (e *Envelope) Decode() (Message, error) {
	info, ok := registry[e.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, e.Kind)
	}
	msg := info.newBody()
	if len(e.Body) > 0 {
		if err := Unmarshal(e.Body, msg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", e.Kind, err)
		}
	}
	if msg.Kind() != e.Kind {
		return nil, fmt.Errorf("%w: %s body in %s envelope", ErrKindMismatch, msg.Kind(), e.Kind)
	}
	return msg, nil
}

// IsRequest reports whether the envelope expects a reply.
func (e *Envelope) IsRequest() bool {
	return e.ReplyTo != ""
}
