package transport

import (
	"errors"
	"fmt"

	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Frame errors.
var (
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrFrameTooLarge = errors.New("frame too large")
)

// DefaultMaxMessageSize bounds a single websocket message. Capture replies
// carry whole pcap files, so the limit is generous.
const DefaultMaxMessageSize = 16 << 20

// FrameType identifies the purpose of a frame.
type FrameType uint8

const (
	FramePublish     FrameType = 1
	FrameSubscribe   FrameType = 2
	FrameUnsubscribe FrameType = 3
	FrameDeliver     FrameType = 4
	FrameAck         FrameType = 5
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FramePublish:
		return "PUBLISH"
	case FrameSubscribe:
		return "SUBSCRIBE"
	case FrameUnsubscribe:
		return "UNSUBSCRIBE"
	case FrameDeliver:
		return "DELIVER"
	case FrameAck:
		return "ACK"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

// Frame is the unit exchanged on a websocket connection.
//
// CBOR encoding:
//
//	{
//	  1: type,      // uint8
//	  2: seq,       // ack correlation for subscribe/unsubscribe
//	  3: subId,     // subscription id, chosen by the client
//	  4: patterns,  // subscribe only
//	  5: envelope,  // publish and deliver
//	  6: error      // ack only, empty on success
//	}
type Frame struct {
	Type     FrameType      `cbor:"1,keyasint"`
	Seq      uint32         `cbor:"2,keyasint,omitempty"`
	SubID    uint32         `cbor:"3,keyasint,omitempty"`
	Patterns []string       `cbor:"4,keyasint,omitempty"`
	Envelope *wire.Envelope `cbor:"5,keyasint,omitempty"`
	Error    string         `cbor:"6,keyasint,omitempty"`
}

// Validate checks the fields required by the frame type.
func (f *Frame) Validate() error {
	switch f.Type {
	case FramePublish, FrameDeliver:
		if f.Envelope == nil {
			return fmt.Errorf("%w: %s without envelope", ErrInvalidFrame, f.Type)
		}
		return f.Envelope.Validate()
	case FrameSubscribe:
		if f.SubID == 0 || len(f.Patterns) == 0 {
			return fmt.Errorf("%w: subscribe needs id and patterns", ErrInvalidFrame)
		}
	case FrameUnsubscribe:
		if f.SubID == 0 {
			return fmt.Errorf("%w: unsubscribe needs id", ErrInvalidFrame)
		}
	case FrameAck:
	default:
		return fmt.Errorf("%w: type %d", ErrInvalidFrame, f.Type)
	}
	return nil
}

// EncodeFrame encodes a frame to CBOR.
func EncodeFrame(f *Frame) ([]byte, error) {
	return wire.Marshal(f)
}

// DecodeFrame decodes and validates a frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := wire.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
