package mock

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Sniffer is a fake packet sniffer. Captures hold a deterministic payload
// derived from the capture id, link and filter.
type Sniffer struct {
	*service

	mu       sync.Mutex
	active   string
	captures map[string][]byte
}

// NewSniffer creates a sniffer served through client.
func NewSniffer(client *bus.Client, opts Options) *Sniffer {
	return &Sniffer{
		service:  newService(wire.ComponentSniffing, client, opts),
		captures: make(map[string][]byte),
	}
}

// Start subscribes the sniffer to its requests and announces it.
func (s *Sniffer) Start(ctx context.Context) error {
	return s.start(ctx, map[wire.Kind]handlerFunc{
		wire.KindSniffingStart: s.handleStart,
		wire.KindSniffingStop:  s.handleStop,
		wire.KindGetCapture:    s.handleGetCapture,
	})
}

// Active returns the id of the running capture, empty when stopped.
func (s *Sniffer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Payload returns the capture stored under id.
func (s *Sniffer) Payload(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.captures[id]
	return p, ok
}

func (s *Sniffer) handleStart(_ *wire.Envelope, msg wire.Message) (wire.Message, error) {
	m := msg.(*wire.SniffingStart)
	s.mu.Lock()
	s.active = m.CaptureID
	s.captures[m.CaptureID] = fmt.Appendf(nil, "capture %s link=%s filter=%s", m.CaptureID, m.LinkID, m.Filter)
	s.mu.Unlock()
	s.logger.Debug("capture started", "capture_id", m.CaptureID, "link_id", m.LinkID)
	return &wire.Ack{ReplyStatus: okStatus()}, nil
}

func (s *Sniffer) handleStop(_ *wire.Envelope, _ wire.Message) (wire.Message, error) {
	s.mu.Lock()
	id := s.active
	s.active = ""
	s.mu.Unlock()
	if id != "" {
		s.logger.Debug("capture stopped", "capture_id", id)
	}
	return &wire.Ack{ReplyStatus: okStatus()}, nil
}

func (s *Sniffer) handleGetCapture(_ *wire.Envelope, msg wire.Message) (wire.Message, error) {
	m := msg.(*wire.GetCapture)
	payload, ok := s.Payload(m.CaptureID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSniffing, m.CaptureID)
	}
	return &wire.CaptureReply{
		ReplyStatus: okStatus(),
		Filename:    m.CaptureID + ".pcap",
		Value:       base64.StdEncoding.EncodeToString(payload),
	}, nil
}
