package coordinator

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Capture is a packet capture returned by the sniffer.
type Capture struct {
	Filename string
	Payload  []byte
}

// Digest returns the hex blake2b-256 digest of the payload.
func (c Capture) Digest() string {
	sum := blake2b.Sum256(c.Payload)
	return hex.EncodeToString(sum[:])
}

// Sniffer records the traffic of the links of a test configuration.
type Sniffer interface {
	Start(ctx context.Context, captureID, filter, linkID string) error
	Stop(ctx context.Context) error
	Capture(ctx context.Context, captureID string) (Capture, error)
}

// AnalysisRequest asks for the analysis of the capture of a test case.
type AnalysisRequest struct {
	TestCaseID string
	Protocol   string
	Capture    Capture
}

// Analyzer checks a capture against a test case.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) ([]testsuite.Partial, error)
}

// BusSniffer calls the sniffing service over the bus.
type BusSniffer struct {
	client  *bus.Client
	timeout time.Duration
}

// NewBusSniffer creates a sniffer client.
func NewBusSniffer(client *bus.Client, timeout time.Duration) *BusSniffer {
	return &BusSniffer{client: client, timeout: timeout}
}

func (s *BusSniffer) Start(ctx context.Context, captureID, filter, linkID string) error {
	_, err := s.client.Request(ctx, &wire.SniffingStart{
		CaptureID: captureID,
		Filter:    filter,
		LinkID:    linkID,
	}, bus.RequestOptions{Timeout: s.timeout})
	return err
}

func (s *BusSniffer) Stop(ctx context.Context) error {
	_, err := s.client.Request(ctx, &wire.SniffingStop{}, bus.RequestOptions{Timeout: s.timeout})
	return err
}

func (s *BusSniffer) Capture(ctx context.Context, captureID string) (Capture, error) {
	reply, err := s.client.Request(ctx, &wire.GetCapture{CaptureID: captureID}, bus.RequestOptions{Timeout: s.timeout})
	if err != nil {
		return Capture{}, err
	}
	cr, ok := reply.(*wire.CaptureReply)
	if !ok {
		return Capture{}, fmt.Errorf("%w: %s", bus.ErrUnexpectedReply, reply.Kind())
	}
	payload, err := base64.StdEncoding.DecodeString(cr.Value)
	if err != nil {
		return Capture{}, fmt.Errorf("decode capture %s: %w", captureID, err)
	}
	return Capture{Filename: cr.Filename, Payload: payload}, nil
}

// BusAnalyzer calls the analysis service over the bus.
type BusAnalyzer struct {
	client  *bus.Client
	timeout time.Duration
}

// NewBusAnalyzer creates an analyzer client.
func NewBusAnalyzer(client *bus.Client, timeout time.Duration) *BusAnalyzer {
	return &BusAnalyzer{client: client, timeout: timeout}
}

// Analyze returns the partial verdicts of the analyzer, labeled
// frame_check_[i/n] in the order they were returned.
func (a *BusAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) ([]testsuite.Partial, error) {
	reply, err := a.client.Request(ctx, &wire.AnalyzeTestCase{
		TestCaseID: req.TestCaseID,
		Protocol:   req.Protocol,
		Filename:   req.Capture.Filename,
		Value:      base64.StdEncoding.EncodeToString(req.Capture.Payload),
	}, bus.RequestOptions{Timeout: a.timeout})
	if err != nil {
		return nil, err
	}
	ar, ok := reply.(*wire.AnalysisReply)
	if !ok {
		return nil, fmt.Errorf("%w: %s", bus.ErrUnexpectedReply, reply.Kind())
	}
	return FramePartials(ar.Partials)
}

// FramePartials converts analyzer entries into labeled partial verdicts.
func FramePartials(entries []wire.AnalysisEntry) ([]testsuite.Partial, error) {
	out := make([]testsuite.Partial, 0, len(entries))
	for i, e := range entries {
		v, err := verdict.Parse(e.Verdict)
		if err != nil {
			return nil, fmt.Errorf("analysis entry %d: %w", i+1, err)
		}
		id := fmt.Sprintf("frame_check_[%d/%d]", i+1, len(entries))
		out = append(out, testsuite.NewPartial(id, v, e.Description))
	}
	return out, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Sniffer  = (*BusSniffer)(nil)
	_ Analyzer = (*BusAnalyzer)(nil)
)
