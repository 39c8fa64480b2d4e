package wire

import (
	"errors"
	"testing"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

func TestRegistryIsValid(t *testing.T) {
	if err := validateRegistry(); err != nil {
		t.Fatal(err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"session configuration", &SessionConfiguration{SessionID: "s1", TestCases: []string{"TD_COAP_CORE_01"}}},
		{"check executed", &CheckExecuted{StepID: "TD_COAP_CORE_01_step_02", PartialVerdict: "pass", Description: "ok"}},
		{"verify execute", &StepExecute{Type: testsuite.StepVerify, StepID: "v", TestCaseID: "TD_1", Node: "coap_client"}},
		{"verdict", &TestCaseVerdict{
			TestCaseID: "TD_1",
			Verdict:    verdict.Fail,
			Partials:   []testsuite.Partial{testsuite.NewPartial("frame_check_[1/1]", verdict.Fail, "no ACK")},
		}},
		{"capture reply", &CaptureReply{ReplyStatus: ReplyStatus{OK: true}, Filename: "TD_1.pcap", Value: "AAEC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.msg.Kind().Route()
			if key == "" {
				key = ReplyRoute(RouteGetCapture)
			}
			env, err := NewEnvelopeWithKey(key, tt.msg)
			if err != nil {
				t.Fatalf("NewEnvelopeWithKey: %v", err)
			}

			data, err := EncodeEnvelope(env)
			if err != nil {
				t.Fatalf("EncodeEnvelope: %v", err)
			}
			decoded, err := DecodeEnvelope(data)
			if err != nil {
				t.Fatalf("DecodeEnvelope: %v", err)
			}
			if decoded.Kind != env.Kind || decoded.RoutingKey != env.RoutingKey {
				t.Errorf("header = %s/%s, want %s/%s", decoded.Kind, decoded.RoutingKey, env.Kind, env.RoutingKey)
			}

			msg, err := decoded.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !Equal(msg, tt.msg) {
				t.Errorf("body mismatch: got %+v, want %+v", msg, tt.msg)
			}
		})
	}
}

func TestNewEnvelope_ReplyNeedsKey(t *testing.T) {
	if _, err := NewEnvelope(&Ack{}); !errors.Is(err, ErrNoRoutingKey) {
		t.Errorf("got %v, want ErrNoRoutingKey", err)
	}
}

func TestNewReply(t *testing.T) {
	req, err := NewEnvelope(&GetCapture{CaptureID: "TD_1"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewReply(req, &CaptureReply{}); !errors.Is(err, ErrNoReplyTo) {
		t.Fatalf("got %v, want ErrNoReplyTo", err)
	}

	req.CorrelationID = "c-1"
	req.ReplyTo = ReplyRoute(req.RoutingKey)
	reply, err := NewReply(req, &CaptureReply{ReplyStatus: ReplyStatus{OK: true}})
	if err != nil {
		t.Fatal(err)
	}
	if reply.RoutingKey != "service.sniffing.capture.get.reply" {
		t.Errorf("RoutingKey = %s", reply.RoutingKey)
	}
	if reply.CorrelationID != "c-1" {
		t.Errorf("CorrelationID = %s, want c-1", reply.CorrelationID)
	}
}

func TestStepExecuteKinds(t *testing.T) {
	tests := []struct {
		typ  testsuite.StepType
		want Kind
	}{
		{testsuite.StepStimuli, KindStimuliExecute},
		{testsuite.StepVerify, KindVerifyExecute},
		{testsuite.StepCheck, KindCheckExecute},
		{testsuite.StepFeature, KindCheckExecute},
	}
	for _, tt := range tests {
		if got := (&StepExecute{Type: tt.typ}).Kind(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestDecode_KindMismatch(t *testing.T) {
	env, err := NewEnvelope(&StepExecute{Type: testsuite.StepStimuli, StepID: "s"})
	if err != nil {
		t.Fatal(err)
	}
	env.Kind = KindVerifyExecute
	if _, err := env.Decode(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("got %v, want ErrKindMismatch", err)
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	data, _ := Marshal(&Envelope{Kind: Kind(9999), RoutingKey: "x"})
	if _, err := DecodeEnvelope(data); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("got %v, want ErrUnknownKind", err)
	}
	if _, err := DecodeEnvelope([]byte{0xff}); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestKindByName(t *testing.T) {
	k, ok := KindByName("testcase.verdict")
	if !ok || k != KindTestCaseVerdict {
		t.Errorf("got %v %v", k, ok)
	}
}
