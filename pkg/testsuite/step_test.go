package testsuite

import (
	"errors"
	"testing"

	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

func TestNewStep_Validation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		typ  StepType
		node string
		mode ExecutionMode
	}{
		{"empty id", "", StepCheck, "", ""},
		{"unknown type", "s1", StepType("observe"), "", ""},
		{"stimuli without node", "s1", StepStimuli, "", ""},
		{"verify without node", "s1", StepVerify, "", ""},
		{"bad mode", "s1", StepStimuli, "coap_client", ExecutionMode("robot")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStep(tt.id, tt.typ, nil, tt.node, tt.mode)
			if !errors.Is(err, ErrInvalidStep) {
				t.Errorf("got %v, want ErrInvalidStep", err)
			}
		})
	}
}

func TestStep_OnlyCheckVerifyFeatureCarryVerdict(t *testing.T) {
	tests := []struct {
		typ  StepType
		node string
		want bool
	}{
		{StepStimuli, "coap_client", false},
		{StepVerify, "coap_client", true},
		{StepCheck, "", true},
		{StepFeature, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			s := mustStep(t, "s1", tt.typ, tt.node)
			if got := s.Verdict() != nil; got != tt.want {
				t.Errorf("has verdict = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStep_SetResultOnStimuli(t *testing.T) {
	s := mustStep(t, "s1", StepStimuli, "coap_client")
	if err := s.SetResult(verdict.Pass, "ok"); !errors.Is(err, ErrNoVerdict) {
		t.Errorf("got %v, want ErrNoVerdict", err)
	}
}

func TestStep_DefaultModeIsUserAssisted(t *testing.T) {
	s := mustStep(t, "s1", StepStimuli, "coap_client")
	if s.Mode != UserAssisted {
		t.Errorf("Mode = %q, want %q", s.Mode, UserAssisted)
	}
}

func TestStep_ReinitPostMortem(t *testing.T) {
	check := mustStep(t, "c", StepCheck, "")
	feature := mustStep(t, "f", StepFeature, "")
	verify := mustStep(t, "v", StepVerify, "coap_client")

	_ = check.SetResult(verdict.Fail, "bad")
	for _, s := range []*Step{check, feature, verify} {
		s.Reinit(true)
	}

	if check.State != StepPostponed || feature.State != StepPostponed {
		t.Errorf("check/feature states = %v/%v, want postponed", check.State, feature.State)
	}
	if verify.State != StepNull {
		t.Errorf("verify state = %v, want null", verify.State)
	}
	if check.Verdict().Value() != verdict.None {
		t.Errorf("check verdict = %v, want reset to none", check.Verdict().Value())
	}
}
