package testsuite

import (
	"errors"
	"testing"

	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

func TestGenerateVerdict_RequiresAllStepsFinished(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	tc.SetState(TestCaseExecuting)
	ts.NextStep()
	_ = ts.FinishStimuliStep()

	if _, err := tc.GenerateVerdict(nil); !errors.Is(err, ErrStepsNotFinished) {
		t.Fatalf("got %v, want ErrStepsNotFinished", err)
	}
	if tc.Report != nil {
		t.Error("report should not be stored on failure")
	}
}

func TestGenerateVerdict_NoPosteriorIsError(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	tc.SetState(TestCaseExecuting)
	runSteps(t, ts, "pass", true)

	r, err := tc.GenerateVerdict(nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Verdict != verdict.Error {
		t.Errorf("Verdict = %v, want %v", r.Verdict, verdict.Error)
	}
	if r.Description != MsgEmptyAnalysis {
		t.Errorf("Description = %q, want %q", r.Description, MsgEmptyAnalysis)
	}
	if len(r.Partials) != 2 {
		t.Errorf("got %d partials, want 2 (check + verify)", len(r.Partials))
	}
}

func TestGenerateVerdict_PassIsNormalized(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	tc.SetState(TestCaseExecuting)
	runSteps(t, ts, "pass", true)

	r, err := tc.GenerateVerdict([]Partial{
		NewPartial("frame_check_[1/2]", verdict.Pass, "CON request found"),
		NewPartial("frame_check_[2/2]", verdict.Pass, "ACK found"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Verdict != verdict.Pass {
		t.Errorf("Verdict = %v, want pass", r.Verdict)
	}
	if r.Description != MsgNoInteropError {
		t.Errorf("Description = %q, want %q", r.Description, MsgNoInteropError)
	}
	if len(r.Partials) != 4 {
		t.Errorf("got %d partials, want 4", len(r.Partials))
	}
	if tc.Report == nil || tc.Report.Verdict != verdict.Pass {
		t.Error("report should be stored on the test case")
	}
}

func TestGenerateVerdict_WorstWins(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	tc.SetState(TestCaseExecuting)
	runSteps(t, ts, "pass", false)

	r, err := tc.GenerateVerdict([]Partial{NewPartial("frame_check_[1/1]", verdict.Inconclusive, "no ACK")})
	if err != nil {
		t.Fatal(err)
	}
	if r.Verdict != verdict.Fail {
		t.Errorf("Verdict = %v, want fail", r.Verdict)
	}
}

func TestGenerateVerdict_PostponedPlaceholder(t *testing.T) {
	check := mustStep(t, "TD_PM_step_02", StepCheck, "")
	tc, _ := NewTestCase("TD_PM", "COAP_CFG_BASIC", []*Step{
		mustStep(t, "TD_PM_step_01", StepStimuli, "coap_client"),
		check,
	})
	ts, err := New([]*TestCase{tc}, []*TestConfig{basicConfig()}, Options{PostMortem: true})
	if err != nil {
		t.Fatal(err)
	}
	ts.NextTestCase()
	tc.SetState(TestCaseExecuting)
	runSteps(t, ts, "pass", true)

	r, err := tc.GenerateVerdict([]Partial{NewPartial("frame_check_[1/1]", verdict.Pass, "ok")})
	if err != nil {
		t.Fatal(err)
	}
	if r.Partials[0].ID != check.ID || r.Partials[0].Verdict != nil {
		t.Errorf("first partial = %+v, want postponed placeholder", r.Partials[0])
	}
	if r.Partials[0].Message != "CHECK step: postponed" {
		t.Errorf("Message = %q", r.Partials[0].Message)
	}
}

func TestAbort(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	ts.NextStep()

	ts.AbortCurrentTestCase()

	if ts.CurrentTestCase() != nil {
		t.Error("current should be cleared")
	}
	if tc.State != TestCaseAborted {
		t.Errorf("State = %v, want aborted", tc.State)
	}
	for _, s := range tc.Steps {
		if s.State != StepAborted {
			t.Errorf("step %s state = %v, want aborted", s.ID, s.State)
		}
		if v := s.Verdict(); v != nil && v.Value() != verdict.Aborted {
			t.Errorf("step %s verdict = %v, want aborted", s.ID, v.Value())
		}
	}

	r, err := tc.GenerateVerdict(nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Verdict != verdict.Aborted {
		t.Errorf("report verdict = %v, want aborted", r.Verdict)
	}
}

func TestSkipFinishesSteps(t *testing.T) {
	tc := coapCase(t, "TD_1")
	tc.SetState(TestCaseSkipped)
	if !tc.AllStepsFinished() {
		t.Error("skipping should finish every step")
	}
}

func TestNextStep_SkipsPostponed(t *testing.T) {
	tc, _ := NewTestCase("TD_1", "COAP_CFG_BASIC", []*Step{
		mustStep(t, "a", StepStimuli, "coap_client"),
		mustStep(t, "b", StepCheck, ""),
		mustStep(t, "c", StepStimuli, "coap_server"),
	})
	tc.Reinit(true)

	var got []string
	for s := tc.NextStep(); s != nil; s = tc.NextStep() {
		got = append(got, s.ID)
		s.State = StepFinished
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("visited %v, want [a c]", got)
	}
	if tc.CurrentStep() != nil {
		t.Error("current step should be nil after exhaustion")
	}
}

func TestGenerateDegradedVerdict(t *testing.T) {
	tests := []struct {
		name     string
		verifyOK bool
		value    verdict.Value
		want     verdict.Value
		wantMsg  string
	}{
		{"analyzer down", true, verdict.Inconclusive, verdict.Inconclusive, "analysis timed out"},
		{"sniffer down", true, verdict.Error, verdict.Error, "analysis timed out"},
		{"failed step outranks", false, verdict.Inconclusive, verdict.Fail, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newSuite(t, "TD_1")
			tc := ts.NextTestCase()
			tc.SetState(TestCaseExecuting)
			runSteps(t, ts, "pass", tt.verifyOK)

			r, err := tc.GenerateDegradedVerdict(tt.value, "analysis timed out")
			if err != nil {
				t.Fatal(err)
			}
			if r.Verdict != tt.want {
				t.Errorf("Verdict = %v, want %v", r.Verdict, tt.want)
			}
			if tt.wantMsg != "" && r.Description != tt.wantMsg {
				t.Errorf("Description = %q, want %q", r.Description, tt.wantMsg)
			}
			if len(r.Partials) != 2 {
				t.Errorf("got %d partials, want the 2 step partials", len(r.Partials))
			}
			if tc.Report == nil {
				t.Error("report should be stored on the test case")
			}
		})
	}
}

func TestGenerateDegradedVerdict_RequiresAllStepsFinished(t *testing.T) {
	ts := newSuite(t, "TD_1")
	tc := ts.NextTestCase()
	ts.NextStep()

	if _, err := tc.GenerateDegradedVerdict(verdict.Error, "x"); !errors.Is(err, ErrStepsNotFinished) {
		t.Errorf("got %v, want ErrStepsNotFinished", err)
	}
}
