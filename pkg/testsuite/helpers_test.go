package testsuite

import "testing"

func mustStep(t *testing.T, id string, typ StepType, node string) *Step {
	t.Helper()
	s, err := NewStep(id, typ, []string{"do " + id}, node, "")
	if err != nil {
		t.Fatalf("NewStep(%s): %v", id, err)
	}
	return s
}

// coapCase builds a case with a stimuli, a check and a verify step.
func coapCase(t *testing.T, id string) *TestCase {
	t.Helper()
	tc, err := NewTestCase(id, "COAP_CFG_BASIC", []*Step{
		mustStep(t, id+"_step_01", StepStimuli, "coap_client"),
		mustStep(t, id+"_step_02", StepCheck, ""),
		mustStep(t, id+"_step_03", StepVerify, "coap_client"),
	})
	if err != nil {
		t.Fatalf("NewTestCase(%s): %v", id, err)
	}
	return tc
}

func basicConfig() *TestConfig {
	return &TestConfig{
		ID:    "COAP_CFG_BASIC",
		Nodes: []string{"coap_client", "coap_server"},
		Topology: []Link{{
			ID:            "link_01",
			Nodes:         []string{"coap_client", "coap_server"},
			CaptureFilter: "udp port 5683",
		}},
		DefaultAddressing: map[string]Address{
			"coap_client": {Prefix: "bbbb", Host: "1"},
			"coap_server": {Prefix: "bbbb", Host: "2"},
		},
	}
}

func newSuite(t *testing.T, ids ...string) *TestSuite {
	t.Helper()
	cases := make([]*TestCase, len(ids))
	for i, id := range ids {
		cases[i] = coapCase(t, id)
	}
	ts, err := New(cases, []*TestConfig{basicConfig()}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ts
}

// runSteps drives the current case through all of its steps with the given
// check token and verify answer.
func runSteps(t *testing.T, ts *TestSuite, checkToken string, verifyOK bool) {
	t.Helper()
	for step := ts.NextStep(); step != nil; step = ts.NextStep() {
		var err error
		switch step.Type {
		case StepStimuli:
			err = ts.FinishStimuliStep()
		case StepCheck:
			err = ts.FinishCheckStep(checkToken, "response code is 2.05")
		case StepVerify:
			err = ts.FinishVerifyStep(verifyOK)
		}
		if err != nil {
			t.Fatalf("finishing %s: %v", step.ID, err)
		}
	}
}
