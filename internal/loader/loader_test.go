package loader_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsismondi/ioppytest-sub000/internal/loader"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

const taggedStream = `--- !configuration
configuration_id: COAP_CFG_01
uri: http://doc.example/configurations/COAP_CFG_01
nodes: [coap_client, coap_server]
topology:
  - capture_filter: udp port 5683
    nodes: [coap_client, coap_server]
default_addressing:
  - node: coap_client
    ipv6_prefix: bbbb
    ipv6_host: "1"
  - node: coap_server
    ipv6_prefix: bbbb
    ipv6_host: "2"
description:
  - Client and server
  - on one link
--- !testcase
testcase_id: td_coap_core_01
uri: http://doc.example/tests/TD_COAP_CORE_01
configuration: COAP_CFG_01
objective: Perform GET transaction (CON mode)
pre_conditions:
  - Server offers the resource /test
sequence:
  - step_id: TD_COAP_CORE_01_step_01
    type: stimuli
    node: coap_client
    description:
      - Client is requested to send a GET request
  - step_id: TD_COAP_CORE_01_step_02
    type: check
    description: The request is sent with Type = 0 (CON)
  - step_id: TD_COAP_CORE_01_step_03
    type: verify
    node: coap_client
    mode: automated
    description: Client displays the received payload
`

func loadError(t *testing.T, err error) *loader.LoadError {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var le *loader.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %T, want *loader.LoadError", err)
	}
	return le
}

func TestParseTaggedStream(t *testing.T) {
	s, err := loader.Parse([]byte(taggedStream))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(s.Configs) != 1 {
		t.Fatalf("got %d configs, want 1", len(s.Configs))
	}
	cfg := s.Configs[0]
	if cfg.ID != "COAP_CFG_01" {
		t.Errorf("got config id %q, want COAP_CFG_01", cfg.ID)
	}
	if cfg.Description != "Client and server on one link" {
		t.Errorf("got description %q", cfg.Description)
	}
	if len(cfg.Topology) != 1 || cfg.Topology[0].ID != "link_1" {
		t.Fatalf("got topology %+v, want one link named link_1", cfg.Topology)
	}
	if cfg.Topology[0].CaptureFilter != "udp port 5683" {
		t.Errorf("got capture filter %q", cfg.Topology[0].CaptureFilter)
	}
	if got := cfg.DefaultAddressing["coap_server"].String(); got != "bbbb::2" {
		t.Errorf("got server address %q, want bbbb::2", got)
	}

	if len(s.TestCases) != 1 {
		t.Fatalf("got %d testcases, want 1", len(s.TestCases))
	}
	tc := s.TestCases[0]
	if tc.ID != "TD_COAP_CORE_01" {
		t.Errorf("got id %q, want the upper-cased id", tc.ID)
	}
	if tc.ConfigID != "COAP_CFG_01" {
		t.Errorf("got config %q", tc.ConfigID)
	}
	if tc.Objective != "Perform GET transaction (CON mode)" {
		t.Errorf("got objective %q", tc.Objective)
	}
	if len(tc.PreConditions) != 1 {
		t.Errorf("got %d pre-conditions, want 1", len(tc.PreConditions))
	}
	if len(tc.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(tc.Steps))
	}

	stim, check, verify := tc.Steps[0], tc.Steps[1], tc.Steps[2]
	if stim.Type != testsuite.StepStimuli || stim.Node != "coap_client" || stim.Mode != testsuite.UserAssisted {
		t.Errorf("unexpected stimuli step %+v", stim)
	}
	if check.Type != testsuite.StepCheck || check.Node != "" {
		t.Errorf("unexpected check step %+v", check)
	}
	if check.Summary() != "The request is sent with Type = 0 (CON)" {
		t.Errorf("got check description %q", check.Summary())
	}
	if verify.Mode != testsuite.Automated {
		t.Errorf("got verify mode %q, want automated", verify.Mode)
	}
}

func TestParseSuiteMappingPostMortem(t *testing.T) {
	doc := `post_mortem: true
configurations:
  - configuration_id: CFG
    nodes: [a, b]
    topology:
      - link_id: l0
        nodes: [a, b]
testcases:
  - testcase_id: TD_1
    configuration: CFG
    sequence:
      - step_id: s1
        type: stimuli
        node: a
      - step_id: s2
        type: check
      - step_id: s3
        type: feature
`
	s, err := loader.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !s.PostMortem {
		t.Error("expected post-mortem mode")
	}

	ts, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tc, ok := ts.TestCase("TD_1")
	if !ok {
		t.Fatal("TD_1 missing from built suite")
	}
	if tc.Steps[0].State != testsuite.StepNull {
		t.Errorf("got stimuli state %s, want null", tc.Steps[0].State)
	}
	for _, step := range tc.Steps[1:] {
		if step.State != testsuite.StepPostponed {
			t.Errorf("got %s state %s, want postponed", step.ID, step.State)
		}
	}
	cfg, _ := ts.Config("CFG")
	if link, ok := cfg.Link("l0"); !ok || link.ID != "l0" {
		t.Errorf("got link %+v, want l0", link)
	}
}

func TestParseErrors(t *testing.T) {
	const cfg = `--- !configuration
configuration_id: CFG
nodes: [a, b]
`
	tests := []struct {
		name     string
		doc      string
		line     int
		contains string
		is       error
	}{
		{
			name: "unknown configuration",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: NOPE
sequence:
  - step_id: s1
    type: check
`,
			contains: "NOPE",
			is:       testsuite.ErrUnknownConfig,
		},
		{
			name: "invalid step type",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: check
  - step_id: s2
    type: dance
`,
			line:     10,
			contains: "dance",
			is:       testsuite.ErrInvalidStep,
		},
		{
			name: "stimuli without node",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: stimuli
`,
			line: 8,
			is:   testsuite.ErrInvalidStep,
		},
		{
			name: "step node outside configuration",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: verify
    node: c
`,
			line:     8,
			contains: "node c",
		},
		{
			name: "duplicate step",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: check
  - step_id: s1
    type: check
`,
			is: testsuite.ErrInvalidStep,
		},
		{
			name: "no steps",
			doc: cfg + `--- !testcase
testcase_id: TD_1
configuration: CFG
`,
			contains: "at least one step",
		},
		{
			name:     "no testcases",
			doc:      cfg,
			contains: "no testcase",
		},
		{
			name: "link with one node",
			doc: `--- !configuration
configuration_id: CFG
nodes: [a, b]
topology:
  - nodes: [a]
`,
			line:     5,
			contains: "exactly two nodes",
		},
		{
			name: "addressing of unknown node",
			doc: `--- !configuration
configuration_id: CFG
nodes: [a, b]
default_addressing:
  - node: z
    ipv6_prefix: bbbb
`,
			line:     5,
			contains: `"z"`,
		},
		{
			name:     "unexpected tag",
			doc:      "--- !widget\nname: x\n",
			contains: "!widget",
		},
		{
			name:     "type mismatch",
			doc:      "testcases: 42\n",
			contains: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.doc))
			le := loadError(t, err)
			if tt.line != 0 && le.Line != tt.line {
				t.Errorf("got line %d, want %d (%v)", le.Line, tt.line, err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error %v is not %v", err, tt.is)
			}
		})
	}
}

func TestParseDuplicates(t *testing.T) {
	doc := `--- !configuration
configuration_id: CFG
nodes: [a, b]
--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: check
--- !testcase
testcase_id: td_1
configuration: CFG
sequence:
  - step_id: s1
    type: check
`
	_, err := loader.Parse([]byte(doc))
	loadError(t, err)
	if !strings.Contains(err.Error(), "duplicate testcase TD_1") {
		t.Errorf("got %v, want a duplicate testcase error", err)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := loader.Parse([]byte("testcases:\n  - testcase_id: [unclosed\n"))
	le := loadError(t, err)
	if le.Line == 0 {
		t.Errorf("expected a line number in %v", err)
	}
	if le.Cause == nil {
		t.Error("expected the YAML error as cause")
	}
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("a_configs.yaml", `--- !configuration
configuration_id: CFG
nodes: [a, b]
`)
	write("b_cases.yml", `--- !testcase
testcase_id: TD_1
configuration: CFG
sequence:
  - step_id: s1
    type: check
--- !testcase
testcase_id: TD_2
configuration: CFG
sequence:
  - step_id: s1
    type: check
`)
	write("README.txt", "not yaml: [")

	s, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Files) != 2 {
		t.Errorf("got files %v, want 2", s.Files)
	}
	if len(s.TestCases) != 2 || s.TestCases[0].ID != "TD_1" || s.TestCases[1].ID != "TD_2" {
		t.Errorf("unexpected testcases %v", s.TestCases)
	}

	ts, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ts.TestCaseIDs(); len(got) != 2 {
		t.Errorf("got ids %v", got)
	}
}

func TestLoadFileErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte("--- !configuration\nnodes: [a]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loader.LoadFile(path)
	le := loadError(t, err)
	if le.File != path {
		t.Errorf("got file %q, want %q", le.File, path)
	}
	if !strings.HasPrefix(err.Error(), path+":") {
		t.Errorf("error %q does not start with the path", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	le := loadError(t, err)
	if !errors.Is(le, os.ErrNotExist) {
		t.Errorf("got %v, want not-exist cause", err)
	}

	_, err = loader.LoadDirectory(t.TempDir())
	if le := loadError(t, err); !strings.Contains(le.Message, "no test description") {
		t.Errorf("got %v", err)
	}
}

func TestLoadErrorFormat(t *testing.T) {
	tests := []struct {
		err  *loader.LoadError
		want string
	}{
		{&loader.LoadError{File: "x.yaml", Line: 12, Message: "bad"}, "x.yaml:12: bad"},
		{&loader.LoadError{File: "x.yaml", Message: "bad"}, "x.yaml: bad"},
		{&loader.LoadError{Line: 3, Message: "bad", Cause: errors.New("why")}, "3: bad: why"},
		{&loader.LoadError{Message: "bad"}, "bad"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
