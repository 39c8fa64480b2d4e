// Package loader reads test descriptions (test cases and the test
// configurations they run on) from YAML streams.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

// Suite is a validated set of test cases and configurations.
type Suite struct {
	Files      []string
	TestCases  []*testsuite.TestCase
	Configs    []*testsuite.TestConfig
	PostMortem bool
}

// Build creates the test suite. The test cases are owned by the returned
// suite, so Build is meant to be called once.
func (s *Suite) Build() (*testsuite.TestSuite, error) {
	return testsuite.New(s.TestCases, s.Configs, testsuite.Options{PostMortem: s.PostMortem})
}

// document is the raw content of one file.
type document struct {
	file       string
	postMortem bool
	cases      []*testCaseDoc
	configs    []*configDoc
}

// Parse parses a test description stream from YAML bytes.
func Parse(data []byte) (*Suite, error) {
	doc, err := decode("", data)
	if err != nil {
		return nil, err
	}
	return build([]*document{doc})
}

// LoadFile loads a test description stream from a file.
func LoadFile(path string) (*Suite, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return build([]*document{doc})
}

// LoadDirectory loads all test descriptions of a directory as one suite.
// Only files with .yaml or .yml extensions are loaded, in name order.
func LoadDirectory(dir string) (*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	var docs []*document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		doc, err := readDocument(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, &LoadError{File: dir, Message: "no test description files found"}
	}
	return build(docs)
}

// Load loads a file or a directory.
func Load(path string) (*Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	if info.IsDir() {
		return LoadDirectory(path)
	}
	return LoadFile(path)
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}
	return decode(path, data)
}

// decode splits a YAML stream into its tagged documents.
func decode(file string, data []byte) (*document, error) {
	doc := &document{file: file}
	dec := yaml.NewDecoder(bytes.NewReader(data))

	for {
		var n yaml.Node
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, yamlError(file, err)
		}
		if len(n.Content) == 0 {
			continue
		}

		root := n.Content[0]
		switch root.ShortTag() {
		case "!!null":
			continue

		case TagTestCase:
			var tc testCaseDoc
			if err := root.Decode(&tc); err != nil {
				return nil, yamlError(file, err)
			}
			doc.cases = append(doc.cases, &tc)

		case TagConfiguration:
			var cfg configDoc
			if err := root.Decode(&cfg); err != nil {
				return nil, yamlError(file, err)
			}
			doc.configs = append(doc.configs, &cfg)

		case "!!map":
			var s suiteDoc
			if err := root.Decode(&s); err != nil {
				return nil, yamlError(file, err)
			}
			doc.postMortem = doc.postMortem || s.PostMortem
			doc.cases = append(doc.cases, s.TestCases...)
			doc.configs = append(doc.configs, s.Configurations...)

		default:
			return nil, &LoadError{
				File:    file,
				Line:    root.Line,
				Message: fmt.Sprintf("unexpected document with tag %s", root.ShortTag()),
			}
		}
	}
	return doc, nil
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// yamlError wraps a yaml.v3 error, keeping the first line number it names.
func yamlError(file string, err error) *LoadError {
	le := &LoadError{File: file, Message: "failed to parse YAML", Cause: err}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		le.Line, _ = strconv.Atoi(m[1])
	}
	return le
}

// build validates the documents and creates the model objects.
func build(docs []*document) (*Suite, error) {
	s := &Suite{}
	configs := make(map[string]*testsuite.TestConfig)
	configFile := make(map[string]string)

	for _, d := range docs {
		if d.file != "" {
			s.Files = append(s.Files, d.file)
		}
		s.PostMortem = s.PostMortem || d.postMortem

		for _, cd := range d.configs {
			cfg, err := buildConfig(d.file, cd)
			if err != nil {
				return nil, err
			}
			if prev, ok := configFile[cfg.ID]; ok {
				return nil, &LoadError{
					File:    d.file,
					Line:    cd.line,
					Message: fmt.Sprintf("duplicate configuration %s (first declared in %s)", cfg.ID, displayFile(prev)),
				}
			}
			configs[cfg.ID] = cfg
			configFile[cfg.ID] = d.file
			s.Configs = append(s.Configs, cfg)
		}
	}

	seen := make(map[string]bool)
	for _, d := range docs {
		for _, cd := range d.cases {
			tc, err := buildTestCase(d.file, cd, configs)
			if err != nil {
				return nil, err
			}
			if seen[tc.ID] {
				return nil, &LoadError{
					File:    d.file,
					Line:    cd.line,
					Message: "duplicate testcase " + tc.ID,
				}
			}
			seen[tc.ID] = true
			s.TestCases = append(s.TestCases, tc)
		}
	}

	if len(s.TestCases) == 0 {
		return nil, &LoadError{File: strings.Join(s.Files, ","), Message: "no testcase declared"}
	}
	return s, nil
}

func displayFile(file string) string {
	if file == "" {
		return "input"
	}
	return file
}

func buildConfig(file string, cd *configDoc) (*testsuite.TestConfig, error) {
	fail := func(line int, format string, args ...any) error {
		return &LoadError{File: file, Line: line, Message: fmt.Sprintf(format, args...)}
	}

	if cd.ID == "" {
		return nil, fail(cd.line, "configuration_id is required")
	}
	if len(cd.Nodes) == 0 {
		return nil, fail(cd.line, "configuration %s declares no nodes", cd.ID)
	}

	cfg := &testsuite.TestConfig{
		ID:                cd.ID,
		URI:               cd.URI,
		Description:       cd.Description.join(),
		Nodes:             slices.Clone(cd.Nodes),
		DefaultAddressing: make(map[string]testsuite.Address, len(cd.DefaultAddressing)),
	}

	for i, ld := range cd.Topology {
		if len(ld.Nodes) != 2 {
			return nil, fail(ld.line, "link of configuration %s must connect exactly two nodes", cd.ID)
		}
		for _, n := range ld.Nodes {
			if !slices.Contains(cd.Nodes, n) {
				return nil, fail(ld.line, "link of configuration %s references unknown node %s", cd.ID, n)
			}
		}
		id := ld.ID
		if id == "" {
			id = "link_" + strconv.Itoa(i+1)
		}
		cfg.Topology = append(cfg.Topology, testsuite.Link{
			ID:            id,
			Nodes:         slices.Clone(ld.Nodes),
			CaptureFilter: ld.CaptureFilter,
		})
	}

	for _, ad := range cd.DefaultAddressing {
		if !slices.Contains(cd.Nodes, ad.Node) {
			return nil, fail(ad.line, "addressing of configuration %s references unknown node %q", cd.ID, ad.Node)
		}
		cfg.DefaultAddressing[ad.Node] = testsuite.Address{Prefix: ad.Prefix, Host: ad.Host}
	}
	return cfg, nil
}

func buildTestCase(file string, cd *testCaseDoc, configs map[string]*testsuite.TestConfig) (*testsuite.TestCase, error) {
	fail := func(line int, cause error, format string, args ...any) error {
		return &LoadError{File: file, Line: line, Message: fmt.Sprintf(format, args...), Cause: cause}
	}

	id := strings.ToUpper(strings.TrimSpace(cd.ID))
	if id == "" {
		return nil, fail(cd.line, nil, "testcase_id is required")
	}
	if len(cd.Sequence) == 0 {
		return nil, fail(cd.line, nil, "testcase %s must have at least one step", id)
	}
	cfg, ok := configs[cd.Configuration]
	if !ok {
		return nil, fail(cd.line, testsuite.ErrUnknownConfig, "testcase %s references configuration %q", id, cd.Configuration)
	}

	steps := make([]*testsuite.Step, 0, len(cd.Sequence))
	for _, sd := range cd.Sequence {
		typ := testsuite.StepType(strings.ToLower(sd.Type))
		if typ.HasNode() && sd.Node != "" && !slices.Contains(cfg.Nodes, sd.Node) {
			return nil, fail(sd.line, nil, "step %s targets node %s which is not part of configuration %s", sd.ID, sd.Node, cfg.ID)
		}
		step, err := testsuite.NewStep(sd.ID, typ, sd.Description, sd.Node, testsuite.ExecutionMode(sd.Mode))
		if err != nil {
			return nil, fail(sd.line, err, "invalid step in testcase %s", id)
		}
		steps = append(steps, step)
	}

	tc, err := testsuite.NewTestCase(id, cfg.ID, steps)
	if err != nil {
		return nil, fail(cd.line, err, "invalid testcase")
	}
	tc.URI = cd.URI
	tc.Objective = cd.Objective.join()
	tc.PreConditions = cd.PreConditions
	tc.Notes = cd.Notes.join()
	return tc, nil
}
