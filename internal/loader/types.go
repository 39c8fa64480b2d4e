package loader

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document tags of a test description stream.
const (
	TagTestCase      = "!testcase"
	TagConfiguration = "!configuration"
)

// LoadError provides details about a test suite loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(":")
	}
	if e.Line > 0 {
		b.WriteString(strconv.Itoa(e.Line))
		b.WriteString(":")
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// lines accepts either a single string or a list of strings.
type lines []string

func (l *lines) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		if n.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = lines{n.Value}
		return nil
	}
	var list []string
	if err := n.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

func (l lines) join() string {
	return strings.Join(l, " ")
}

// suiteDoc is an untagged document grouping cases and configurations.
type suiteDoc struct {
	PostMortem     bool           `yaml:"post_mortem"`
	TestCases      []*testCaseDoc `yaml:"testcases"`
	Configurations []*configDoc   `yaml:"configurations"`
}

type testCaseDoc struct {
	ID            string     `yaml:"testcase_id"`
	URI           string     `yaml:"uri"`
	Objective     lines      `yaml:"objective"`
	Configuration string     `yaml:"configuration"`
	PreConditions lines      `yaml:"pre_conditions"`
	Notes         lines      `yaml:"notes"`
	Sequence      []*stepDoc `yaml:"sequence"`

	line int
}

func (d *testCaseDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain testCaseDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type stepDoc struct {
	ID          string `yaml:"step_id"`
	Type        string `yaml:"type"`
	Description lines  `yaml:"description"`
	Node        string `yaml:"node"`
	Mode        string `yaml:"mode"`

	line int
}

func (d *stepDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain stepDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type configDoc struct {
	ID                string        `yaml:"configuration_id"`
	URI               string        `yaml:"uri"`
	Description       lines         `yaml:"description"`
	Nodes             []string      `yaml:"nodes"`
	Topology          []*linkDoc    `yaml:"topology"`
	DefaultAddressing []*addressDoc `yaml:"default_addressing"`

	line int
}

func (d *configDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain configDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type linkDoc struct {
	ID            string   `yaml:"link_id"`
	Nodes         []string `yaml:"nodes"`
	CaptureFilter string   `yaml:"capture_filter"`

	line int
}

func (d *linkDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain linkDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}

type addressDoc struct {
	Node   string `yaml:"node"`
	Prefix string `yaml:"ipv6_prefix"`
	Host   string `yaml:"ipv6_host"`

	line int
}

func (d *addressDoc) UnmarshalYAML(n *yaml.Node) error {
	type plain addressDoc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.line = n.Line
	return nil
}
