// Package reporter renders test session results and persists them.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/verdict"
)

// Reporter formats and outputs session results.
type Reporter interface {
	// ReportSession reports the results of a whole session.
	ReportSession(result *SessionResult)

	// ReportTestCase reports the verdict of a single test case.
	ReportTestCase(id string, r testsuite.Report)
}

// SessionResult is the outcome of a test session.
type SessionResult struct {
	Session testsuite.Session
	Reports []testsuite.CaseReport
}

// Counts tallies test cases per verdict.
type Counts struct {
	Pass         int
	Inconclusive int
	Fail         int
	Aborted      int
	Error        int
	NotExecuted  int
}

// Counts returns the verdict tally of the session.
func (s *SessionResult) Counts() Counts {
	var c Counts
	for _, r := range s.Reports {
		switch r.Verdict {
		case verdict.Pass:
			c.Pass++
		case verdict.Inconclusive:
			c.Inconclusive++
		case verdict.Fail:
			c.Fail++
		case verdict.Aborted:
			c.Aborted++
		case verdict.Error:
			c.Error++
		default:
			c.NotExecuted++
		}
	}
	return c
}

// PassRate returns the percentage of executed cases that passed.
func (c Counts) PassRate() float64 {
	executed := c.Pass + c.Inconclusive + c.Fail + c.Aborted + c.Error
	if executed == 0 {
		return 0
	}
	return float64(c.Pass) / float64(executed) * 100
}

// status returns the short label of a verdict.
func status(v verdict.Value) string {
	switch v {
	case verdict.Pass:
		return "PASS"
	case verdict.Inconclusive:
		return "INCONC"
	case verdict.Fail:
		return "FAIL"
	case verdict.Aborted:
		return "ABORT"
	case verdict.Error:
		return "ERROR"
	}
	return "SKIP"
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter. Verbose output lists the
// partial verdicts of every case.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportSession reports session results in text format.
func (r *TextReporter) ReportSession(result *SessionResult) {
	fmt.Fprintf(r.writer, "\n=== Session: %s ===\n", sessionName(result.Session))
	if len(result.Session.Users) > 0 {
		fmt.Fprintf(r.writer, "Users: %s\n", strings.Join(result.Session.Users, ", "))
	}
	fmt.Fprintf(r.writer, "\n")

	for _, cr := range result.Reports {
		r.ReportTestCase(cr.TestCaseID, cr.Report)
	}

	c := result.Counts()
	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:        %d\n", len(result.Reports))
	fmt.Fprintf(r.writer, "Passed:       %d\n", c.Pass)
	fmt.Fprintf(r.writer, "Inconclusive: %d\n", c.Inconclusive)
	fmt.Fprintf(r.writer, "Failed:       %d\n", c.Fail)
	fmt.Fprintf(r.writer, "Aborted:      %d\n", c.Aborted)
	fmt.Fprintf(r.writer, "Error:        %d\n", c.Error)
	fmt.Fprintf(r.writer, "Not executed: %d\n", c.NotExecuted)
	if len(result.Reports) > c.NotExecuted {
		fmt.Fprintf(r.writer, "Pass Rate: %.1f%%\n", c.PassRate())
	}
}

// ReportTestCase reports a single verdict in text format.
func (r *TextReporter) ReportTestCase(id string, rep testsuite.Report) {
	fmt.Fprintf(r.writer, "[%s] %s - %s\n", status(rep.Verdict), id, rep.Description)
	if !r.verbose {
		return
	}
	for _, p := range rep.Partials {
		v := "postponed"
		if p.Verdict != nil {
			v = p.Verdict.String()
		}
		fmt.Fprintf(r.writer, "    [%s] %s: %s\n", v, p.ID, p.Message)
	}
	if rep.CaptureDigest != "" {
		fmt.Fprintf(r.writer, "    capture: %s\n", rep.CaptureDigest)
	}
}

func sessionName(s testsuite.Session) string {
	switch {
	case s.Shortname != "" && s.ID != "":
		return s.Shortname + " (" + s.ID + ")"
	case s.Shortname != "":
		return s.Shortname
	case s.ID != "":
		return s.ID
	}
	return "unnamed"
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONSessionResult is the JSON representation of session results.
type JSONSessionResult struct {
	SessionID    string                 `json:"session_id,omitempty"`
	Shortname    string                 `json:"shortname,omitempty"`
	Users        []string               `json:"users,omitempty"`
	Total        int                    `json:"total"`
	Passed       int                    `json:"passed"`
	Inconclusive int                    `json:"inconclusive"`
	Failed       int                    `json:"failed"`
	Aborted      int                    `json:"aborted"`
	Errors       int                    `json:"error"`
	NotExecuted  int                    `json:"not_executed"`
	PassRate     float64                `json:"pass_rate"`
	TestCases    []testsuite.CaseReport `json:"testcases"`
}

// ReportSession reports session results in JSON format.
func (r *JSONReporter) ReportSession(result *SessionResult) {
	r.writeJSON(toJSON(result))
}

// ReportTestCase reports a single verdict in JSON format.
func (r *JSONReporter) ReportTestCase(id string, rep testsuite.Report) {
	r.writeJSON(testsuite.CaseReport{TestCaseID: id, Report: rep})
}

func toJSON(result *SessionResult) JSONSessionResult {
	c := result.Counts()
	reports := result.Reports
	if reports == nil {
		reports = []testsuite.CaseReport{}
	}
	return JSONSessionResult{
		SessionID:    result.Session.ID,
		Shortname:    result.Session.Shortname,
		Users:        result.Session.Users,
		Total:        len(result.Reports),
		Passed:       c.Pass,
		Inconclusive: c.Inconclusive,
		Failed:       c.Fail,
		Aborted:      c.Aborted,
		Errors:       c.Error,
		NotExecuted:  c.NotExecuted,
		PassRate:     c.PassRate(),
		TestCases:    reports,
	}
}

func (r *JSONReporter) writeJSON(v any) {
	data, err := marshalJSON(v, r.pretty)
	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// JUnitReporter outputs JUnit XML format for CI integration. Fail and
// inconclusive verdicts are failures, error and aborted verdicts are errors.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportSession reports session results in JUnit XML format.
func (r *JUnitReporter) ReportSession(result *SessionResult) {
	var b strings.Builder
	c := result.Counts()

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")

	fmt.Fprintf(&b, `<testsuite name="%s" tests="%d" failures="%d" errors="%d" skipped="%d">`,
		escapeXML(sessionName(result.Session)),
		len(result.Reports),
		c.Fail+c.Inconclusive,
		c.Error+c.Aborted,
		c.NotExecuted)
	b.WriteString("\n")

	for _, cr := range result.Reports {
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s">`,
			escapeXML(cr.TestCaseID),
			escapeXML(sessionName(result.Session)))
		b.WriteString("\n")

		switch cr.Verdict {
		case verdict.Pass:
		case verdict.None:
			fmt.Fprintf(&b, `    <skipped message="%s"/>`, escapeXML(cr.Description))
			b.WriteString("\n")
		case verdict.Fail, verdict.Inconclusive:
			writeJUnitDetail(&b, "failure", cr.Report)
		default:
			writeJUnitDetail(&b, "error", cr.Report)
		}

		b.WriteString("  </testcase>\n")
	}

	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

func writeJUnitDetail(b *strings.Builder, element string, rep testsuite.Report) {
	fmt.Fprintf(b, `    <%s type="%s" message="%s">`, element, rep.Verdict, escapeXML(rep.Description))
	b.WriteString("\n")
	b.WriteString("      <![CDATA[")
	for _, p := range rep.Partials {
		if p.Verdict != nil && *p.Verdict != verdict.Pass {
			fmt.Fprintf(b, "%s (%s): %s\n", p.ID, *p.Verdict, p.Message)
		}
	}
	b.WriteString("]]>\n")
	fmt.Fprintf(b, "    </%s>\n", element)
}

// ReportTestCase reports a single verdict in JUnit format, wrapped in a
// minimal testsuite.
func (r *JUnitReporter) ReportTestCase(id string, rep testsuite.Report) {
	r.ReportSession(&SessionResult{
		Session: testsuite.Session{Shortname: "Single Testcase"},
		Reports: []testsuite.CaseReport{{TestCaseID: id, Report: rep}},
	})
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

// Compile-time interface satisfaction checks.
var (
	_ Reporter = (*TextReporter)(nil)
	_ Reporter = (*JSONReporter)(nil)
	_ Reporter = (*JUnitReporter)(nil)
)
