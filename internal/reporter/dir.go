package reporter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
)

// Result file names.
const (
	SessionReportFile = "session_report.json"
	SessionTextFile   = "session_report.txt"
	SessionJUnitFile  = "session_report.xml"
	VerdictSuffix     = "_verdict.json"
)

// ErrInvalidTestCaseID is returned for ids that can't name a file.
var ErrInvalidTestCaseID = errors.New("invalid testcase id for a result file")

// Dir persists reports as files of a results directory.
type Dir struct {
	path string
}

// NewDir creates the results directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory.
func (d *Dir) Path() string {
	return d.path
}

// VerdictPath returns the file the report of test case id is written to.
func (d *Dir) VerdictPath(id string) string {
	return filepath.Join(d.path, id+VerdictSuffix)
}

// WriteTestCase writes <id>_verdict.json.
func (d *Dir) WriteTestCase(id string, r testsuite.Report) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTestCaseID, id)
	}
	data, err := marshalJSON(testsuite.CaseReport{TestCaseID: id, Report: r}, true)
	if err != nil {
		return err
	}
	return writeFileAtomic(d.VerdictPath(id), append(data, '\n'))
}

// WriteSession writes the session report as JSON, text and JUnit XML.
func (d *Dir) WriteSession(s testsuite.Session, reports []testsuite.CaseReport) error {
	result := &SessionResult{Session: s, Reports: reports}

	var js, txt, junit bytes.Buffer
	NewJSONReporter(&js, true).ReportSession(result)
	NewTextReporter(&txt, true).ReportSession(result)
	NewJUnitReporter(&junit).ReportSession(result)

	return errors.Join(
		writeFileAtomic(filepath.Join(d.path, SessionReportFile), js.Bytes()),
		writeFileAtomic(filepath.Join(d.path, SessionTextFile), txt.Bytes()),
		writeFileAtomic(filepath.Join(d.path, SessionJUnitFile), junit.Bytes()),
	)
}

// writeFileAtomic replaces path through a temporary file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
