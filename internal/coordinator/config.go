package coordinator

import (
	"log/slog"
	"time"

	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// Default timing of the coordinator.
const (
	DefaultReadinessTimeout = 45 * time.Second
	DefaultIUTConfigTimeout = 5 * time.Second
	DefaultSnifferTimeout   = 10 * time.Second
	DefaultAnalyzerTimeout  = 30 * time.Second
)

// ComponentName is the name the coordinator announces itself with.
const ComponentName = wire.ComponentTestCoordination

// ResultWriter persists reports as they are produced.
type ResultWriter interface {
	WriteTestCase(id string, r testsuite.Report) error
	WriteSession(s testsuite.Session, reports []testsuite.CaseReport) error
}

// Config configures a Coordinator.
type Config struct {
	// Components must announce themselves before the session can be
	// configured. Ignored when ComponentChecks is false.
	Components      []string
	ComponentChecks bool

	// VersionConstraint is checked against the version each component
	// announces. Empty uses version.DefaultConstraint.
	VersionConstraint string

	ReadinessTimeout time.Duration

	// IUTConfigTimeout bounds the wait for the IUTs to report their
	// configuration. The test case is offered anyway once it expires.
	IUTConfigTimeout time.Duration

	SnifferTimeout  time.Duration
	AnalyzerTimeout time.Duration

	// Protocol is passed to the analyzer.
	Protocol string

	// Sniffer and Analyzer default to the bus services.
	Sniffer  Sniffer
	Analyzer Analyzer

	// Results receives every report. Nil disables persistence.
	Results ResultWriter

	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger

	// EventLog records state machine transitions.
	EventLog log.Logger
}

// DefaultConfig returns the default configuration: readiness checks on for
// the sniffing and analysis components.
func DefaultConfig() Config {
	return Config{
		Components:       []string{wire.ComponentSniffing, wire.ComponentAnalysis},
		ComponentChecks:  true,
		ReadinessTimeout: DefaultReadinessTimeout,
		IUTConfigTimeout: DefaultIUTConfigTimeout,
		SnifferTimeout:   DefaultSnifferTimeout,
		AnalyzerTimeout:  DefaultAnalyzerTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = DefaultReadinessTimeout
	}
	if c.IUTConfigTimeout <= 0 {
		c.IUTConfigTimeout = DefaultIUTConfigTimeout
	}
	if c.SnifferTimeout <= 0 {
		c.SnifferTimeout = DefaultSnifferTimeout
	}
	if c.AnalyzerTimeout <= 0 {
		c.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.EventLog = log.OrNoop(c.EventLog)
}
