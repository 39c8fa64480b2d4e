// Command iut-agent automates one node of a test session. It runs the
// commands of an adapter file whenever the coordinator asks its node to
// configure itself, execute a stimuli or verify a step.
//
// Usage:
//
//	iut-agent -adapter <adapter.yaml> [flags]
//
// Flags:
//
//	-adapter string            Command adapter file (required)
//	-bus string                Broker URL or "mdns" (default "ws://localhost:8765/bus")
//	-start-testcases           Start every ready test case the adapter implements
//	-automated-only            Leave user assisted steps to the user
//	-stop-on-report            Exit once the session report is published
//	-stimuli-timeout duration  Bound on a single stimuli (default 15s)
//	-event-log string          Bus event log file (.blog)
//	-debug                     Enable debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fsismondi/ioppytest-sub000/internal/cli"
	"github.com/fsismondi/ioppytest-sub000/internal/reporter"
	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/iut"
	"github.com/fsismondi/ioppytest-sub000/pkg/testsuite"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
)

var (
	adapterPath    = flag.String("adapter", "", "Command adapter file (required)")
	busTarget      = flag.String("bus", cli.DefaultBrokerURL, `Broker URL or "mdns"`)
	startTestCases = flag.Bool("start-testcases", false, "Start every ready test case the adapter implements")
	automatedOnly  = flag.Bool("automated-only", false, "Leave user assisted steps to the user")
	stopOnReport   = flag.Bool("stop-on-report", false, "Exit once the session report is published")
	stimuliTimeout = flag.Duration("stimuli-timeout", iut.DefaultStimuliTimeout, "Bound on a single stimuli")
	eventLog       = flag.String("event-log", "", "Bus event log file (.blog)")
	debug          = flag.Bool("debug", false, "Enable debug logging")
	showVersion    = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current)
		return
	}
	if *adapterPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -adapter is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := cli.NewLogger(*debug)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	adapter, err := iut.LoadCommandAdapter(*adapterPath, logger)
	if err != nil {
		return err
	}

	events, closeEvents, err := cli.OpenEventLog(*eventLog, logger, *debug)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := cli.Dial(ctx, *busTarget, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg := iut.DefaultAgentConfig()
	cfg.StimuliTimeout = *stimuliTimeout
	cfg.StartTestCases = *startTestCases
	cfg.AutomatedOnly = *automatedOnly
	cfg.StopOnReport = *stopOnReport
	cfg.Logger = logger

	client := bus.NewClient(conn, bus.ClientOptions{
		Source:   iut.ComponentPrefix + adapter.Node(),
		Logger:   logger,
		EventLog: events,
	})
	agent, err := iut.NewAgent(adapter, client, cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return cli.WatchBroker(gctx, conn) })
	g.Go(func() error {
		defer cancel()
		err := agent.Run(gctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	stats := agent.Stats()
	logger.Info("agent done",
		"configured", stats.Configured,
		"stimuli", stats.Stimuli,
		"stimuli_failed", stats.StimuliFailed,
		"verified", stats.Verified,
		"skipped", stats.Skipped,
		"started", stats.Started)

	if report := agent.Report(); report != nil {
		reporter.NewTextReporter(os.Stdout, false).ReportSession(&reporter.SessionResult{
			Session: testsuite.Session{Shortname: adapter.Node()},
			Reports: report,
		})
	}
	return nil
}
