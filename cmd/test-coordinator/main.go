// Command test-coordinator runs an interoperability test session.
//
// It loads a test suite, connects to the session bus and walks the test
// cases as the users (or the automated IUT agents) drive the session. Every
// verdict is written to the results directory as soon as it is known; the
// session report is written and printed once the suite is finished.
//
// Usage:
//
//	test-coordinator -suite <file.yaml|dir> [flags]
//
// Flags:
//
//	-suite string           Test suite file or directory (required)
//	-bus string             Broker: "embedded", a ws:// URL or "mdns" (default "embedded")
//	-listen string          Listen address of the embedded broker (default ":8765")
//	-no-component-checks    Do not wait for the sniffing and analysis components
//	-mock-services          Run fake sniffing and analysis services (dry runs)
//	-results string         Results directory (default "results")
//	-event-log string       Bus event log file (.blog)
//	-iut-timeout duration   Wait for the IUTs to report their configuration (default 5s)
//	-protocol string        Protocol passed to the analyzer
//	-debug                  Enable debug logging
//
// Examples:
//
//	# Dry run with an embedded broker and fake services
//	test-coordinator -suite testdata/coap.yaml -mock-services
//
//	# Join the broker advertised on the local network
//	test-coordinator -suite testdata/coap.yaml -bus mdns -event-log session.blog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsismondi/ioppytest-sub000/internal/cli"
	"github.com/fsismondi/ioppytest-sub000/internal/coordinator"
	"github.com/fsismondi/ioppytest-sub000/internal/loader"
	"github.com/fsismondi/ioppytest-sub000/internal/mock"
	"github.com/fsismondi/ioppytest-sub000/internal/reporter"
	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/transport"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

const busEmbedded = "embedded"

var (
	suitePath    = flag.String("suite", "", "Test suite file or directory (required)")
	busTarget    = flag.String("bus", busEmbedded, `Broker: "embedded", a ws:// URL or "mdns"`)
	listen       = flag.String("listen", fmt.Sprintf(":%d", transport.DefaultPort), "Listen address of the embedded broker")
	noChecks     = flag.Bool("no-component-checks", false, "Do not wait for the sniffing and analysis components")
	mockServices = flag.Bool("mock-services", false, "Run fake sniffing and analysis services (dry runs)")
	resultsDir   = flag.String("results", "results", "Results directory (empty disables persistence)")
	eventLog     = flag.String("event-log", "", "Bus event log file (.blog)")
	iutTimeout   = flag.Duration("iut-timeout", coordinator.DefaultIUTConfigTimeout, "Wait for the IUTs to report their configuration")
	protocol     = flag.String("protocol", "", "Protocol passed to the analyzer")
	verbose      = flag.Bool("verbose", false, "Print step details in the session report")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current)
		return
	}
	if *suitePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -suite is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := cli.NewLogger(*debug)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("test session failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	loaded, err := loader.Load(*suitePath)
	if err != nil {
		return err
	}
	suite, err := loaded.Build()
	if err != nil {
		return err
	}
	logger.Info("test suite loaded", "files", len(loaded.Files), "testcases", len(loaded.TestCases), "configs", len(loaded.Configs))

	events, closeEvents, err := cli.OpenEventLog(*eventLog, logger, *debug)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var b bus.Bus
	if *busTarget == busEmbedded {
		srv := transport.NewServer(transport.ServerConfig{Address: *listen, Logger: logger})
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop()
		b = srv.Bus()
	} else {
		conn, err := cli.Dial(ctx, *busTarget, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		g.Go(func() error { return cli.WatchBroker(gctx, conn) })
		b = conn
	}

	client := bus.NewClient(b, bus.ClientOptions{
		Source:   coordinator.ComponentName,
		Logger:   logger,
		EventLog: events,
	})

	if *mockServices {
		stopMocks, err := startMocks(ctx, b, logger, events)
		if err != nil {
			return err
		}
		defer stopMocks()
	}

	cfg := coordinator.DefaultConfig()
	cfg.ComponentChecks = !*noChecks
	cfg.IUTConfigTimeout = *iutTimeout
	cfg.Protocol = *protocol
	cfg.Logger = logger
	cfg.EventLog = events

	var results *reporter.Dir
	if *resultsDir != "" {
		results, err = reporter.NewDir(*resultsDir)
		if err != nil {
			return err
		}
		cfg.Results = results
	}

	coord, err := coordinator.New(suite, client, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	g.Go(func() error {
		defer cancel()
		return coord.Run(gctx)
	})
	err = g.Wait()

	snap := coord.Snapshot()
	logger.Info("test session ended", "state", snap.State, "duration", time.Since(start).Round(time.Millisecond))
	if snap.Report != nil {
		reporter.NewTextReporter(os.Stdout, *verbose).ReportSession(&reporter.SessionResult{
			Session: suite.Session(),
			Reports: snap.Report,
		})
		if results != nil {
			logger.Info("results written", "dir", results.Path())
		}
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}
	return err
}

// startMocks runs fake sniffing and analysis services on b.
func startMocks(ctx context.Context, b bus.Bus, logger *slog.Logger, events log.Logger) (func(), error) {
	opts := mock.Options{Logger: logger}
	newClient := func(name string) *bus.Client {
		return bus.NewClient(b, bus.ClientOptions{Source: name, Logger: logger, EventLog: events})
	}

	sniffer := mock.NewSniffer(newClient(wire.ComponentSniffing), opts)
	if err := sniffer.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mock sniffer: %w", err)
	}
	analyzer := mock.NewAnalyzer(newClient(wire.ComponentAnalysis), opts)
	if err := analyzer.Start(ctx); err != nil {
		sniffer.Stop()
		return nil, fmt.Errorf("start mock analyzer: %w", err)
	}
	logger.Info("mock services running", "components", []string{sniffer.Name(), analyzer.Name()})

	return func() {
		analyzer.Stop()
		sniffer.Stop()
	}, nil
}
