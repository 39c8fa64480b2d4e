// Command session-console is the operator console of a test session. It
// configures and drives the session, answers the steps meant for a user and
// prints what the coordinator announces.
//
// Usage:
//
//	session-console [flags]
//
// Flags:
//
//	-bus string        Broker URL or "mdns" (default "ws://localhost:8765/bus")
//	-session string    Session id (default: a new UUID)
//	-users string      Comma separated session users
//	-shortname string  Session short name
//	-timeout duration  Timeout of requests to the coordinator (default 10s)
//	-event-log string  Bus event log file (.blog)
//	-debug             Enable debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/fsismondi/ioppytest-sub000/cmd/session-console/console"
	"github.com/fsismondi/ioppytest-sub000/internal/cli"
	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
)

var (
	busTarget = flag.String("bus", cli.DefaultBrokerURL, `Broker URL or "mdns"`)
	sessionID = flag.String("session", "", "Session id (default: a new UUID)")
	users     = flag.String("users", "", "Comma separated session users")
	shortname = flag.String("shortname", "", "Session short name")
	timeout   = flag.Duration("timeout", bus.DefaultRequestTimeout, "Timeout of requests to the coordinator")
	eventLog  = flag.String("event-log", "", "Bus event log file (.blog)")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "session> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Logs go through readline to keep the prompt intact.
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	events, closeEvents, err := cli.OpenEventLog(*eventLog, logger, *debug)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	conn, err := cli.Dial(ctx, *busTarget, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}
	session := console.Session{ID: id, Shortname: *shortname}
	if *users != "" {
		session.Users = strings.Split(*users, ",")
	}

	client := bus.NewClient(conn, bus.ClientOptions{
		Source:         console.Name,
		Logger:         logger,
		EventLog:       events,
		RequestTimeout: *timeout,
	})
	client.SetSessionID(id)

	c := console.New(client, session, rl.Stdout())
	c.SetTimeout(*timeout)
	sub, err := c.Watch()
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := cli.WatchBroker(runCtx, conn); err != nil {
			logger.Error("exiting", "error", err)
			rl.Close()
		}
	}()

	logger.Info("console ready", "session", id)
	c.Run(runCtx, rl)
	return nil
}
