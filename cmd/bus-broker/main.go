// Command bus-broker runs the session bus: a websocket broker the test
// coordinator, the testing tool services, the IUT agents and the operator
// console connect to. The broker is advertised with mDNS so that components
// can join with -bus mdns.
//
// Usage:
//
//	bus-broker [flags]
//
// Flags:
//
//	-listen string      Listen address (default ":8765")
//	-name string        mDNS instance name (default "ioppytest-<hostname>")
//	-session string     Session id advertised to browsers
//	-interface string   Network interface to advertise on (default: all)
//	-no-mdns            Do not advertise the broker
//	-event-log string   Record every routed envelope to a .blog file
//	-debug              Enable debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsismondi/ioppytest-sub000/internal/cli"
	"github.com/fsismondi/ioppytest-sub000/pkg/discovery"
	"github.com/fsismondi/ioppytest-sub000/pkg/transport"
	"github.com/fsismondi/ioppytest-sub000/pkg/version"
)

var (
	listen      = flag.String("listen", fmt.Sprintf(":%d", transport.DefaultPort), "Listen address")
	name        = flag.String("name", "", `mDNS instance name (default "ioppytest-<hostname>")`)
	session     = flag.String("session", "", "Session id advertised to browsers")
	iface       = flag.String("interface", "", "Network interface to advertise on (default: all)")
	noMDNS      = flag.Bool("no-mdns", false, "Do not advertise the broker")
	eventLog    = flag.String("event-log", "", "Record every routed envelope to a .blog file")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current)
		return
	}

	logger := cli.NewLogger(*debug)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("broker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	events, closeEvents, err := cli.OpenEventLog(*eventLog, logger, false)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := transport.DefaultServerConfig()
	cfg.Address = *listen
	cfg.Logger = logger
	cfg.EventLog = events
	cfg.OnConnect = func(connID string) { logger.Debug("client connected", "conn", connID) }
	cfg.OnDisconnect = func(connID string) { logger.Debug("client disconnected", "conn", connID) }

	srv := transport.NewServer(cfg)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	if !*noMDNS {
		info, err := brokerInfo(srv.Addr())
		if err != nil {
			return err
		}
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{Interface: *iface})
		if err := adv.Advertise(ctx, info); err != nil {
			return err
		}
		defer adv.Stop()
		logger.Info("broker advertised", "instance", info.InstanceName, "service", discovery.ServiceTypeBroker, "port", info.Port)
	}

	<-ctx.Done()
	logger.Info("shutting down", "status", srv.Status())
	return nil
}

func brokerInfo(addr net.Addr) (*discovery.BrokerInfo, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected listen address %v", addr)
	}
	instance := *name
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "local"
		}
		instance = "ioppytest-" + host
		if len(instance) > discovery.MaxInstanceNameLen {
			instance = instance[:discovery.MaxInstanceNameLen]
		}
	}
	return &discovery.BrokerInfo{
		InstanceName: instance,
		Port:         uint16(tcp.Port),
		Path:         transport.PathBus,
		Version:      version.Current,
		SessionID:    *session,
	}, nil
}
