// Package cli holds the setup shared by the session commands: logging, the
// bus event log and the broker connection.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsismondi/ioppytest-sub000/pkg/discovery"
	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/transport"
)

// BrokerMDNS selects the first broker found with mDNS.
const BrokerMDNS = "mdns"

// ErrBrokerLost is returned by WatchBroker when the connection drops.
var ErrBrokerLost = errors.New("broker connection lost")

// DefaultBrokerURL is the broker of a local deployment.
var DefaultBrokerURL = fmt.Sprintf("ws://localhost:%d%s", transport.DefaultPort, transport.PathBus)

// NewLogger returns a text logger writing to stderr, at debug level when
// debug is set.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// OpenEventLog opens the bus event log at path. With debug set, events are
// also written to logger. The returned close function is never nil.
func OpenEventLog(path string, logger *slog.Logger, debug bool) (log.Logger, func() error, error) {
	var loggers []log.Logger
	closer := func() error { return nil }

	if path != "" {
		if !strings.HasSuffix(path, log.FileExtension) {
			logger.Warn("event log without the usual extension", "path", path, "extension", log.FileExtension)
		}
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, closer, fmt.Errorf("open event log: %w", err)
		}
		loggers = append(loggers, fl)
		closer = fl.Close
	}
	if debug {
		loggers = append(loggers, log.NewSlogAdapter(logger).WithLevel(slog.LevelDebug))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return log.NewMultiLogger(loggers...), closer, nil
	}
}

// ResolveBroker returns the websocket URL of target: a URL, BrokerMDNS, or
// empty for DefaultBrokerURL.
func ResolveBroker(ctx context.Context, target string, logger *slog.Logger) (string, error) {
	switch target {
	case "":
		return DefaultBrokerURL, nil
	case BrokerMDNS:
		logger.Info("browsing for a broker", "service", discovery.ServiceTypeBroker)
		svc, err := discovery.NewBrowser(discovery.BrowserConfig{}).Find(ctx, discovery.BrowseTimeout)
		if err != nil {
			return "", fmt.Errorf("find broker: %w", err)
		}
		logger.Info("broker found", "instance", svc.InstanceName, "url", svc.URL())
		return svc.URL(), nil
	}
	if !strings.HasPrefix(target, "ws://") && !strings.HasPrefix(target, "wss://") {
		return "", fmt.Errorf("bad broker %q: want a ws:// URL or %q", target, BrokerMDNS)
	}
	return target, nil
}

// Dial resolves target and connects to the broker.
func Dial(ctx context.Context, target string, logger *slog.Logger) (*transport.Client, error) {
	url, err := ResolveBroker(ctx, target, logger)
	if err != nil {
		return nil, err
	}
	c, err := transport.Dial(ctx, url, transport.ClientConfig{Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to broker", "url", url)
	return c, nil
}

// WatchBroker blocks until c is closed or ctx is done. It returns
// ErrBrokerLost in the first case, nil in the second.
func WatchBroker(ctx context.Context, c *transport.Client) error {
	select {
	case <-c.Done():
		if ctx.Err() != nil {
			return nil
		}
		return ErrBrokerLost
	case <-ctx.Done():
		return nil
	}
}
