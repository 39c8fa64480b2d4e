package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeBroker is the service type of session bus brokers.
	ServiceTypeBroker = "_ioppytest-bus._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPath is the websocket path advertised when none is given.
	DefaultPath = "/bus"
)

// TXT record key constants.
const (
	TXTKeyPath      = "path"
	TXTKeyVersion   = "ver"
	TXTKeySessionID = "sid"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("broker not found")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrInvalidPort         = errors.New("invalid port")
)

// BrokerInfo describes an advertised broker.
type BrokerInfo struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Port the broker listens on.
	Port uint16

	// Path is the websocket path of the bus.
	Path string

	// Version of the broker.
	Version string

	// SessionID restricts the broker to one session (optional).
	SessionID string
}

// Validate checks that info can be advertised.
func (i *BrokerInfo) Validate() error {
	if err := ValidateInstanceName(i.InstanceName); err != nil {
		return err
	}
	if i.Port == 0 {
		return ErrInvalidPort
	}
	return nil
}

// BrokerService is a broker found by browsing.
type BrokerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Path         string
	Version      string
	SessionID    string
}

// URL returns the websocket URL of the broker, using its first address.
func (s *BrokerService) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(int(s.Port))), path)
}
