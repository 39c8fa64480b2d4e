package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 10 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before disconnect.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings. Negative disables
	// keep-alive.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead connection goes unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs == 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// keepAlive sends sequenced pings and reports a dead peer after too many
// unanswered ones.
type keepAlive struct {
	config    KeepAliveConfig
	sendPing  func(payload []byte) error
	onTimeout func()

	mu      sync.Mutex
	seq     uint32
	pending bool
	sentAt  time.Time
	missed  int
	pongs   chan uint32
}

func newKeepAlive(config KeepAliveConfig, sendPing func([]byte) error, onTimeout func()) *keepAlive {
	return &keepAlive{
		config:    config.withDefaults(),
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongs:     make(chan uint32, 1),
	}
}

// pingPayload encodes a ping sequence number.
func pingPayload(seq uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, seq)
	return b
}

// pongReceived is installed as the websocket pong handler.
func (k *keepAlive) pongReceived(appData string) {
	if len(appData) != 4 {
		return
	}
	select {
	case k.pongs <- binary.BigEndian.Uint32([]byte(appData)):
	default:
	}
}

// run pings until ctx is done or the peer is declared dead.
func (k *keepAlive) run(ctx context.Context) {
	if k.config.PingInterval < 0 {
		return
	}
	ticker := time.NewTicker(k.config.PingInterval)
	defer ticker.Stop()

	k.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case seq := <-k.pongs:
			k.mu.Lock()
			if k.pending && seq == k.seq {
				k.pending = false
				k.missed = 0
			}
			k.mu.Unlock()
		case <-ticker.C:
			if k.expired() {
				if k.onTimeout != nil {
					k.onTimeout()
				}
				return
			}
			k.ping()
		}
	}
}

// expired counts an unanswered ping and reports whether the limit was hit.
func (k *keepAlive) expired() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pending && time.Since(k.sentAt) >= k.config.PongTimeout {
		k.pending = false
		k.missed++
	}
	return k.missed >= k.config.MaxMissedPongs
}

func (k *keepAlive) ping() {
	k.mu.Lock()
	k.seq++
	seq := k.seq
	k.pending = true
	k.sentAt = time.Now()
	k.mu.Unlock()

	// A failed send is counted when the pong does not arrive.
	_ = k.sendPing(pingPayload(seq))
}
