package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/log"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

// DefaultPort is the default broker port.
const DefaultPort = 8765

// HTTP paths served by the broker.
const (
	PathBus     = "/bus"
	PathHealthz = "/healthz"
	PathStatus  = "/status"
)

// ServerConfig configures a broker.
type ServerConfig struct {
	// Address to listen on (e.g., ":8765" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum websocket message size.
	MaxMessageSize int64

	// Logger for operational logs (optional).
	Logger *slog.Logger

	// EventLog records every routed envelope (optional).
	EventLog log.Logger

	// OnConnect is called when a client connected.
	OnConnect func(connID string)

	// OnDisconnect is called when a client disconnected.
	OnDisconnect func(connID string)
}

// DefaultServerConfig returns a config listening on DefaultPort.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        fmt.Sprintf(":%d", DefaultPort),
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Status is served as JSON on /status.
type Status struct {
	Connections   int    `json:"connections"`
	Subscriptions int    `json:"subscriptions"`
	Published     uint64 `json:"published"`
	Uptime        string `json:"uptime"`
}

// Server is a websocket broker.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	events   log.Logger
	bus      *bus.Memory
	router   *mux.Router
	upgrader websocket.Upgrader

	httpSrv  *http.Server
	listener net.Listener

	conns   map[*serverConn]struct{}
	connsMu sync.RWMutex

	published atomic.Uint64
	started   time.Time
	running   atomic.Bool
	wg        sync.WaitGroup
}

// NewServer creates a broker. Use Handler to mount it on an existing HTTP
// server, or Start to listen on config.Address.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  config,
		logger:  logger.With("component", "bus-broker"),
		events:  log.OrNoop(config.EventLog),
		bus:     bus.NewMemory(),
		conns:   make(map[*serverConn]struct{}),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc(PathBus, s.handleBus).Methods(http.MethodGet)
	r.HandleFunc(PathHealthz, s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc(PathStatus, s.handleStatus).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the broker.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Bus returns the in-process bus behind the broker. Components in the same
// process can use it directly.
func (s *Server) Bus() *bus.Memory {
	return s.bus
}

// Start starts listening and serving.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("broker stopped", "error", err)
		}
	}()

	s.logger.Info("broker listening", "address", listener.Addr().String())
	return nil
}

// Stop closes all connections, the listener when started, and the bus.
func (s *Server) Stop() error {
	var err error
	if s.running.Swap(false) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpSrv.Shutdown(ctx)
	}

	// Hijacked websocket connections are not closed by Shutdown.
	s.connsMu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.bus.Close()
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// URL returns the websocket URL of a started server.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "ws://" + s.listener.Addr().String() + PathBus
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Status returns broker statistics.
func (s *Server) Status() Status {
	return Status{
		Connections:   s.ConnectionCount(),
		Subscriptions: s.bus.SubscriptionCount(),
		Published:     s.published.Load(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Warn("status encoding failed", "error", err)
	}
}

func (s *Server) handleBus(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.config.MaxMessageSize)

	c := &serverConn{
		id:     uuid.NewString(),
		ws:     ws,
		server: s,
		out:    bus.NewMailbox[*Frame](),
		subs:   make(map[uint32]bus.Subscription),
		done:   make(chan struct{}),
	}

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	s.logger.Debug("client connected", "conn_id", c.id, "remote", r.RemoteAddr)
	if s.config.OnConnect != nil {
		s.config.OnConnect(c.id)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()
	c.readLoop()
	c.close()

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()

	s.logger.Debug("client disconnected", "conn_id", c.id)
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c.id)
	}
}

// serverConn is one client connection. A single reader and a single writer
// goroutine serve it; deliveries are queued in an unbounded mailbox so the
// bus never waits on a slow client.
type serverConn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	out    *bus.Mailbox[*Frame]

	subsMu sync.Mutex
	subs   map[uint32]bus.Subscription

	done      chan struct{}
	closeOnce sync.Once
}

func (c *serverConn) send(f *Frame) {
	c.out.Push(f)
}

func (c *serverConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()

		c.subsMu.Lock()
		for id, sub := range c.subs {
			sub.Unsubscribe()
			delete(c.subs, id)
		}
		c.subsMu.Unlock()
	})
}

func (c *serverConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.server.logger.Debug("read failed", "conn_id", c.id, "error", err)
				}
			}
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			c.server.logger.Warn("dropping invalid frame", "conn_id", c.id, "error", err)
			continue
		}
		c.handleFrame(f)
	}
}

func (c *serverConn) handleFrame(f *Frame) {
	switch f.Type {
	case FramePublish:
		if err := c.server.bus.Publish(context.Background(), f.Envelope); err != nil {
			c.server.logger.Warn("publish failed", "conn_id", c.id, "routing_key", f.Envelope.RoutingKey, "error", err)
			return
		}
		c.server.published.Add(1)
		c.server.events.Log(log.NewMessageEvent("bus-broker", log.DirectionIn, f.Envelope))

	case FrameSubscribe:
		ack := &Frame{Type: FrameAck, Seq: f.Seq}
		subID := f.SubID
		sub, err := c.server.bus.Subscribe(f.Patterns, func(env *wire.Envelope) {
			c.send(&Frame{Type: FrameDeliver, SubID: subID, Envelope: env})
		})
		if err != nil {
			ack.Error = err.Error()
		} else {
			c.subsMu.Lock()
			if old, ok := c.subs[subID]; ok {
				old.Unsubscribe()
			}
			c.subs[subID] = sub
			c.subsMu.Unlock()
		}
		c.send(ack)

	case FrameUnsubscribe:
		c.subsMu.Lock()
		if sub, ok := c.subs[f.SubID]; ok {
			sub.Unsubscribe()
			delete(c.subs, f.SubID)
		}
		c.subsMu.Unlock()
		c.send(&Frame{Type: FrameAck, Seq: f.Seq})

	default:
		c.server.logger.Warn("unexpected frame from client", "conn_id", c.id, "type", f.Type)
	}
}

func (c *serverConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.out.Notify():
			for {
				f, ok := c.out.Pop()
				if !ok {
					break
				}
				data, err := EncodeFrame(f)
				if err != nil {
					c.server.logger.Warn("frame encoding failed", "conn_id", c.id, "error", err)
					continue
				}
				if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
					c.close()
					return
				}
			}
		}
	}
}
