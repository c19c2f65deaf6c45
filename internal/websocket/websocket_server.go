package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/engine"
	"github.com/luciancaetano/fiftysocket/internal/logging"
	"github.com/luciancaetano/fiftysocket/internal/metrics"
	"github.com/luciancaetano/fiftysocket/internal/protocol"
)

const (
	// DefaultMaxMessageSize is the largest inbound frame accepted. Larger
	// frames close the connection with 1009 instead of being decoded.
	DefaultMaxMessageSize = protocol.MaxFrameSize

	// Time allowed to hand a close event to the engine.
	engineTimeout = 5 * time.Second
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the handshake completes and the engine has been
// told about the connection, before the read loop starts.
//
// Note: This function is called synchronously during connection setup.
// Avoid long-running operations that could block the connection.
type OnConnectFn = func(client fiftysocket.Conn)

// OnClientDisconnectFn is called when a client disconnects. voluntary is true
// when the client sent a normal or going-away close frame.
type OnClientDisconnectFn = func(client fiftysocket.Conn, voluntary bool)

// Engine is the protocol engine the transport reports connection events to.
type Engine interface {
	Open(ctx context.Context, c fiftysocket.Conn) error
	Receive(ctx context.Context, c fiftysocket.Conn, data []byte) error
	Close(ctx context.Context, c fiftysocket.Conn) error
	Fail(ctx context.Context, c fiftysocket.Conn, err error) error
	Stats() fiftysocket.Stats
}

type ServerConfig struct {
	Addr               string
	Paths              []string
	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// Engine receives connection events. When nil the server creates its own
	// engine and runs it between Start and Stop.
	Engine Engine

	// MaxMessageSize defaults to DefaultMaxMessageSize, which is also its
	// upper bound.
	MaxMessageSize int64

	// UpgradeRateLimit caps upgrade requests per minute per client IP. Zero
	// disables the limit.
	UpgradeRateLimit int

	// CORSOrigins are allowed to read /health from a browser. Defaults to "*".
	CORSOrigins []string

	MetricsEnabled bool

	Logger *zerolog.Logger
}

// DefaultPaths returns the upgrade paths Phoenix clients connect to.
func DefaultPaths() []string {
	return []string{"/socket", "/socket/websocket"}
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server is the WebSocket transport. It upgrades requests on the allowed
// paths and feeds every connection's events to the engine.
type Server struct {
	addr             string
	paths            []string
	server           *http.Server
	listener         net.Listener
	clients          sync.Map // map[string]*Client
	handlers         sync.WaitGroup
	rateLimitConfig  *RateLimitConfig
	maxMessageSize   int64
	upgradeRateLimit int
	corsOrigins      []string
	metricsEnabled   bool

	engine       Engine
	owned        *engine.ProtocolServer // set when the server runs its own engine
	stopEngine   context.CancelFunc
	engineDone   chan struct{}
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates a server from cfg. Missing values take their defaults.
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = DefaultPaths()
	}
	if cfg.MaxMessageSize <= 0 || cfg.MaxMessageSize > protocol.MaxFrameSize {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	log := logging.Component("websocket")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	s := &Server{
		addr:             cfg.Addr,
		paths:            cfg.Paths,
		rateLimitConfig:  cfg.RateLimitConfig,
		maxMessageSize:   cfg.MaxMessageSize,
		upgradeRateLimit: cfg.UpgradeRateLimit,
		corsOrigins:      cfg.CORSOrigins,
		metricsEnabled:   cfg.MetricsEnabled,
		engine:           cfg.Engine,
		onConnect:        cfg.OnConnect,
		onDisconnect:     cfg.OnClientDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log: log,
	}

	if s.engine == nil {
		s.owned = engine.New()
		s.engine = s.owned
	}
	return s
}

// Start binds the listener and begins serving. Bind errors are returned
// directly.
func (s *Server) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New(fiftysocket.ErrServerAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	if s.owned != nil {
		engineCtx, cancel := context.WithCancel(context.Background())
		s.stopEngine = cancel
		s.engineDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			_ = s.owned.Run(engineCtx)
		}(s.engineDone)
	}

	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}(s.server)

	s.running = true
	s.log.Info().Str("addr", ln.Addr().String()).Strs("paths", s.paths).Msg("websocket server listening")
	return nil
}

// Stop closes every client, waits for their close events to reach the
// engine, shuts the HTTP server down and, if the server owns its engine,
// stops the engine after it has processed them.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.clients.Range(func(_, value any) bool {
		if client, ok := value.(*Client); ok {
			_ = client.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
		}
		return true
	})

	err := s.server.Shutdown(ctx)

	handlersDone := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(handlersDone)
	}()
	select {
	case <-handlersDone:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	if s.owned != nil {
		s.stopEngine()
		select {
		case <-s.engineDone:
		case <-ctx.Done():
		}
	}

	s.log.Info().Msg("websocket server stopped")
	return err
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns the engine's counters.
func (s *Server) Stats() fiftysocket.Stats {
	return s.engine.Stats()
}

// String implements fmt.Stringer; suture uses it to name the service.
func (s *Server) String() string {
	return "websocket-server"
}

func isUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// handleWebSocket upgrades requests on an allowed path. A plain GET on the
// same path is answered like any unknown route.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !isUpgrade(r) {
		notFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.RecordRejectedUpgrade("handshake")
		s.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	// Stop holds the write lock while it closes clients and waits for their
	// handlers, so a connection either registers before that or not at all.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		metrics.RecordRejectedUpgrade("shutdown")
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig)
	s.clients.Store(client.ID(), client)

	s.handlers.Add(1)
	go s.handleClient(client)
}

// handleClient runs the read loop of one client and reports its events to
// the engine.
func (s *Server) handleClient(client *Client) {
	var readErr error

	defer s.handlers.Done()
	defer func() {
		voluntary := websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway)

		if s.onDisconnect != nil {
			s.onDisconnect(client, voluntary)
		}
		s.clients.Delete(client.ID())
		_ = client.Close(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), engineTimeout)
		defer cancel()
		if err := s.engine.Close(ctx, client); err != nil {
			s.log.Error().Err(err).Str("client_id", client.ID()).Msg("engine did not accept close event")
		}
	}()

	client.conn.SetReadLimit(s.maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := s.engine.Open(client.Context(), client); err != nil {
		s.log.Error().Err(err).Str("client_id", client.ID()).Msg("engine did not accept connection")
		return
	}

	if s.onConnect != nil {
		s.onConnect(client)
	}

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			readErr = err
			if client.Context().Err() == nil &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ctx, cancel := context.WithTimeout(context.Background(), engineTimeout)
				_ = s.engine.Fail(ctx, client, err)
				cancel()
			}
			return
		}

		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !client.CheckRateLimit() {
			metrics.RateLimited.Inc()
			s.log.Warn().
				Str("client_id", client.ID()).
				Str("remote_addr", client.RemoteAddr()).
				Msg("rate limit exceeded")
			_ = client.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, fiftysocket.ErrRateLimitExceeded)
			return
		}

		if err := s.engine.Receive(client.Context(), client, data); err != nil {
			return
		}
	}
}
