package supervisor

import (
	"context"
	"fmt"
	"time"
)

// Runner is satisfied by *engine.ProtocolServer.
type Runner interface {
	Run(ctx context.Context) error
}

// EngineService runs the protocol engine loop as a supervised service.
type EngineService struct {
	engine Runner
	name   string
}

// NewEngineService wraps engine.
func NewEngineService(engine Runner) *EngineService {
	return &EngineService{
		engine: engine,
		name:   "protocol-engine",
	}
}

// Serve implements suture.Service. It returns when ctx is cancelled, after
// the engine has drained its queue.
func (e *EngineService) Serve(ctx context.Context) error {
	return e.engine.Run(ctx)
}

// String implements fmt.Stringer. Suture uses it to name the service.
func (e *EngineService) String() string {
	return e.name
}

// Lifecycle is satisfied by *websocket.Server.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TransportService runs the WebSocket/HTTP server as a supervised service.
//
// Start returns once the listener is bound, so a bind error surfaces as a
// service failure and suture retries it with backoff.
type TransportService struct {
	server          Lifecycle
	shutdownTimeout time.Duration
	name            string
}

// NewTransportService wraps server. A non-positive shutdownTimeout
// defaults to 10s.
func NewTransportService(server Lifecycle, shutdownTimeout time.Duration) *TransportService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &TransportService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "websocket-server",
	}
}

// Serve implements suture.Service.
func (s *TransportService) Serve(ctx context.Context) error {
	if err := s.server.Start(ctx); err != nil {
		return fmt.Errorf("websocket server failed to start: %w", err)
	}

	<-ctx.Done()

	// ctx is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("websocket server shutdown failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer. Suture uses it to name the service.
func (s *TransportService) String() string {
	return s.name
}
