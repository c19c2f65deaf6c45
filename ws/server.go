// Package ws embeds the Phoenix V2 test server in another program, most
// often a test suite.
package ws

import (
	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type ServerConfig = *websocket.ServerConfig

// New creates a server that runs its own protocol engine between Start and
// Stop.
//
// Example:
//
//	server := ws.New(ws.NewConfig("127.0.0.1:0", ws.DefaultPaths(), ws.NoRateLimit(), ws.AllOrigins(), nil, nil))
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(ctx)
//	url := "ws://" + server.Addr() + "/socket/websocket"
func New(cfg ServerConfig) fiftysocket.Server {
	return websocket.New(cfg)
}

// NewConfig builds a ServerConfig.
//
// Parameters:
//   - addr: listen address, e.g. ":4000". Port 0 picks a free port; read it back with Addr.
//   - paths: upgrade paths. Empty means DefaultPaths().
//   - rateLimitConfig: per-connection inbound limit. Use DefaultRateLimitConfig() or NoRateLimit().
//   - checkOrigin: validates the Origin header. Use AllOrigins() for local testing.
//   - onConnect: optional, called once the connection is registered with the engine.
//   - onDisconnect: optional, called when the connection ends.
func NewConfig(addr string, paths []string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Addr:               addr,
		Paths:              paths,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// AllOrigins returns a checkOrigin function that allows all origins.
func AllOrigins() CheckOriginFn {
	return websocket.AllOrigins()
}

// AllowOrigins returns a checkOrigin function that allows only the listed origins.
func AllowOrigins(origins ...string) CheckOriginFn {
	return websocket.AllowOrigins(origins)
}

// DefaultPaths returns /socket and /socket/websocket.
func DefaultPaths() []string {
	return websocket.DefaultPaths()
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
