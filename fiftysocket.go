package fiftysocket

import "context"

// Server defines a Phoenix V2 test server: a WebSocket endpoint speaking the
// JSON wire protocol plus a health endpoint reporting aggregate counters.
//
// Example usage:
//
//	import "github.com/luciancaetano/fiftysocket/ws"
//
//	server := ws.New(ws.NewConfig(":4000", ws.DefaultPaths(), ws.NoRateLimit(), ws.AllOrigins(), nil, nil))
//	if err := server.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop(ctx)
type Server interface {
	// Start starts the protocol engine and begins listening for connections.
	//
	// Returns an error if the server is already running or if the network
	// address cannot be bound.
	Start(ctx context.Context) error

	// Stop closes every client connection, stops accepting new ones and
	// stops the protocol engine once the close events have been processed.
	Stop(ctx context.Context) error

	// Addr returns the address the server is listening on. It is only
	// meaningful after Start returned successfully, and resolves ":0"
	// style addresses to the port actually bound.
	Addr() string

	// Stats returns a point-in-time snapshot of the aggregate counters.
	Stats() Stats
}

// Stats is the read-only view of the engine's counters exposed to the health
// endpoint.
type Stats struct {
	// OpenConnections is the number of connections currently open.
	OpenConnections int `json:"connections"`

	// ActiveTopics is the number of topics with at least one member.
	ActiveTopics int `json:"channels"`
}

// Conn represents one client session speaking the protocol.
//
// A Conn is created by the transport when a client completes the WebSocket
// upgrade and becomes invalid once the transport reports close. Conn values
// are used as map keys by the engine, so implementations must be comparable
// (pointer receivers).
type Conn interface {
	// ID returns a unique identifier for the connection.
	//
	// The ID is generated when the client connects and remains constant for
	// the lifetime of the connection. The engine orders fan-out by ID.
	ID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context returns the connection's lifecycle context.
	//
	// This context is cancelled when the connection closes.
	Context() context.Context

	// Send queues an already encoded frame for delivery.
	//
	// Send must not block the caller on a slow peer: implementations queue
	// the frame and report an error if it cannot be queued.
	Send(ctx context.Context, frame []byte) error

	// Close closes the connection gracefully.
	//
	// This is equivalent to calling CloseWithCode with websocket.CloseNormalClosure.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific WebSocket close code and optional reason.
	//
	// Common close codes:
	//   - 1000 (websocket.CloseNormalClosure): Normal closure
	//   - 1001 (websocket.CloseGoingAway): Endpoint going away
	//   - 1008 (websocket.ClosePolicyViolation): Rate limit exceeded
	//   - 1013 (websocket.CloseTryAgainLater): Send buffer overflow
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true if the connection is still open.
	//
	// The engine skips connections that are no longer alive when replying
	// and broadcasting.
	IsAlive() bool
}
