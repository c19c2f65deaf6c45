package e2e_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/ws"
)

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

// startServer runs a server with its own engine on a free local port.
func startServer(t *testing.T, cfg ws.ServerConfig) fiftysocket.Server {
	t.Helper()

	if cfg == nil {
		cfg = ws.NewConfig("127.0.0.1:0", nil, ws.NoRateLimit(), ws.AllOrigins(), nil, nil)
	}
	server := ws.New(cfg)

	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
	})
	return server
}

// phoenixClient is a minimal Phoenix V2 client.
type phoenixClient struct {
	t    *testing.T
	conn *websocket.Conn
	ref  int
}

func connect(t *testing.T, server fiftysocket.Server) *phoenixClient {
	t.Helper()

	conn, _, err := newDialer().Dial("ws://"+server.Addr()+"/socket/websocket", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &phoenixClient{t: t, conn: conn}
}

// push sends an event and returns the ref it used.
func (c *phoenixClient) push(topic, event, payload string) string {
	c.t.Helper()

	c.ref++
	ref := fmt.Sprint(c.ref)
	c.raw(fmt.Sprintf(`["1",%q,%q,%q,%s]`, ref, topic, event, payload))
	return ref
}

func (c *phoenixClient) raw(frame string) {
	c.t.Helper()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		c.t.Fatalf("Failed to send: %v", err)
	}
}

func (c *phoenixClient) read() string {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("Failed to read: %v", err)
	}
	return string(frame)
}

// expect reads the next frame and compares it byte for byte.
func (c *phoenixClient) expect(want string) {
	c.t.Helper()

	if got := c.read(); got != want {
		c.t.Errorf("got frame %s, want %s", got, want)
	}
}

// expectSilence fails if a frame arrives within d.
func (c *phoenixClient) expectSilence(d time.Duration) {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(d))
	_, frame, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Errorf("unexpected frame %s", frame)
	}
}

func (c *phoenixClient) join(topic string) {
	c.t.Helper()

	ref := c.push(topic, "phx_join", "{}")
	c.expect(fmt.Sprintf(`["1",%q,%q,"phx_reply",{"status":"ok","response":{}}]`, ref, topic))
}

// waitStats polls until the server reports want.
func waitStats(t *testing.T, server fiftysocket.Server, want fiftysocket.Stats) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if server.Stats() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stats = %+v, want %+v", server.Stats(), want)
}
