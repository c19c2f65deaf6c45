package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/fiftysocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per client.
	sendBufferSize = 256
)

var (
	ErrConnectionClosed = errors.New(fiftysocket.ErrConnectionClosed)
	ErrSendBufferFull   = errors.New(fiftysocket.ErrSendBufferFull)
)

// Client implements fiftysocket.Conn on top of a gorilla connection.
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // nil when rate limiting is disabled
}

// NewClient wraps conn and starts its write pump.
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	client := &Client{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendBufferSize),
		rateLimiter: limiter,
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues an encoded frame for the write pump. It never waits for the
// peer: when the buffer is full the frame is dropped, the client is closed
// with 1013 (try again later) and ErrSendBufferFull is returned.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	// The read lock is held while queueing so Close cannot close sendCh underneath us.
	select {
	case c.sendCh <- frame:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
	}

	go c.CloseWithCode(context.Background(), websocket.CloseTryAgainLater, fiftysocket.ErrSendBufferFull)
	return ErrSendBufferFull
}

// Close closes the client connection
func (c *Client) Close(ctx context.Context) error {
	return c.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, then closes the
// connection. Calls after the first are no-ops.
func (c *Client) CloseWithCode(_ context.Context, code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Only the network I/O below runs unlocked; Send and IsAlive see closed
	// already and never touch sendCh again. The close frame goes out before
	// the write pump is stopped.
	message := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))

	close(c.sendCh)
	c.cancel()
	return c.conn.Close()
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit reports whether one more inbound message is allowed.
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump pumps frames from the send channel to the connection and keeps
// it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			if !ok {
				return
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
