// Package engine implements the Phoenix V2 protocol state machine.
//
// A ProtocolServer owns the channel registry and every connection's state.
// The transport reports connection events through Open, Receive, Close and
// Fail; these only enqueue. Run is the single goroutine that applies them,
// one at a time and each to completion (registry mutation plus every
// resulting send) before the next.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/channel"
	"github.com/luciancaetano/fiftysocket/internal/logging"
	"github.com/luciancaetano/fiftysocket/internal/metrics"
)

// DefaultQueueSize is the capacity of the event queue.
const DefaultQueueSize = 1024

// ErrAlreadyRunning is returned by Run when another Run is active.
var ErrAlreadyRunning = errors.New("protocol engine already running")

type eventKind uint8

const (
	eventOpen eventKind = iota
	eventMessage
	eventClose
	eventFail
	eventSync
)

func (k eventKind) String() string {
	switch k {
	case eventOpen:
		return "open"
	case eventMessage:
		return "message"
	case eventClose:
		return "close"
	case eventFail:
		return "fail"
	case eventSync:
		return "sync"
	default:
		return "unknown"
	}
}

type event struct {
	kind eventKind
	conn fiftysocket.Conn
	data []byte
	err  error
	done chan struct{}
}

// Option configures a ProtocolServer.
type Option func(*ProtocolServer)

// WithEchoHandler replaces the handler for custom events on echo:* topics.
func WithEchoHandler(h Handler) Option {
	return func(s *ProtocolServer) {
		if h != nil {
			s.echo = h
		}
	}
}

// WithGenericHandler replaces the handler for custom events on every other topic.
func WithGenericHandler(h Handler) Option {
	return func(s *ProtocolServer) {
		if h != nil {
			s.generic = h
		}
	}
}

// WithLogger sets the logger. The default is the global logger tagged
// component=engine.
func WithLogger(l zerolog.Logger) Option {
	return func(s *ProtocolServer) {
		s.log = l
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) Option {
	return func(s *ProtocolServer) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// ProtocolServer is the protocol engine. Create one with New; the zero value
// is not usable.
type ProtocolServer struct {
	registry *channel.Registry[fiftysocket.Conn]

	// conns holds the connections in the OPEN state. Owned by the loop.
	conns map[fiftysocket.Conn]struct{}
	open  atomic.Int64

	// Last state reported to the shared gauges. Owned by the loop.
	reportedConns  int
	reportedTopics int

	events    chan event
	queueSize int
	running   atomic.Bool

	echo    Handler
	generic Handler

	log zerolog.Logger
}

// New creates a protocol engine with its own empty registry.
func New(opts ...Option) *ProtocolServer {
	s := &ProtocolServer{
		registry:  channel.New[fiftysocket.Conn](),
		conns:     make(map[fiftysocket.Conn]struct{}),
		queueSize: DefaultQueueSize,
		echo:      EchoHandler,
		generic:   GenericHandler,
		log:       logging.Component("engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan event, s.queueSize)
	return s
}

// Open reports a connection that completed the upgrade.
func (s *ProtocolServer) Open(ctx context.Context, c fiftysocket.Conn) error {
	return s.enqueue(ctx, event{kind: eventOpen, conn: c})
}

// Receive reports an inbound frame. data must not be modified afterwards.
func (s *ProtocolServer) Receive(ctx context.Context, c fiftysocket.Conn, data []byte) error {
	return s.enqueue(ctx, event{kind: eventMessage, conn: c, data: data})
}

// Close reports that a connection closed. Only the first Close for a
// connection has an effect.
func (s *ProtocolServer) Close(ctx context.Context, c fiftysocket.Conn) error {
	return s.enqueue(ctx, event{kind: eventClose, conn: c})
}

// Fail reports a transport error. It is logged only; the transport must
// follow it with Close.
func (s *ProtocolServer) Fail(ctx context.Context, c fiftysocket.Conn, err error) error {
	return s.enqueue(ctx, event{kind: eventFail, conn: c, err: err})
}

// Sync blocks until every event enqueued before it has been processed.
func (s *ProtocolServer) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.enqueue(ctx, event{kind: eventSync, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ProtocolServer) enqueue(ctx context.Context, ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", fiftysocket.ErrEngineStopped, ctx.Err())
	}
}

// Run processes events until ctx is cancelled. Events already queued when
// ctx is cancelled are still processed. Run returns ctx.Err().
func (s *ProtocolServer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.log.Info().Int("queue_size", s.queueSize).Msg("protocol engine started")

	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case <-ctx.Done():
			drained := s.drain()
			s.log.Info().Int("drained", drained).Msg("protocol engine stopped")
			return ctx.Err()
		}
	}
}

func (s *ProtocolServer) drain() int {
	n := 0
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
			n++
		default:
			return n
		}
	}
}

// dispatch applies one event. A panic in a handler is contained to the
// event that caused it.
func (s *ProtocolServer) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Stringer("event", ev.kind).
				Str("conn_id", connID(ev.conn)).
				Msg("recovered from panic while handling event")
		}
	}()

	switch ev.kind {
	case eventOpen:
		s.handleOpen(ev.conn)
	case eventMessage:
		s.handleMessage(ev.conn, ev.data)
	case eventClose:
		s.handleClose(ev.conn)
	case eventFail:
		s.handleFail(ev.conn, ev.err)
	case eventSync:
		close(ev.done)
	}
}

func (s *ProtocolServer) handleOpen(c fiftysocket.Conn) {
	if _, ok := s.conns[c]; ok {
		s.log.Warn().Str("conn_id", c.ID()).Msg("connection opened twice")
		return
	}
	s.conns[c] = struct{}{}
	n := s.open.Add(1)

	s.log.Info().
		Str("conn_id", c.ID()).
		Str("remote_addr", c.RemoteAddr()).
		Int64("connections", n).
		Msg("connection opened")
	s.publishState()
}

func (s *ProtocolServer) handleClose(c fiftysocket.Conn) {
	if _, ok := s.conns[c]; !ok {
		return
	}
	delete(s.conns, c)
	n := s.open.Add(-1)

	topics := s.registry.LeaveAll(c)
	for _, topic := range topics {
		s.Broadcast(topic, fiftysocket.EventUserLeft, anonymousUser)
	}

	s.log.Info().
		Str("conn_id", c.ID()).
		Strs("topics", topics).
		Int64("connections", n).
		Msg("connection closed")
	s.publishState()
}

func (s *ProtocolServer) handleFail(c fiftysocket.Conn, err error) {
	s.log.Warn().Err(err).Str("conn_id", connID(c)).Msg("transport error")
}

func (s *ProtocolServer) publishState() {
	conns, topics := int(s.open.Load()), s.registry.TopicCount()
	metrics.AddState(conns-s.reportedConns, topics-s.reportedTopics)
	s.reportedConns, s.reportedTopics = conns, topics
}

// Stats returns the current counters. It is safe to call from any goroutine.
func (s *ProtocolServer) Stats() fiftysocket.Stats {
	return fiftysocket.Stats{
		OpenConnections: int(s.open.Load()),
		ActiveTopics:    s.registry.TopicCount(),
	}
}

// Topics returns the topics c has joined, sorted.
func (s *ProtocolServer) Topics(c fiftysocket.Conn) []string {
	return s.registry.Topics(c)
}

// Members returns the members of topic sorted by connection ID.
func (s *ProtocolServer) Members(topic string) []fiftysocket.Conn {
	return s.registry.Members(topic)
}

// String implements fmt.Stringer; suture uses it to name the service.
func (s *ProtocolServer) String() string {
	return "protocol-engine"
}

func connID(c fiftysocket.Conn) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
