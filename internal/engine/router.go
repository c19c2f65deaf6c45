package engine

import (
	"strings"

	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/metrics"
	"github.com/luciancaetano/fiftysocket/internal/protocol"
)

func (s *ProtocolServer) handleMessage(c fiftysocket.Conn, data []byte) {
	if _, ok := s.conns[c]; !ok {
		s.log.Debug().Str("conn_id", connID(c)).Msg("dropping message from connection that is not open")
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		metrics.DecodeErrors.Inc()
		s.log.Warn().Err(err).Str("conn_id", c.ID()).Int("size", len(data)).Msg("dropping malformed message")
		return
	}

	s.route(c, env)
}

// route dispatches env to its handler. Guards are evaluated in order and the
// first match wins: heartbeat, join and leave need no membership, every
// other event does.
func (s *ProtocolServer) route(c fiftysocket.Conn, env protocol.Envelope) {
	switch {
	case env.Topic == fiftysocket.TopicPhoenix && env.Event == fiftysocket.EventHeartbeat:
		metrics.RecordMessage(metrics.RouteHeartbeat)
		s.handleHeartbeat(c, env)

	case env.Event == fiftysocket.EventJoin:
		metrics.RecordMessage(metrics.RouteJoin)
		s.handleJoin(c, env)
		s.publishState()

	case env.Event == fiftysocket.EventLeave:
		metrics.RecordMessage(metrics.RouteLeave)
		s.handleLeave(c, env)
		s.publishState()

	case !s.registry.IsMember(env.Topic, c):
		metrics.RecordMessage(metrics.RouteRejected)
		metrics.ProtocolViolations.Inc()
		s.log.Warn().
			Str("conn_id", c.ID()).
			Str("topic", env.Topic).
			Str("event", env.Event).
			Msg("event on a topic the client has not joined")
		s.Reply(c, env, fiftysocket.StatusError, notAMember)

	case strings.HasPrefix(env.Topic, fiftysocket.EchoTopicPrefix):
		metrics.RecordMessage(metrics.RouteEcho)
		s.log.Debug().Str("topic", env.Topic).Str("event", env.Event).Msg("echo")
		s.echo(s, c, env)

	default:
		metrics.RecordMessage(metrics.RouteGeneric)
		s.log.Debug().Str("topic", env.Topic).Str("event", env.Event).Msg("message")
		s.generic(s, c, env)
	}
}
