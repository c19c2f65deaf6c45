package engine

import (
	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/protocol"
)

// Handler processes a custom event. The router only calls it for events sent
// by a member of env.Topic.
type Handler func(r Responder, c fiftysocket.Conn, env protocol.Envelope)

// EchoHandler acknowledges with the payload as the response and broadcasts
// the event to every member of the topic, sender included.
func EchoHandler(r Responder, c fiftysocket.Conn, env protocol.Envelope) {
	r.Reply(c, env, fiftysocket.StatusOK, env.Payload)
	r.Broadcast(env.Topic, env.Event, env.Payload)
}

// GenericHandler is the default for non-echo topics. It currently behaves
// like EchoHandler.
func GenericHandler(r Responder, c fiftysocket.Conn, env protocol.Envelope) {
	r.Reply(c, env, fiftysocket.StatusOK, env.Payload)
	r.Broadcast(env.Topic, env.Event, env.Payload)
}

func (s *ProtocolServer) handleHeartbeat(c fiftysocket.Conn, env protocol.Envelope) {
	s.Reply(c, env, fiftysocket.StatusOK, protocol.EmptyPayload())
}

// handleJoin adds c to the topic, acknowledges and tells the other members.
// A repeated join is acknowledged and announced again.
func (s *ProtocolServer) handleJoin(c fiftysocket.Conn, env protocol.Envelope) {
	added := s.registry.Join(env.Topic, c)

	s.log.Info().
		Str("conn_id", c.ID()).
		Str("topic", env.Topic).
		Bool("rejoin", !added).
		Int("members", len(s.registry.Members(env.Topic))).
		Msg("join")

	s.Reply(c, env, fiftysocket.StatusOK, protocol.EmptyPayload())
	s.BroadcastFrom(env.Topic, c, fiftysocket.EventUserJoined, anonymousUser)
}

// handleLeave removes c from the topic if it was a member. Leaving a topic
// that was never joined is still acknowledged.
func (s *ProtocolServer) handleLeave(c fiftysocket.Conn, env protocol.Envelope) {
	removed := s.registry.Leave(env.Topic, c)

	s.log.Info().
		Str("conn_id", c.ID()).
		Str("topic", env.Topic).
		Bool("was_member", removed).
		Int("members", len(s.registry.Members(env.Topic))).
		Msg("leave")

	s.Reply(c, env, fiftysocket.StatusOK, protocol.EmptyPayload())
	s.Broadcast(env.Topic, fiftysocket.EventUserLeft, anonymousUser)
}
