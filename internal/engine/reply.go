package engine

import (
	"context"

	"github.com/luciancaetano/fiftysocket"
	"github.com/luciancaetano/fiftysocket/internal/metrics"
	"github.com/luciancaetano/fiftysocket/internal/protocol"
)

var (
	anonymousUser = protocol.MustPayload(map[string]string{"user": fiftysocket.AnonymousUser})
	notAMember    = protocol.MustPayload(map[string]string{"reason": fiftysocket.ErrNotAMember})
)

// Responder is the outbound side of the engine handed to custom event
// handlers.
type Responder interface {
	// Reply answers in on c with a phx_reply echoing its refs.
	Reply(c fiftysocket.Conn, in protocol.Envelope, status string, response protocol.Payload)

	// Broadcast sends a ref-less event to every member of topic.
	Broadcast(topic, event string, payload protocol.Payload)

	// BroadcastFrom sends a ref-less event to every member of topic except sender.
	BroadcastFrom(topic string, sender fiftysocket.Conn, event string, payload protocol.Payload)
}

// Reply answers in on c. The reply is sent on in's topic.
func (s *ProtocolServer) Reply(c fiftysocket.Conn, in protocol.Envelope, status string, response protocol.Payload) {
	s.send(c, protocol.Encode(protocol.NewReply(in, in.Topic, status, response)), "reply")
}

// Broadcast sends event to every member of topic, in connection ID order.
// A topic without members is a no-op.
func (s *ProtocolServer) Broadcast(topic, event string, payload protocol.Payload) {
	s.BroadcastFrom(topic, nil, event, payload)
}

// BroadcastFrom sends event to every member of topic except sender. A nil
// sender excludes nobody.
func (s *ProtocolServer) BroadcastFrom(topic string, sender fiftysocket.Conn, event string, payload protocol.Payload) {
	members := s.registry.Members(topic)
	if len(members) == 0 {
		return
	}

	frame := protocol.Encode(protocol.NewBroadcast(topic, event, payload))
	for _, m := range members {
		if sender != nil && m == sender {
			continue
		}
		s.send(m, frame, "broadcast")
	}
}

// send queues frame on c. Closed connections are skipped and a failed
// enqueue is logged; neither affects the other recipients.
func (s *ProtocolServer) send(c fiftysocket.Conn, frame []byte, kind string) {
	if !c.IsAlive() {
		return
	}
	if err := c.Send(context.Background(), frame); err != nil {
		metrics.SendFailures.Inc()
		s.log.Debug().Err(err).Str("conn_id", c.ID()).Str("kind", kind).Msg("send failed")
		return
	}
	metrics.RecordFrame(kind)
}
