// Package fiftysocket provides an in-memory Phoenix V2 WebSocket server for live-testing
// Phoenix client libraries without a production backend.
//
// The server speaks the Phoenix V2 JSON serializer: every frame, in both directions, is a
// JSON array of exactly five elements. It tracks channel membership, correlates replies
// with requests and fans server-initiated broadcasts out to the members of a topic.
//
// # Architecture
//
// Inbound frames flow through four stages:
//
//	transport (gorilla/websocket) -> codec (decode + validate) -> router (classify + authorize)
//	    -> handler (mutates the channel registry) -> replies/broadcasts -> codec (encode) -> transport
//
// A single engine goroutine owns all protocol state. Connections enqueue their open,
// message and close events; the engine processes each event to completion before the next,
// so a join, its acknowledgement and its broadcast are never interleaved with another
// client's message.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/fiftysocket/ws"
//	)
//
//	server := ws.New(ws.NewConfig(":4000", ws.DefaultPaths(), ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	server.Start(ctx)
//
// Or run the bundled binary:
//
//	PORT=4000 fiftysocket serve
//
// # Protocol Format
//
//	[join_ref, ref, topic, event, payload]
//
// Supported events:
//
//   - heartbeat on topic "phoenix": acknowledged with {"status":"ok","response":{}}
//   - phx_join on any topic: acknowledged, other members receive "user_joined"
//   - phx_leave on any topic: acknowledged, remaining members receive "user_left"
//   - custom events on joined topics: acknowledged with the payload echoed back and
//     broadcast to every member of the topic, sender included
//
// Custom events on a topic the sender has not joined are answered with
// {"status":"error","response":{"reason":"not a member of this channel"}}.
// Frames that are not a five element JSON array are dropped without a reply.
//
// # Endpoints
//
//   - /socket and /socket/websocket: WebSocket upgrade (configurable allow-list)
//   - /health: {"status":"ok","connections":N,"channels":N}
//   - /metrics: Prometheus metrics
//
// # Important
//
//   - Payloads are opaque: the server never interprets them, it forwards the raw JSON
//   - There is no authentication, persistence or presence tracking
//   - Configure CheckOriginFn outside of local testing (ws.AllOrigins() accepts everything)
package fiftysocket
