// Package metrics exposes Prometheus instrumentation for the protocol engine
// and the WebSocket transport. Metrics are registered on the default registry
// and served on /metrics. They aggregate every engine in the process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fiftysocket"

var (
	// Engine state
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Number of connections currently open",
		},
	)

	ActiveTopics = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topics_active",
			Help:      "Number of topics with at least one member",
		},
	)

	// Traffic
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Decoded inbound messages by route",
		},
		[]string{"route"}, // heartbeat, join, leave, echo, generic, rejected
	)

	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames by kind",
		},
		[]string{"kind"}, // reply, broadcast
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Frames that could not be queued for a connection",
		},
	)

	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they were not a valid envelope",
		},
	)

	ProtocolViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Custom events sent to a topic the sender has not joined",
		},
	)

	// Transport
	UpgradesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_rejected_total",
			Help:      "HTTP requests refused before reaching the engine",
		},
		[]string{"reason"}, // path, handshake
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Connections closed for exceeding the inbound message rate",
		},
	)
)

// Route labels for MessagesReceived.
const (
	RouteHeartbeat = "heartbeat"
	RouteJoin      = "join"
	RouteLeave     = "leave"
	RouteEcho      = "echo"
	RouteGeneric   = "generic"
	RouteRejected  = "rejected"
)

// RecordMessage counts an inbound message dispatched to route.
func RecordMessage(route string) {
	MessagesReceived.WithLabelValues(route).Inc()
}

// RecordFrame counts an outbound frame. kind is "reply" or "broadcast".
func RecordFrame(kind string) {
	FramesSent.WithLabelValues(kind).Inc()
}

// RecordRejectedUpgrade counts a request refused by the transport.
func RecordRejectedUpgrade(reason string) {
	UpgradesRejected.WithLabelValues(reason).Inc()
}

// AddState applies one engine's change in connections and topics. Each
// engine reports deltas, so the gauges hold the process-wide totals when
// several engines share the registry.
func AddState(connections, topics int) {
	OpenConnections.Add(float64(connections))
	ActiveTopics.Add(float64(topics))
}
