package fiftysocket

// Reserved topic and event names of the Phoenix V2 protocol.
const (
	// TopicPhoenix is the channel-agnostic topic used for heartbeats.
	TopicPhoenix = "phoenix"

	EventHeartbeat = "heartbeat"
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"

	// Server-initiated membership notifications.
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
)

// EchoTopicPrefix selects the echo handler for custom events.
const EchoTopicPrefix = "echo:"

// Reply statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// AnonymousUser is the user name carried by membership notifications.
const AnonymousUser = "anonymous"

// Standard error messages
const (
	// Protocol errors
	ErrNotAMember = "not a member of this channel"

	// Connection errors
	ErrConnectionClosed     = "client connection is closed"
	ErrSendBufferFull       = "client send buffer is full"
	ErrRateLimitExceeded    = "Rate limit exceeded"
	ErrServerAlreadyRunning = "server already running"
	ErrEngineStopped        = "protocol engine is not accepting events"
)
