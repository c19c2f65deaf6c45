package protocol

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/luciancaetano/fiftysocket"
)

const (
	envelopeArity = 5
	MaxFrameSize  = 10 * 1024 * 1024 // 10MB max frame size
)

var (
	// ErrMalformed is the parent of every decode error.
	ErrMalformed = errors.New("malformed envelope")

	ErrInvalidJSON   = fmt.Errorf("%w: invalid json", ErrMalformed)
	ErrInvalidArity  = fmt.Errorf("%w: expected an array of %d elements", ErrMalformed, envelopeArity)
	ErrInvalidField  = fmt.Errorf("%w: invalid field", ErrMalformed)
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformed, MaxFrameSize)
)

var (
	null       = []byte("null")
	emptyValue = []byte("{}")
)

// Ref correlates a reply with the request that produced it. It holds the raw
// JSON value sent by the client (usually a string) and is echoed back verbatim.
// The zero Ref encodes as null.
type Ref json.RawMessage

// StringRef builds a Ref from a string.
func StringRef(s string) Ref {
	b, _ := json.Marshal(s)
	return Ref(b)
}

// IsNull reports whether the ref is absent or JSON null.
func (r Ref) IsNull() bool {
	return isNull(r)
}

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, null)
}

// String returns the ref as a string when it is a JSON string, otherwise
// its raw JSON text.
func (r Ref) String() string {
	if r.IsNull() {
		return ""
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(r)
}

// Payload is the opaque message body. The engine never interprets it; it
// stores and forwards the raw JSON, preserving key order.
type Payload json.RawMessage

// EmptyPayload returns the empty object payload used by acknowledgements.
func EmptyPayload() Payload {
	return Payload(emptyValue)
}

// MustPayload marshals v into a Payload and panics if v cannot be marshaled.
// It is meant for payloads built from static values.
func MustPayload(v any) Payload {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: cannot marshal payload: %v", err))
	}
	return Payload(b)
}

// Envelope is one protocol message: [join_ref, ref, topic, event, payload].
type Envelope struct {
	JoinRef Ref
	Ref     Ref
	Topic   string
	Event   string
	Payload Payload
}

// Decode parses a raw frame into an Envelope.
// The frame must be a JSON array of exactly five elements whose topic and
// event are strings. The returned payload and refs reference copies of the
// input, so data may be reused by the caller.
func Decode(data []byte) (Envelope, error) {
	if len(data) > MaxFrameSize {
		return Envelope{}, ErrFrameTooLarge
	}

	// Syntax only: goccy's Valid decodes into interface{} and rejects numbers
	// that overflow float64, which are still valid JSON.
	if !stdjson.Valid(data) {
		return Envelope{}, ErrInvalidJSON
	}
	trimmed := bytes.TrimSpace(data)
	if trimmed[0] != '[' {
		return Envelope{}, fmt.Errorf("%w: top-level value is not an array", ErrInvalidArity)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(parts) != envelopeArity {
		return Envelope{}, fmt.Errorf("%w: got %d", ErrInvalidArity, len(parts))
	}

	var env Envelope
	if isNull(parts[2]) || json.Unmarshal(parts[2], &env.Topic) != nil {
		return Envelope{}, fmt.Errorf("%w: topic must be a string", ErrInvalidField)
	}
	if isNull(parts[3]) || json.Unmarshal(parts[3], &env.Event) != nil {
		return Envelope{}, fmt.Errorf("%w: event must be a string", ErrInvalidField)
	}

	env.JoinRef = Ref(bytes.Clone(parts[0]))
	env.Ref = Ref(bytes.Clone(parts[1]))
	env.Payload = Payload(bytes.Clone(parts[4]))
	return env, nil
}

// Encode serializes an Envelope. Refs and payload must hold valid JSON (as
// produced by Decode, StringRef or MustPayload); empty refs are written as
// null and an empty payload as {}.
func Encode(env Envelope) []byte {
	topic, _ := json.Marshal(env.Topic)
	event, _ := json.Marshal(env.Event)

	var buf bytes.Buffer
	buf.Grow(len(env.JoinRef) + len(env.Ref) + len(topic) + len(event) + len(env.Payload) + 16)
	buf.WriteByte('[')
	writeRaw(&buf, env.JoinRef, null)
	buf.WriteByte(',')
	writeRaw(&buf, env.Ref, null)
	buf.WriteByte(',')
	buf.Write(topic)
	buf.WriteByte(',')
	buf.Write(event)
	buf.WriteByte(',')
	writeRaw(&buf, env.Payload, emptyValue)
	buf.WriteByte(']')
	return buf.Bytes()
}

func writeRaw(buf *bytes.Buffer, raw, fallback []byte) {
	if len(raw) == 0 {
		buf.Write(fallback)
		return
	}
	buf.Write(raw)
}

// NewReply builds the phx_reply answering in. The reply echoes the join_ref
// and ref of in and carries {"status": status, "response": response}.
func NewReply(in Envelope, topic, status string, response Payload) Envelope {
	st, _ := json.Marshal(status)

	var buf bytes.Buffer
	buf.WriteString(`{"status":`)
	buf.Write(st)
	buf.WriteString(`,"response":`)
	writeRaw(&buf, response, emptyValue)
	buf.WriteByte('}')

	return Envelope{
		JoinRef: in.JoinRef,
		Ref:     in.Ref,
		Topic:   topic,
		Event:   fiftysocket.EventReply,
		Payload: Payload(buf.Bytes()),
	}
}

// NewBroadcast builds a server-initiated message. Broadcasts do not answer a
// request, so both refs are null.
func NewBroadcast(topic, event string, payload Payload) Envelope {
	return Envelope{
		Topic:   topic,
		Event:   event,
		Payload: payload,
	}
}

// ReplyPayload is the decoded form of a phx_reply payload.
type ReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// DecodeReply extracts status and response from a phx_reply payload.
func DecodeReply(p Payload) (ReplyPayload, error) {
	var r ReplyPayload
	if err := json.Unmarshal(p, &r); err != nil {
		return ReplyPayload{}, fmt.Errorf("%w: reply payload: %v", ErrMalformed, err)
	}
	return r, nil
}
