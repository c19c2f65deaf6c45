package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// TestDecode tests the Decode function with well-formed frames
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        string
		wantJoinRef string
		wantRef     string
		wantTopic   string
		wantEvent   string
		wantPayload string
	}{
		{
			name:        "join with refs",
			data:        `["1","1","room:lobby","phx_join",{}]`,
			wantJoinRef: `"1"`,
			wantRef:     `"1"`,
			wantTopic:   "room:lobby",
			wantEvent:   "phx_join",
			wantPayload: `{}`,
		},
		{
			name:        "heartbeat with null join ref",
			data:        `[null,"7","phoenix","heartbeat",{}]`,
			wantJoinRef: `null`,
			wantRef:     `"7"`,
			wantTopic:   "phoenix",
			wantEvent:   "heartbeat",
			wantPayload: `{}`,
		},
		{
			name:        "payload key order preserved",
			data:        `["1","2","echo:test","ping",{"z":1,"a":[1,2],"m":{"k":"v"}}]`,
			wantJoinRef: `"1"`,
			wantRef:     `"2"`,
			wantTopic:   "echo:test",
			wantEvent:   "ping",
			wantPayload: `{"z":1,"a":[1,2],"m":{"k":"v"}}`,
		},
		{
			name:        "non-object payload",
			data:        `[null,null,"test:a","count",42]`,
			wantJoinRef: `null`,
			wantRef:     `null`,
			wantTopic:   "test:a",
			wantEvent:   "count",
			wantPayload: `42`,
		},
		{
			name:        "number beyond float64 range",
			data:        `[null,null,"t","e",{"n":1e999,"m":[-1e999]}]`,
			wantJoinRef: `null`,
			wantRef:     `null`,
			wantTopic:   "t",
			wantEvent:   "e",
			wantPayload: `{"n":1e999,"m":[-1e999]}`,
		},
		{
			name:        "surrounding whitespace",
			data:        "  \n[\"\", null, \"phoenix\", \"heartbeat\", {}]\n",
			wantJoinRef: `""`,
			wantRef:     `null`,
			wantTopic:   "phoenix",
			wantEvent:   "heartbeat",
			wantPayload: `{}`,
		},
		{
			name:        "numeric refs are opaque",
			data:        `[3,4,"test:a","msg",{}]`,
			wantJoinRef: `3`,
			wantRef:     `4`,
			wantTopic:   "test:a",
			wantEvent:   "msg",
			wantPayload: `{}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if string(env.JoinRef) != tt.wantJoinRef {
				t.Errorf("JoinRef = %s, want %s", env.JoinRef, tt.wantJoinRef)
			}
			if string(env.Ref) != tt.wantRef {
				t.Errorf("Ref = %s, want %s", env.Ref, tt.wantRef)
			}
			if env.Topic != tt.wantTopic {
				t.Errorf("Topic = %q, want %q", env.Topic, tt.wantTopic)
			}
			if env.Event != tt.wantEvent {
				t.Errorf("Event = %q, want %q", env.Event, tt.wantEvent)
			}
			if string(env.Payload) != tt.wantPayload {
				t.Errorf("Payload = %s, want %s", env.Payload, tt.wantPayload)
			}
		})
	}
}

// TestDecodeErrors tests that malformed frames are rejected with ErrMalformed
func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", []byte{}, ErrInvalidJSON},
		{"not json", []byte("hello"), ErrInvalidJSON},
		{"truncated array", []byte(`["1","1","t","e"`), ErrInvalidJSON},
		{"broken payload", []byte(`[null,null,"t","e",{"a":}]`), ErrInvalidJSON},
		{"object", []byte(`{"topic":"t"}`), ErrInvalidArity},
		{"string", []byte(`"frame"`), ErrInvalidArity},
		{"null", []byte(`null`), ErrInvalidArity},
		{"three elements", []byte(`["t","e",{}]`), ErrInvalidArity},
		{"six elements", []byte(`[null,null,"t","e",{},{}]`), ErrInvalidArity},
		{"empty array", []byte(`[]`), ErrInvalidArity},
		{"numeric topic", []byte(`[null,null,1,"e",{}]`), ErrInvalidField},
		{"null topic", []byte(`[null,null,null,"e",{}]`), ErrInvalidField},
		{"object event", []byte(`[null,null,"t",{},{}]`), ErrInvalidField},
		{"null event", []byte(`[null,null,"t",null,{}]`), ErrInvalidField},
		{"too large", append([]byte(`[null,null,"t","e","`), bytes.Repeat([]byte("a"), MaxFrameSize)...), ErrFrameTooLarge},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.data)
			if err == nil {
				t.Fatal("Decode() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode() error = %v, want it to wrap ErrMalformed", err)
			}
		})
	}
}

// TestDecodeCopiesInput verifies the envelope does not alias the input buffer
func TestDecodeCopiesInput(t *testing.T) {
	t.Parallel()

	data := []byte(`["1","2","echo:a","ping",{"n":1}]`)
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	for i := range data {
		data[i] = ' '
	}

	if string(env.Payload) != `{"n":1}` {
		t.Errorf("Payload = %s after input reuse, want {\"n\":1}", env.Payload)
	}
	if env.Ref.String() != "2" {
		t.Errorf("Ref = %q after input reuse, want 2", env.Ref.String())
	}
}

// TestEncode tests the Encode function with various envelopes
func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "full envelope",
			env: Envelope{
				JoinRef: StringRef("1"),
				Ref:     StringRef("2"),
				Topic:   "room:1",
				Event:   "phx_join",
				Payload: Payload(`{}`),
			},
			want: `["1","2","room:1","phx_join",{}]`,
		},
		{
			name: "zero refs encode as null",
			env: Envelope{
				Topic:   "echo:test",
				Event:   "ping",
				Payload: Payload(`{"n":1}`),
			},
			want: `[null,null,"echo:test","ping",{"n":1}]`,
		},
		{
			name: "empty payload encodes as object",
			env: Envelope{
				Topic: "phoenix",
				Event: "heartbeat",
			},
			want: `[null,null,"phoenix","heartbeat",{}]`,
		},
		{
			name: "topic escaping",
			env: Envelope{
				Topic:   `room:"quoted"`,
				Event:   "msg",
				Payload: EmptyPayload(),
			},
			want: `[null,null,"room:\"quoted\"","msg",{}]`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := string(Encode(tt.env))
			if got != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestEncodeDecodeIdentity tests that a decoded frame re-encodes to the same bytes
func TestEncodeDecodeIdentity(t *testing.T) {
	t.Parallel()

	frames := []string{
		`["1","1","room:lobby","phx_join",{}]`,
		`[null,"5","phoenix","heartbeat",{}]`,
		`["3","9","echo:test","ping",{"b":2,"a":1}]`,
	}

	for _, frame := range frames {
		env, err := Decode([]byte(frame))
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", frame, err)
		}
		if got := string(Encode(env)); got != frame {
			t.Errorf("Encode(Decode(%s)) = %s", frame, got)
		}
	}
}

// TestNewReply tests reply construction and ref correlation
func TestNewReply(t *testing.T) {
	t.Parallel()

	in := Envelope{
		JoinRef: StringRef("4"),
		Ref:     StringRef("8"),
		Topic:   "echo:test",
		Event:   "ping",
		Payload: Payload(`{"n":1}`),
	}

	reply := NewReply(in, in.Topic, "ok", in.Payload)
	want := `["4","8","echo:test","phx_reply",{"status":"ok","response":{"n":1}}]`
	if got := string(Encode(reply)); got != want {
		t.Errorf("Encode(NewReply()) = %s, want %s", got, want)
	}

	decoded, err := DecodeReply(reply.Payload)
	if err != nil {
		t.Fatalf("DecodeReply() error = %v", err)
	}
	if decoded.Status != "ok" {
		t.Errorf("Status = %q, want ok", decoded.Status)
	}
	if string(decoded.Response) != `{"n":1}` {
		t.Errorf("Response = %s, want {\"n\":1}", decoded.Response)
	}
}

// TestNewReplyEmptyResponse tests that a nil response is written as {}
func TestNewReplyEmptyResponse(t *testing.T) {
	t.Parallel()

	reply := NewReply(Envelope{}, "phoenix", "ok", nil)
	want := `[null,null,"phoenix","phx_reply",{"status":"ok","response":{}}]`
	if got := string(Encode(reply)); got != want {
		t.Errorf("Encode(NewReply()) = %s, want %s", got, want)
	}
}

// TestNewBroadcast tests that broadcasts never carry refs
func TestNewBroadcast(t *testing.T) {
	t.Parallel()

	b := NewBroadcast("room:1", "user_joined", MustPayload(map[string]string{"user": "anonymous"}))
	if !b.JoinRef.IsNull() || !b.Ref.IsNull() {
		t.Errorf("broadcast refs = (%s, %s), want null", b.JoinRef, b.Ref)
	}

	got := string(Encode(b))
	want := `[null,null,"room:1","user_joined",{"user":"anonymous"}]`
	if got != want {
		t.Errorf("Encode(NewBroadcast()) = %s, want %s", got, want)
	}
}

// TestRef tests Ref helpers
func TestRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ref        Ref
		wantNull   bool
		wantString string
	}{
		{"zero", nil, true, ""},
		{"json null", Ref("null"), true, ""},
		{"string", StringRef("12"), false, "12"},
		{"number", Ref("12"), false, "12"},
		{"empty string", StringRef(""), false, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.ref.IsNull(); got != tt.wantNull {
				t.Errorf("IsNull() = %v, want %v", got, tt.wantNull)
			}
			if got := tt.ref.String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
		})
	}
}

// TestMustPayloadPanics tests that unmarshalable values panic
func TestMustPayloadPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("MustPayload() expected panic")
		}
		if !strings.Contains(r.(string), "cannot marshal payload") {
			t.Errorf("panic = %v", r)
		}
	}()

	MustPayload(make(chan int))
}

// BenchmarkDecode benchmarks envelope decoding
func BenchmarkDecode(b *testing.B) {
	data := []byte(`["3","9","echo:test","ping",{"body":"hello world","n":1}]`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(data)
	}
}

// BenchmarkEncode benchmarks envelope encoding
func BenchmarkEncode(b *testing.B) {
	env := Envelope{
		JoinRef: StringRef("3"),
		Ref:     StringRef("9"),
		Topic:   "echo:test",
		Event:   "ping",
		Payload: Payload(`{"body":"hello world","n":1}`),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Encode(env)
	}
}
