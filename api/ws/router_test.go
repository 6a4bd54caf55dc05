package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		p, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = p
	}
	b, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: raw})
	require.NoError(t, err)
	return b
}

// drain returns the packets queued on a session without a connection.
func drain(t *testing.T, s *Session) []Packet {
	t.Helper()
	var out []Packet
	for {
		select {
		case data := <-s.SendChan:
			var p Packet
			require.NoError(t, json.Unmarshal(data, &p))
			out = append(out, p)
		default:
			return out
		}
	}
}

func errorOf(t *testing.T, p Packet) errorPayload {
	t.Helper()
	require.Equal(t, "error", p.Type)
	var e errorPayload
	require.NoError(t, json.Unmarshal(p.Payload, &e))
	return e
}

func TestRouter_Dispatch_Basic(t *testing.T) {
	r := NewRouter(zap.NewNop())
	var trace string
	r.On("ping", func(ctx context.Context, s *Session, _ json.RawMessage) error {
		trace = TraceIDFromCtx(ctx)
		return nil
	})

	s := NewSession("s1", "admin", nil, nil)
	r.Dispatch(s, makePacket(t, 1, "ping", nil))
	assert.NotEmpty(t, trace)
	assert.Equal(t, trace, s.TraceID)
	assert.Empty(t, drain(t, s))
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nil)
	s := NewSession("s1", "", nil, nil)
	r.Dispatch(s, []byte("not json"))

	pkts := drain(t, s)
	require.Len(t, pkts, 1)
	assert.Equal(t, "malformed packet", errorOf(t, pkts[0]).Error)
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nil)
	s := NewSession("s1", "", nil, nil)
	r.Dispatch(s, makePacket(t, 3, "nope", nil))

	pkts := drain(t, s)
	require.Len(t, pkts, 1)
	e := errorOf(t, pkts[0])
	assert.Equal(t, "unknown type", e.Error)
	assert.Equal(t, uint64(3), e.Seq)
	assert.Equal(t, "nope", e.Type)
}

func TestRouter_AntiReplay(t *testing.T) {
	r := NewRouter(nil)
	calls := 0
	r.On("ping", func(context.Context, *Session, json.RawMessage) error {
		calls++
		return nil
	})
	s := NewSession("s1", "", nil, nil)

	r.Dispatch(s, makePacket(t, 5, "ping", nil))
	r.Dispatch(s, makePacket(t, 5, "ping", nil))
	r.Dispatch(s, makePacket(t, 4, "ping", nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(5), s.LastSeq)

	r.Dispatch(s, makePacket(t, 6, "ping", nil))
	assert.Equal(t, 2, calls)

	// Seq zero is never tracked.
	r.Dispatch(s, makePacket(t, 0, "ping", nil))
	r.Dispatch(s, makePacket(t, 0, "ping", nil))
	assert.Equal(t, 4, calls)
	assert.Equal(t, uint64(6), s.LastSeq)
}

func TestRouter_HandlerErrors(t *testing.T) {
	r := NewRouter(nil)
	r.On("client", func(context.Context, *Session, json.RawMessage) error {
		return &ClientError{Msg: "bad actor"}
	})
	r.On("server", func(context.Context, *Session, json.RawMessage) error {
		return errors.New("db exploded")
	})
	s := NewSession("s1", "", nil, nil)

	r.Dispatch(s, makePacket(t, 1, "client", nil))
	r.Dispatch(s, makePacket(t, 2, "server", nil))
	pkts := drain(t, s)
	require.Len(t, pkts, 2)
	assert.Equal(t, "bad actor", errorOf(t, pkts[0]).Error)
	e := errorOf(t, pkts[1])
	assert.Equal(t, "internal error", e.Error)
	assert.NotEmpty(t, e.TraceID)
}

func TestRouter_PassesPayload(t *testing.T) {
	r := NewRouter(nil)
	var got struct {
		Actor string `json:"actor"`
	}
	r.On("view", func(_ context.Context, _ *Session, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})
	s := NewSession("s1", "", nil, nil)
	r.Dispatch(s, makePacket(t, 1, "view", map[string]string{"actor": "a1"}))
	assert.Equal(t, "a1", got.Actor)
}

func TestSession_WatchAndClose(t *testing.T) {
	s := NewSession("s1", "", nil, nil)
	assert.True(t, s.Watching("anyone"))

	s.Watch([]string{"a1"})
	assert.True(t, s.Watching("a1"))
	assert.False(t, s.Watching("a2"))

	s.Watch(nil)
	assert.True(t, s.Watching("a2"))

	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())
	s.Send("pong", nil)
	assert.Empty(t, drain(t, s))
}
