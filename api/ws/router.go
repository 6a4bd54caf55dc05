package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// ClientError is an error whose message is safe to send back to the client.
type ClientError struct{ Msg string }

func (e *ClientError) Error() string { return e.Msg }

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
// Handler errors are answered with an "error" packet.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.String("session", s.ID), zap.Error(err))
		s.Send("error", errorPayload{Error: "malformed packet"})
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session", s.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("session", s.ID))
		s.Send("error", errorPayload{Seq: pkt.Seq, Type: pkt.Type, Error: "unknown type"})
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		msg := "internal error"
		var ce *ClientError
		if errors.As(err, &ce) {
			msg = ce.Msg
		} else {
			r.logger.Error("handler error",
				zap.String("type", pkt.Type),
				zap.String("session", s.ID),
				zap.String("trace_id", s.TraceID),
				zap.Error(err))
		}
		s.Send("error", errorPayload{Seq: pkt.Seq, Type: pkt.Type, Error: msg, TraceID: s.TraceID})
	}
}

type errorPayload struct {
	Seq     uint64 `json:"seq,omitempty"`
	Type    string `json:"type,omitempty"`
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
