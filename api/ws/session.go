// Package ws is a WebSocket control channel: clients steer actors with JSON packets
// and receive follower events for the actors they watch.
package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected client.
type Session struct {
	ID      string
	Subject string
	Conn    *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu      sync.Mutex
	watched map[string]bool // actor ids; empty means every actor
	logger  *zap.Logger
}

// NewSession creates a Session. With a non-nil conn the write goroutine is started.
func NewSession(id, subject string, conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:       id,
		Subject:  subject,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		watched:  make(map[string]bool),
		logger:   logger.With(zap.String("session", id)),
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send marshals and queues a packet. Drops it if the queue is full or the session closed.
func (s *Session) Send(msgType string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("ws marshal failed", zap.String("type", msgType), zap.Error(err))
			return
		}
		raw = b
	}
	data, err := json.Marshal(&Packet{Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet")
		}
	}
}

// Close signals the writePump to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Watch limits forwarded events to the given actors; no ids means all actors.
func (s *Session) Watch(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.watched[id] = true
	}
}

// Watching reports whether events for actorID should be forwarded.
func (s *Session) Watching(actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched) == 0 || s.watched[actorID]
}

func (s *Session) watchList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.watched) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.watched))
	for id := range s.watched {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetReadDeadline resets the WebSocket read deadline.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
