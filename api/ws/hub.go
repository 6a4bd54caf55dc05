package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub maintains the registry of connected sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session id → session
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session. A previous session with the same id is closed first.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.ID]; ok && old != s {
		old.Close()
	}
	h.sessions[s.ID] = s
	h.logger.Debug("ws session registered", zap.String("session", s.ID), zap.String("subject", s.Subject))
}

// Unregister removes the session with the given id.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Count returns the number of currently connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SessionInfo describes a connected session.
type SessionInfo struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject"`
	Watching []string `json:"watching,omitempty"`
}

// Snapshot lists connected sessions ordered by id.
func (h *Hub) Snapshot() []SessionInfo {
	h.mu.RLock()
	out := make([]SessionInfo, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, SessionInfo{ID: s.ID, Subject: s.Subject, Watching: s.watchList()})
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast sends a typed packet to every connected session.
// Slow clients whose queue is full miss it.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	data, err := json.Marshal(&Packet{Type: msgType, Payload: raw})
	if err != nil {
		return
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.SendRaw(data)
	}
}

// CloseAll closes every session and waits up to maxWait for them to unregister.
func (h *Hub) CloseAll(maxWait time.Duration) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	h.logger.Info("closing all ws sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	start := time.Now()
	for time.Since(start) < maxWait {
		if h.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
