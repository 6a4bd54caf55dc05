package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/config"
	"github.com/kasuganosora/tilewalk/game/world"
	mw "github.com/kasuganosora/tilewalk/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	pubsub   cache.PubSub
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(ps cache.PubSub, hub *Hub, sec config.SecurityConfig, router *Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	h := &Handler{
		pubsub: ps,
		hub:    hub,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>. The route must sit behind mw.Auth.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(uuid.NewString(), mw.GetSubject(c), conn, h.logger)
	h.hub.Register(sess)
	h.logger.Info("ws connected", zap.String("session", sess.ID), zap.String("subject", sess.Subject))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if h.pubsub != nil {
		msgCh, unsub, err := h.pubsub.Subscribe(ctx, world.StepsChannel)
		if err != nil {
			h.logger.Error("ws subscribe failed", zap.Error(err))
			h.hub.Unregister(sess.ID)
			sess.Close()
			return
		}
		defer unsub()
		go h.forward(ctx, sess, msgCh)
	}

	sess.Send("welcome", gin.H{"session": sess.ID, "subject": sess.Subject})
	h.readPump(sess)
}

// forward relays follower events the session watches until ctx ends.
func (h *Handler) forward(ctx context.Context, s *Session, msgCh <-chan *cache.Message) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev world.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Debug("ws dropped malformed event", zap.String("payload", msg.Payload))
				continue
			}
			if !s.Watching(ev.Actor) {
				continue
			}
			data, err := json.Marshal(&Packet{Type: "event", Payload: json.RawMessage(msg.Payload)})
			if err != nil {
				continue
			}
			s.SendRaw(data)
		case <-ctx.Done():
			return
		case <-s.Done:
			return
		}
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *Session) {
	defer func() {
		s.Close()
		h.hub.Unregister(s.ID)
		h.logger.Info("ws disconnected", zap.String("session", s.ID))
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}
