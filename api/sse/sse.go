// Package sse streams follower events to EventSource clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/game/world"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: pubsub, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>[&actor=<id>]. The route must sit behind
// mw.Auth. Each follower event is sent with its type as the SSE event name; with
// actor set only that actor's events are forwarded.
func (h *Handler) ServeSSE(c *gin.Context) {
	actor := c.Query("actor")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, world.StepsChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var head struct {
				Type  string `json:"type"`
				Actor string `json:"actor"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil || head.Type == "" {
				h.logger.Debug("sse dropped malformed event", zap.String("payload", msg.Payload))
				continue
			}
			if actor != "" && head.Actor != actor {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", head.Type, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
