package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/api/ws"
	"github.com/kasuganosora/tilewalk/game/world"
	"github.com/kasuganosora/tilewalk/scheduler"
)

// AdminHandler serves operator diagnostics.
type AdminHandler struct {
	wm    *world.WorldManager
	sched *scheduler.Scheduler
	hub   *ws.Hub // optional
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(wm *world.WorldManager, sched *scheduler.Scheduler, hub *ws.Hub) *AdminHandler {
	return &AdminHandler{wm: wm, sched: sched, hub: hub}
}

// Scheduler reports what the scheduler is running.
// GET /api/admin/scheduler
func (h *AdminHandler) Scheduler(c *gin.Context) {
	views := h.wm.Views()
	following := 0
	for _, v := range views {
		if v.State == "following" {
			following++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"tickers":   h.sched.ListTickers(),
		"delays":    h.sched.DelayCount(),
		"actors":    len(views),
		"following": following,
		"maps":      h.wm.Maps(),
	})
}

// Sessions lists connected WebSocket clients.
// GET /api/admin/sessions
func (h *AdminHandler) Sessions(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "sessions": []ws.SessionInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": h.hub.Count(), "sessions": h.hub.Snapshot()})
}
