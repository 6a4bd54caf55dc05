package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/audit"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/game/world"
	mw "github.com/kasuganosora/tilewalk/middleware"
	"go.uber.org/zap"
)

// ActorHandler handles actor REST endpoints.
type ActorHandler struct {
	wm     *world.WorldManager
	audit  *audit.Service // optional
	cache  cache.Cache    // optional; backs the trail endpoint
	logger *zap.Logger
}

// NewActorHandler creates an ActorHandler.
func NewActorHandler(wm *world.WorldManager, auditSvc *audit.Service, c cache.Cache, logger *zap.Logger) *ActorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActorHandler{wm: wm, audit: auditSvc, cache: c, logger: logger}
}

// placement is either a world position or a grid cell; the cell wins when both are set.
type placement struct {
	Position *nav.Position `json:"position"`
	Cell     *ai.Cell      `json:"cell"`
}

func (p placement) resolve(m *terrain.Map) (nav.Position, bool) {
	switch {
	case p.Cell != nil:
		return m.CellToWorld(*p.Cell), true
	case p.Position != nil:
		return *p.Position, true
	}
	return nav.Position{}, false
}

type spawnRequest struct {
	Name      string            `json:"name" binding:"max=64"`
	Map       string            `json:"map" binding:"required"`
	Inventory terrain.Inventory `json:"inventory"`
	placement
}

type mineRequest struct {
	Direction terrain.Direction `json:"direction" binding:"required,oneof=here left right up down"`
}

type patrolRequest struct {
	Waypoints []ai.Cell `json:"waypoints" binding:"required,min=1"`
	DwellMS   int64     `json:"dwell_ms" binding:"min=0"`
}

// record writes an audit entry for a mutation. err may be nil.
func (h *ActorHandler) record(c *gin.Context, action, actorID, mapName string, req interface{}, start time.Time, err error) {
	if h.audit == nil {
		return
	}
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Subject:    mw.GetSubject(c),
		ActorID:    actorID,
		Action:     action,
		Request:    req,
		IP:         c.ClientIP(),
		MapName:    mapName,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.audit.Log(e)
}

// actorMap returns the map an actor stands on.
func (h *ActorHandler) actorMap(id string) (*world.Actor, *terrain.Map, error) {
	a, err := h.wm.Actor(id)
	if err != nil {
		return nil, nil, err
	}
	m, err := h.wm.Map(a.MapName())
	if err != nil {
		return nil, nil, err
	}
	return a, m, nil
}

// List handles GET /api/actors.
func (h *ActorHandler) List(c *gin.Context) {
	views := h.wm.Views()
	if name := c.Query("map"); name != "" {
		filtered := views[:0]
		for _, v := range views {
			if v.Map == name {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	c.JSON(http.StatusOK, gin.H{"actors": views, "count": len(views)})
}

// Spawn handles POST /api/actors.
func (h *ActorHandler) Spawn(c *gin.Context) {
	start := time.Now()
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.wm.Map(req.Map)
	if err != nil {
		writeError(c, err)
		return
	}
	pos, ok := req.resolve(m)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position or cell required"})
		return
	}
	a, err := h.wm.Spawn(world.SpawnRequest{
		Name:      req.Name,
		Map:       req.Map,
		Position:  pos,
		Inventory: req.Inventory,
	})
	if err != nil {
		h.record(c, "spawn", "", req.Map, req, start, err)
		writeError(c, err)
		return
	}
	h.record(c, "spawn", a.ID(), req.Map, req, start, nil)
	v, _ := h.wm.View(a.ID())
	c.JSON(http.StatusCreated, v)
}

// Get handles GET /api/actors/:id.
func (h *ActorHandler) Get(c *gin.Context) {
	v, err := h.wm.View(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Despawn handles DELETE /api/actors/:id.
func (h *ActorHandler) Despawn(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	a, err := h.wm.Actor(id)
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.wm.Despawn(id)
	h.record(c, "despawn", id, a.MapName(), nil, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "despawned"})
}

// SetTarget handles PUT /api/actors/:id/target.
func (h *ActorHandler) SetTarget(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var req placement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, m, err := h.actorMap(id)
	if err != nil {
		writeError(c, err)
		return
	}
	pos, ok := req.resolve(m)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position or cell required"})
		return
	}
	changed, err := h.wm.SetTarget(id, pos)
	h.record(c, "target", id, a.MapName(), req, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	cell, inGrid := m.WorldToCell(pos)
	c.JSON(http.StatusOK, gin.H{"changed": changed, "cell": cell, "in_grid": inGrid})
}

// Displace handles POST /api/actors/:id/displace.
func (h *ActorHandler) Displace(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var req placement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, m, err := h.actorMap(id)
	if err != nil {
		writeError(c, err)
		return
	}
	pos, ok := req.resolve(m)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position or cell required"})
		return
	}
	err = h.wm.Displace(id, pos)
	h.record(c, "displace", id, a.MapName(), req, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	v, _ := h.wm.View(id)
	c.JSON(http.StatusOK, v)
}

// SetInventory handles PUT /api/actors/:id/inventory.
func (h *ActorHandler) SetInventory(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var req terrain.Inventory
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.wm.Actor(id)
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.wm.SetInventory(id, req)
	h.record(c, "inventory", id, a.MapName(), req, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": a.Inventory()})
}

// Mine handles POST /api/actors/:id/mine.
func (h *ActorHandler) Mine(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var req mineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.wm.Actor(id)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.wm.Mine(id, req.Direction)
	h.record(c, "mine", id, a.MapName(), req, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SetPatrol handles PUT /api/actors/:id/patrol.
func (h *ActorHandler) SetPatrol(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	var req patrolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.wm.Actor(id)
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.wm.SetPatrol(id, req.Waypoints, time.Duration(req.DwellMS)*time.Millisecond)
	h.record(c, "patrol", id, a.MapName(), req, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	v, _ := h.wm.View(id)
	c.JSON(http.StatusOK, v)
}

// ClearPatrol handles DELETE /api/actors/:id/patrol.
func (h *ActorHandler) ClearPatrol(c *gin.Context) {
	start := time.Now()
	id := c.Param("id")
	a, err := h.wm.Actor(id)
	if err != nil {
		writeError(c, err)
		return
	}
	err = h.wm.ClearPatrol(id)
	h.record(c, "patrol_clear", id, a.MapName(), nil, start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "patrol cleared"})
}

// Trail handles GET /api/actors/:id/trail. The response also carries the live
// state mirrored alongside the trail.
func (h *ActorHandler) Trail(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.wm.Actor(id); err != nil {
		writeError(c, err)
		return
	}
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"trail": []ai.Cell{}, "live": world.LiveState{}})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	trail, err := world.ReadTrail(ctx, h.cache, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if trail == nil {
		trail = []ai.Cell{}
	}
	live, err := world.ReadLiveState(ctx, h.cache, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trail": trail, "live": live})
}

// Commands handles GET /api/actors/:id/commands?limit=N. Despawned actors keep
// their history, so the id is not checked against the world.
func (h *ActorHandler) Commands(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command log disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	logs, err := h.audit.Recent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("command log query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": logs, "count": len(logs)})
}
