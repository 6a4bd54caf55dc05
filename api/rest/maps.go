package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/game/world"
)

// MapHandler serves map views and stateless path queries.
type MapHandler struct {
	wm *world.WorldManager
}

// NewMapHandler creates a MapHandler.
func NewMapHandler(wm *world.WorldManager) *MapHandler {
	return &MapHandler{wm: wm}
}

type mapSummary struct {
	Name     string  `json:"name"`
	Rows     int     `json:"rows"`
	Cols     int     `json:"cols"`
	CellSize float64 `json:"cell_size"`
	OriginX  int     `json:"origin_x"`
	OriginY  int     `json:"origin_y"`
	FlipRows bool    `json:"flip_rows"`
}

func summarize(m *terrain.Map) mapSummary {
	rows, cols := m.Bounds()
	tm := m.Tilemap()
	size := tm.CellSize
	if size <= 0 {
		size = 1
	}
	return mapSummary{
		Name:     m.Name(),
		Rows:     rows,
		Cols:     cols,
		CellSize: size,
		OriginX:  tm.OriginX,
		OriginY:  tm.OriginY,
		FlipRows: tm.FlipRows,
	}
}

// List handles GET /api/maps.
func (h *MapHandler) List(c *gin.Context) {
	names := h.wm.Maps()
	maps := make([]mapSummary, 0, len(names))
	for _, n := range names {
		m, err := h.wm.Map(n)
		if err != nil {
			continue
		}
		maps = append(maps, summarize(m))
	}
	c.JSON(http.StatusOK, gin.H{"maps": maps})
}

// Detail handles GET /api/maps/:name?goat=&boat=. The cost grid is the search grid a
// walker with that equipment would plan on; -1 marks blocked cells.
func (h *MapHandler) Detail(c *gin.Context) {
	m, err := h.wm.Map(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := h.wm.Items(m.Name())
	if err != nil {
		writeError(c, err)
		return
	}
	inv := terrain.Inventory{
		Goat: queryBool(c, "goat"),
		Boat: queryBool(c, "boat"),
	}
	opts := h.wm.Options()
	grid := nav.BuildGrid(m.Oracle(func() terrain.Inventory { return inv }), opts.CostScale, opts.FallbackCost)

	c.JSON(http.StatusOK, gin.H{
		"map":       summarize(m),
		"glyphs":    m.Glyphs(),
		"items":     items,
		"inventory": inv,
		"costs":     grid,
	})
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}

type pathRequest struct {
	Map       string            `json:"map" binding:"required"`
	From      placement         `json:"from"`
	To        placement         `json:"to"`
	Inventory terrain.Inventory `json:"inventory"`
}

// FindPath handles POST /api/path. A missing route is 404 with found=false.
func (h *MapHandler) FindPath(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.wm.Map(req.Map)
	if err != nil {
		writeError(c, err)
		return
	}
	from, okFrom := req.From.resolve(m)
	to, okTo := req.To.resolve(m)
	if !okFrom || !okTo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to need a position or cell"})
		return
	}
	res, ok, err := h.wm.FindPath(world.PathQuery{Map: req.Map, From: from, To: to, Inventory: req.Inventory})
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"found": false, "error": "no path"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"found":     true,
		"route":     res.Route,
		"points":    res.Points,
		"cost":      res.Cost,
		"travel_ms": res.Travel.Milliseconds(),
	})
}
