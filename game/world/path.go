package world

import (
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
)

// PathQuery asks for a route without moving anything.
type PathQuery struct {
	Map       string
	From      nav.Position
	To        nav.Position
	Inventory terrain.Inventory
}

// PathResult is a planned route.
type PathResult struct {
	Route  ai.Route       `json:"route"`
	Points []nav.Position `json:"points"`
	// Cost is the route's weight in search-grid units (terrain cost × cost scale).
	Cost int `json:"cost"`
	// Travel is how long a follower would take to walk it.
	Travel time.Duration `json:"travel_ns"`
}

// FindPath plans a route on a map for a walker carrying q.Inventory. ok is false when
// either endpoint is off the grid or blocked, or no route exists.
func (w *WorldManager) FindPath(q PathQuery) (PathResult, bool, error) {
	m, err := w.Map(q.Map)
	if err != nil {
		return PathResult{}, false, err
	}
	start := time.Now()
	res, ok := planOn(m, q, w.opts)
	result := "found"
	if !ok {
		result = "none"
	}
	pathQueryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return res, ok, nil
}

func planOn(m *terrain.Map, q PathQuery, opts nav.Options) (PathResult, bool) {
	from, okFrom := m.WorldToCell(q.From)
	to, okTo := m.WorldToCell(q.To)
	if !okFrom || !okTo {
		return PathResult{}, false
	}
	opts = opts.Normalized()
	oracle := m.Oracle(func() terrain.Inventory { return q.Inventory })
	grid := nav.BuildGrid(oracle, opts.CostScale, opts.FallbackCost)
	route, ok := ai.FindPath(grid, from, to)
	if !ok {
		return PathResult{}, false
	}

	res := PathResult{Route: route, Cost: route.Cost(grid)}
	res.Points = make([]nav.Position, len(route))
	for i, c := range route {
		res.Points[i] = m.CellToWorld(c)
		if i == 0 {
			continue
		}
		cost, ok := oracle.Cost(c)
		if !ok {
			cost = opts.FallbackCost
		}
		res.Travel += nav.StepDelay(cost, opts.BaseSpeed)
	}
	return res, true
}

// Options returns the planning options followers on this world use.
func (w *WorldManager) Options() nav.Options { return w.opts.Normalized() }
