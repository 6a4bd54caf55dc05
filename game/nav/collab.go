package nav

import (
	"math"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/scheduler"
)

// Position is a point in world space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CostOracle is the source of truth for walkability and entry cost, keyed by grid cell.
// Implementations must be safe for concurrent reads.
type CostOracle interface {
	IsWalkable(c ai.Cell) bool
	// Cost returns the cost to enter c. ok is false when c is blocked.
	Cost(c ai.Cell) (cost float64, ok bool)
	Bounds() (rows, cols int)
}

// Mapping converts between world positions and grid cells.
type Mapping interface {
	// WorldToCell returns the cell containing p. ok is false when p lies outside the grid.
	WorldToCell(p Position) (c ai.Cell, ok bool)
	// CellToWorld returns the world position of the centre of c.
	CellToWorld(c ai.Cell) Position
}

// Body is the entity a follower moves.
type Body interface {
	Position() Position
	MoveTo(p Position)
}

// Scheduler is the delay primitive the follower loop suspends on.
// *scheduler.Scheduler satisfies it.
type Scheduler interface {
	AddDelay(name string, delay time.Duration, fn scheduler.TaskFn)
	Remove(name string)
}

// Observer receives follower lifecycle notifications. Calls are made without the
// follower's lock held, from the goroutine running Advance or SetTarget.
type Observer interface {
	Replanned(f *Follower, route ai.Route)
	Stepped(f *Follower, to ai.Cell, delay time.Duration)
	Arrived(f *Follower, at ai.Cell)
	Unreachable(f *Follower, from, target ai.Cell)
}

// MaxWeight is the largest weight BuildGrid puts in a grid.
const MaxWeight = math.MaxInt32

// BuildGrid snapshots oracle into a CostGrid. Walkable costs are multiplied by scale and
// rounded into [1, MaxWeight]; invalid costs fall back to fallback.
func BuildGrid(oracle CostOracle, scale, fallback float64) ai.CostGrid {
	rows, cols := oracle.Bounds()
	grid := ai.NewCostGrid(rows, cols, ai.Blocked)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cell := ai.Cell{Row: r, Col: c}
			if !oracle.IsWalkable(cell) {
				continue
			}
			cost, ok := oracle.Cost(cell)
			if !ok || !validCost(cost) {
				cost = fallback
			}
			grid[r][c] = weight(cost * scale)
		}
	}
	return grid
}

func weight(scaled float64) int {
	if scaled >= MaxWeight || math.IsNaN(scaled) {
		return MaxWeight
	}
	w := int(math.Round(scaled))
	if w < 1 {
		w = 1
	}
	return w
}

func validCost(cost float64) bool {
	return cost > 0 && !math.IsInf(cost, 0) && !math.IsNaN(cost)
}
