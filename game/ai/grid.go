package ai

import "fmt"

// Blocked marks a cell that cannot be entered. Any weight <= 0 is treated the same way.
const Blocked = -1

// Cell is a grid coordinate. Row and Col are zero-based.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Manhattan returns the 4-connected distance between two cells.
func Manhattan(a, b Cell) int {
	dr := a.Row - b.Row
	if dr < 0 {
		dr = -dr
	}
	dc := a.Col - b.Col
	if dc < 0 {
		dc = -dc
	}
	return dr + dc
}

// CostGrid stores the cost of entering each cell, indexed [row][col].
type CostGrid [][]int

// NewCostGrid creates a rows×cols grid with every cell set to fill.
func NewCostGrid(rows, cols, fill int) CostGrid {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	g := make(CostGrid, rows)
	for r := range g {
		g[r] = make([]int, cols)
		for c := range g[r] {
			g[r][c] = fill
		}
	}
	return g
}

// Rows returns the number of rows.
func (g CostGrid) Rows() int { return len(g) }

// Cols returns the width of the first row, or 0 for an empty grid.
func (g CostGrid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Rectangular reports whether the grid is non-empty and every row has the same width.
func (g CostGrid) Rectangular() bool {
	cols := g.Cols()
	if cols == 0 {
		return false
	}
	for _, row := range g {
		if len(row) != cols {
			return false
		}
	}
	return true
}

// InBounds reports whether c lies inside [0,rows)×[0,cols).
func (g CostGrid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Rows() && c.Col >= 0 && c.Col < len(g[c.Row])
}

// Weight returns the entry cost of c. ok is false when c is out of bounds or blocked.
func (g CostGrid) Weight(c Cell) (w int, ok bool) {
	if !g.InBounds(c) {
		return 0, false
	}
	w = g[c.Row][c.Col]
	if w <= 0 {
		return 0, false
	}
	return w, true
}

// Set writes the weight of c. Out-of-bounds writes are ignored.
func (g CostGrid) Set(c Cell, w int) {
	if !g.InBounds(c) {
		return
	}
	g[c.Row][c.Col] = w
}

// Route is an ordered sequence of cells from start to goal, both inclusive.
type Route []Cell

// Len returns the number of cells in the route.
func (r Route) Len() int { return len(r) }

// Head returns the first cell. ok is false for an empty route.
func (r Route) Head() (Cell, bool) {
	if len(r) == 0 {
		return Cell{}, false
	}
	return r[0], true
}

// Cost sums the entry weights of every cell after the first.
// Returns -1 if the route crosses a blocked or out-of-bounds cell.
func (r Route) Cost(g CostGrid) int {
	total := 0
	for i := 1; i < len(r); i++ {
		w, ok := g.Weight(r[i])
		if !ok {
			return -1
		}
		total += w
	}
	return total
}

// Clone returns an independent copy of the route.
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}
