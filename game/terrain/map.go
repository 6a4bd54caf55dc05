package terrain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
)

var (
	// ErrOutOfBounds is returned for cells outside the map.
	ErrOutOfBounds = errors.New("terrain: cell out of bounds")
	// ErrNotMineable is returned when mining a tile whose kind is not mineable.
	ErrNotMineable = errors.New("terrain: tile is not mineable")
	// ErrShape is returned for empty or ragged tile layers.
	ErrShape = errors.New("terrain: tile layer must be a non-empty rectangle")
)

// Tilemap places a grid in world space. Cell (row 0, col 0) covers the square whose
// lower corner is (OriginX, OriginY) in cell units. With FlipRows, row 0 is the top
// (highest Y) line instead.
type Tilemap struct {
	OriginX  int
	OriginY  int
	CellSize float64
	FlipRows bool
}

func (tm Tilemap) size() float64 {
	if tm.CellSize <= 0 {
		return 1
	}
	return tm.CellSize
}

func (tm Tilemap) worldToCell(p nav.Position, rows, cols int) (ai.Cell, bool) {
	cx := int(math.Floor(p.X/tm.size())) - tm.OriginX
	cy := int(math.Floor(p.Y/tm.size())) - tm.OriginY
	row := cy
	if tm.FlipRows {
		row = rows - 1 - cy
	}
	c := ai.Cell{Row: row, Col: cx}
	return c, row >= 0 && row < rows && cx >= 0 && cx < cols
}

func (tm Tilemap) cellToWorld(c ai.Cell, rows int) nav.Position {
	cy := c.Row
	if tm.FlipRows {
		cy = rows - 1 - c.Row
	}
	s := tm.size()
	return nav.Position{
		X: (float64(tm.OriginX+c.Col) + 0.5) * s,
		Y: (float64(tm.OriginY+cy) + 0.5) * s,
	}
}

// Map is a named tile layer. It is safe for concurrent use.
type Map struct {
	name  string
	table *Table

	mu    sync.RWMutex
	tm    Tilemap
	tiles [][]string // kind names, [row][col]
}

// NewMap creates a map over tiles, which are kind names from table.
func NewMap(name string, table *Table, tm Tilemap, tiles [][]string) (*Map, error) {
	if err := checkTiles(table, tiles); err != nil {
		return nil, err
	}
	return &Map{name: name, table: table, tm: tm, tiles: cloneTiles(tiles)}, nil
}

func checkTiles(table *Table, tiles [][]string) error {
	if len(tiles) == 0 || len(tiles[0]) == 0 {
		return ErrShape
	}
	for r, row := range tiles {
		if len(row) != len(tiles[0]) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrShape, r, len(row), len(tiles[0]))
		}
		for c, name := range row {
			if _, ok := table.Kind(name); !ok {
				return fmt.Errorf("terrain: unknown kind %q at (%d,%d)", name, r, c)
			}
		}
	}
	return nil
}

func cloneTiles(tiles [][]string) [][]string {
	out := make([][]string, len(tiles))
	for i, row := range tiles {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Table returns the kind table the map was built with.
func (m *Map) Table() *Table { return m.table }

// Bounds returns the grid dimensions.
func (m *Map) Bounds() (rows, cols int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tiles), len(m.tiles[0])
}

// Tilemap returns the world placement.
func (m *Map) Tilemap() Tilemap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tm
}

// WorldToCell implements nav.Mapping.
func (m *Map) WorldToCell(p nav.Position) (ai.Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tm.worldToCell(p, len(m.tiles), len(m.tiles[0]))
}

// CellToWorld implements nav.Mapping.
func (m *Map) CellToWorld(c ai.Cell) nav.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tm.cellToWorld(c, len(m.tiles))
}

// KindAt returns the kind at c.
func (m *Map) KindAt(c ai.Cell) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kindAt(c)
}

func (m *Map) kindAt(c ai.Cell) (Kind, bool) {
	if c.Row < 0 || c.Row >= len(m.tiles) || c.Col < 0 || c.Col >= len(m.tiles[c.Row]) {
		return Kind{}, false
	}
	return m.table.Kind(m.tiles[c.Row][c.Col])
}

// Tiles returns a copy of the tile layer.
func (m *Map) Tiles() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneTiles(m.tiles)
}

// Direction names a neighbour of a cell as seen in world space.
type Direction string

const (
	Here  Direction = "here"
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up" // towards +Y
	Down  Direction = "down"
)

// Neighbor returns the cell next to c in direction d, honouring FlipRows.
// ok is false for unknown directions and cells off the map.
func (m *Map) Neighbor(c ai.Cell, d Direction) (ai.Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	up := 1
	if m.tm.FlipRows {
		up = -1
	}
	switch d {
	case Here:
	case Left:
		c.Col--
	case Right:
		c.Col++
	case Up:
		c.Row += up
	case Down:
		c.Row -= up
	default:
		return c, false
	}
	_, ok := m.kindAt(c)
	return c, ok
}

// Glyphs renders the layer as one string per row using each kind's glyph.
// Kinds without a glyph render as '?'.
func (m *Map) Glyphs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.tiles))
	for r, row := range m.tiles {
		var b strings.Builder
		for _, name := range row {
			k, _ := m.table.Kind(name)
			if k.Glyph == "" {
				b.WriteByte('?')
				continue
			}
			b.WriteString(k.Glyph)
		}
		out[r] = b.String()
	}
	return out
}

// Replace swaps in a new tile layer and placement, e.g. after the map file changed.
func (m *Map) Replace(tm Tilemap, tiles [][]string) error {
	if err := checkTiles(m.table, tiles); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tm = tm
	m.tiles = cloneTiles(tiles)
	return nil
}

// SetKind overwrites a single tile.
func (m *Map) SetKind(c ai.Cell, name string) error {
	if _, ok := m.table.Kind(name); !ok {
		return fmt.Errorf("terrain: unknown kind %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kindAt(c); !ok {
		return ErrOutOfBounds
	}
	m.tiles[c.Row][c.Col] = name
	return nil
}

// Mine turns a mineable tile into the table's floor kind and returns the kind it replaced.
func (m *Map) Mine(c ai.Cell) (Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kindAt(c)
	if !ok {
		return Kind{}, ErrOutOfBounds
	}
	if !k.Mineable {
		return k, ErrNotMineable
	}
	m.tiles[c.Row][c.Col] = m.table.Floor()
	return k, nil
}

// Oracle returns a cost oracle that sees the map through the equipment reported by inv.
// inv is called on every query, so equipment changes apply to the next plan.
func (m *Map) Oracle(inv func() Inventory) *View {
	if inv == nil {
		inv = func() Inventory { return Inventory{} }
	}
	return &View{m: m, inv: inv}
}

// View is a per-walker cost oracle over a Map.
type View struct {
	m   *Map
	inv func() Inventory
}

var _ nav.CostOracle = (*View)(nil)

// Bounds implements nav.CostOracle.
func (v *View) Bounds() (int, int) { return v.m.Bounds() }

// IsWalkable implements nav.CostOracle. Unknown and out-of-bounds cells are not walkable.
func (v *View) IsWalkable(c ai.Cell) bool {
	k, ok := v.m.KindAt(c)
	return ok && k.walkable(v.inv())
}

// Cost implements nav.CostOracle. ok is false for cells the walker cannot enter.
func (v *View) Cost(c ai.Cell) (float64, bool) {
	k, ok := v.m.KindAt(c)
	if !ok {
		return math.Inf(1), false
	}
	inv := v.inv()
	if !k.walkable(inv) {
		return math.Inf(1), false
	}
	return k.cost(inv), true
}
