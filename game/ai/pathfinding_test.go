package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertContiguous checks every step of r is a single 4-connected move onto a walkable cell.
func assertContiguous(t *testing.T, g CostGrid, r Route) {
	t.Helper()
	for i := 1; i < len(r); i++ {
		assert.Equal(t, 1, Manhattan(r[i-1], r[i]), "step %d: %v -> %v", i, r[i-1], r[i])
		_, ok := g.Weight(r[i])
		assert.True(t, ok, "step %d enters blocked cell %v", i, r[i])
	}
}

func TestFindPath_SingleCell(t *testing.T) {
	g := CostGrid{{1}}
	r, ok := FindPath(g, Cell{0, 0}, Cell{0, 0})
	require.True(t, ok)
	assert.Equal(t, Route{{0, 0}}, r)
}

func TestFindPath_StartEqualsGoal_AnyGrid(t *testing.T) {
	g := NewCostGrid(4, 6, 3)
	for _, c := range []Cell{{0, 0}, {3, 5}, {2, 1}} {
		r, ok := FindPath(g, c, c)
		require.True(t, ok)
		assert.Equal(t, Route{c}, r)
	}
}

func TestFindPath_Simple2x2(t *testing.T) {
	g := CostGrid{{1, 1}, {1, 1}}
	r, ok := FindPath(g, Cell{1, 0}, Cell{1, 1})
	require.True(t, ok)
	assert.Equal(t, Route{{1, 0}, {1, 1}}, r)
}

func TestFindPath_OutOfBounds(t *testing.T) {
	g := NewCostGrid(3, 3, 1)
	cases := []struct{ start, goal Cell }{
		{Cell{-1, 0}, Cell{1, 1}},
		{Cell{0, 0}, Cell{3, 0}},
		{Cell{0, 3}, Cell{0, 0}},
		{Cell{0, 0}, Cell{0, -2}},
	}
	for _, tc := range cases {
		r, ok := FindPath(g, tc.start, tc.goal)
		assert.False(t, ok, "%v -> %v", tc.start, tc.goal)
		assert.Nil(t, r)
	}
}

func TestFindPath_BlockedEndpoints(t *testing.T) {
	g := NewCostGrid(3, 3, 1)
	g.Set(Cell{0, 0}, Blocked)
	g.Set(Cell{2, 2}, 0)

	_, ok := FindPath(g, Cell{0, 0}, Cell{1, 1})
	assert.False(t, ok, "blocked start")
	_, ok = FindPath(g, Cell{1, 1}, Cell{2, 2})
	assert.False(t, ok, "zero weight goal counts as blocked")
	_, ok = FindPath(g, Cell{0, 0}, Cell{0, 0})
	assert.False(t, ok, "blocked start==goal")
}

func TestFindPath_MalformedGrid(t *testing.T) {
	ragged := CostGrid{{1, 1, 1}, {1, 1}, {1, 1, 1}}
	_, ok := FindPath(ragged, Cell{0, 0}, Cell{2, 2})
	assert.False(t, ok)

	_, ok = FindPath(CostGrid{}, Cell{0, 0}, Cell{0, 0})
	assert.False(t, ok)
	_, ok = FindPath(nil, Cell{0, 0}, Cell{0, 0})
	assert.False(t, ok)
}

func TestFindPath_FullBarrier(t *testing.T) {
	g := NewCostGrid(5, 5, 1)
	for r := 0; r < 5; r++ {
		g.Set(Cell{r, 2}, Blocked)
	}
	r, ok := FindPath(g, Cell{0, 0}, Cell{4, 4})
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestFindPath_WeightedDetour(t *testing.T) {
	g := CostGrid{
		{1, 5, 5, 5, 1},
		{1, 1, 1, 1, 1},
	}
	r, ok := FindPath(g, Cell{0, 0}, Cell{0, 4})
	require.True(t, ok)
	assert.Equal(t, 6, r.Cost(g))
	assert.Contains(t, r, Cell{1, 1})
	assert.Contains(t, r, Cell{1, 3})
	assert.Equal(t, Cell{0, 0}, r[0])
	assert.Equal(t, Cell{0, 4}, r[len(r)-1])
	assertContiguous(t, g, r)
}

func TestFindPath_GapInWall(t *testing.T) {
	g := NewCostGrid(30, 30, 1)
	gap := Cell{17, 15}
	for r := 0; r < 30; r++ {
		if r != gap.Row {
			g.Set(Cell{r, 15}, Blocked)
		}
	}
	r, ok := FindPath(g, Cell{0, 0}, Cell{29, 29})
	require.True(t, ok)
	assert.Contains(t, r, gap)
	assertContiguous(t, g, r)
	// Manhattan distance is still achievable since the gap lies inside the bounding box.
	assert.Equal(t, 58, r.Cost(g))
}

func TestFindPath_OpenGridLength(t *testing.T) {
	for _, dims := range [][2]int{{1, 7}, {5, 5}, {8, 3}, {20, 13}} {
		rows, cols := dims[0], dims[1]
		g := NewCostGrid(rows, cols, 1)
		r, ok := FindPath(g, Cell{0, 0}, Cell{rows - 1, cols - 1})
		require.True(t, ok)
		assert.Equal(t, (rows-1)+(cols-1)+1, r.Len(), "%dx%d", rows, cols)
		assertContiguous(t, g, r)
	}
}

func TestFindPath_MinimalCostFixtures(t *testing.T) {
	cases := []struct {
		name        string
		grid        CostGrid
		start, goal Cell
		want        int
	}{
		{
			name: "swamp in the middle",
			grid: CostGrid{
				{1, 1, 1, 1},
				{1, 9, 9, 1},
				{1, 9, 9, 1},
				{1, 1, 1, 1},
			},
			start: Cell{1, 0}, goal: Cell{2, 3},
			want: 6,
		},
		{
			name: "cheaper to cross than go around",
			grid: CostGrid{
				{1, 2, 1},
				{50, 2, 50},
				{1, 2, 1},
			},
			start: Cell{0, 1}, goal: Cell{2, 1},
			want: 4,
		},
		{
			name: "corridor with blocks",
			grid: CostGrid{
				{1, -1, 1, 1, 1},
				{1, -1, 1, -1, 1},
				{1, 1, 1, -1, 1},
			},
			start: Cell{0, 0}, goal: Cell{2, 4},
			want: 10,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, ok := FindPath(tc.grid, tc.start, tc.goal)
			require.True(t, ok)
			assert.Equal(t, tc.want, r.Cost(tc.grid))
			assertContiguous(t, tc.grid, r)
		})
	}
}

func TestFindPath_Deterministic(t *testing.T) {
	g := NewCostGrid(6, 6, 1)
	first, ok := FindPath(g, Cell{0, 0}, Cell{5, 5})
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := FindPath(g, Cell{0, 0}, Cell{5, 5})
		assert.Equal(t, first, again)
	}
}

func TestFindPath_DoesNotMutateGrid(t *testing.T) {
	g := CostGrid{{1, 3, 1}, {2, -1, 1}, {1, 1, 1}}
	before := CostGrid{{1, 3, 1}, {2, -1, 1}, {1, 1, 1}}
	_, ok := FindPath(g, Cell{0, 0}, Cell{2, 2})
	require.True(t, ok)
	assert.Equal(t, before, g)
}

func TestRoute_Cost(t *testing.T) {
	g := CostGrid{{1, 4}, {2, -1}}
	assert.Equal(t, 0, Route{{0, 0}}.Cost(g))
	assert.Equal(t, 4, Route{{0, 0}, {0, 1}}.Cost(g))
	assert.Equal(t, -1, Route{{0, 0}, {1, 1}}.Cost(g))
}

func TestCostGrid_Rectangular(t *testing.T) {
	assert.True(t, NewCostGrid(2, 3, 1).Rectangular())
	assert.False(t, NewCostGrid(0, 3, 1).Rectangular())
	assert.False(t, CostGrid{{1}, {}}.Rectangular())
}
