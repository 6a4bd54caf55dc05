package world

import (
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/model"
	"github.com/kasuganosora/tilewalk/resource"
	"github.com/kasuganosora/tilewalk/scheduler"
	"github.com/kasuganosora/tilewalk/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ---- Helpers ----

// manualScheduler fires delays and tickers only when told to.
type manualScheduler struct {
	mu      sync.Mutex
	delays  map[string]scheduler.TaskFn
	tickers map[string]scheduler.TaskFn
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{
		delays:  make(map[string]scheduler.TaskFn),
		tickers: make(map[string]scheduler.TaskFn),
	}
}

func (m *manualScheduler) AddDelay(name string, _ time.Duration, fn scheduler.TaskFn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[name] = fn
}

func (m *manualScheduler) AddTicker(name string, _ time.Duration, fn scheduler.TaskFn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[name] = fn
}

func (m *manualScheduler) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.delays, name)
	delete(m.tickers, name)
}

func (m *manualScheduler) fire(name string) bool {
	m.mu.Lock()
	fn, ok := m.delays[name]
	delete(m.delays, name)
	m.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (m *manualScheduler) tick(name string) bool {
	m.mu.Lock()
	fn, ok := m.tickers[name]
	m.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

func (m *manualScheduler) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, d := m.delays[name]
	_, t := m.tickers[name]
	return d || t
}

type countingObserver struct {
	mu          sync.Mutex
	replans     int
	steps       []ai.Cell
	arrived     int
	unreachable int
	forgotten   []string
}

func (o *countingObserver) Replanned(*nav.Follower, ai.Route) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replans++
}

func (o *countingObserver) Stepped(_ *nav.Follower, to ai.Cell, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, to)
}

func (o *countingObserver) Arrived(*nav.Follower, ai.Cell) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.arrived++
}

func (o *countingObserver) Unreachable(*nav.Follower, ai.Cell, ai.Cell) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unreachable++
}

func (o *countingObserver) Forget(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forgotten = append(o.forgotten, id)
}

type fixture struct {
	w     *WorldManager
	sched *manualScheduler
	obs   *countingObserver
}

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	sched := newManualScheduler()
	obs := &countingObserver{}
	w, err := NewWorldManager(Config{
		Scheduler:  sched,
		DB:         db,
		Observer:   obs,
		Nav:        nav.DefaultOptions(),
		PatrolTick: 100 * time.Millisecond,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(w.StopAll)
	return &fixture{w: w, sched: sched, obs: obs}
}

// glyphMap builds a map from glyph rows; row 0 is the first string.
func glyphMap(t *testing.T, name string, rows ...string) *terrain.Map {
	t.Helper()
	mf := &resource.MapFile{Name: name, Rows: rows}
	tiles, err := mf.Tiles(terrain.DefaultTable())
	require.NoError(t, err)
	m, err := terrain.NewMap(name, terrain.DefaultTable(), terrain.Tilemap{}, tiles)
	require.NoError(t, err)
	return m
}

func (fx *fixture) spawnAt(t *testing.T, mapName string, c ai.Cell, inv terrain.Inventory) *Actor {
	t.Helper()
	m, err := fx.w.Map(mapName)
	require.NoError(t, err)
	a, err := fx.w.Spawn(SpawnRequest{Name: "walker", Map: mapName, Position: m.CellToWorld(c), Inventory: inv})
	require.NoError(t, err)
	return a
}

func (fx *fixture) cellOf(t *testing.T, id string) ai.Cell {
	t.Helper()
	v, err := fx.w.View(id)
	require.NoError(t, err)
	return v.Cell
}

func loopName(id string) string { return "nav:" + id }

// ---- Maps ----

func TestNewWorldManager_RequiresScheduler(t *testing.T) {
	_, err := NewWorldManager(Config{})
	assert.Error(t, err)
}

func TestAddMap_DuplicateAndLookup(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "b", "..")))
	require.NoError(t, fx.w.AddMap(glyphMap(t, "a", "..")))
	assert.ErrorIs(t, fx.w.AddMap(glyphMap(t, "a", "...")), ErrMapExists)
	assert.Equal(t, []string{"a", "b"}, fx.w.Maps())

	_, err := fx.w.Map("nope")
	assert.ErrorIs(t, err, ErrMapNotFound)
}

// ---- Actors ----

func TestSpawn_WalksToTarget(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "line", "....")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "line", ai.Cell{Row: 0, Col: 0}, terrain.Inventory{})
	require.True(t, fx.sched.has(loopName(a.ID())), "loop armed on spawn")

	changed, err := fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 3}))
	require.NoError(t, err)
	assert.True(t, changed)

	for i := 0; i < 3; i++ {
		require.True(t, fx.sched.fire(loopName(a.ID())))
	}
	v, err := fx.w.View(a.ID())
	require.NoError(t, err)
	assert.Equal(t, ai.Cell{Row: 0, Col: 3}, v.Cell)
	assert.Equal(t, "idle", v.State)
	require.NotNil(t, v.Target)
	assert.Equal(t, m.CellToWorld(ai.Cell{Row: 0, Col: 3}), *v.Target)
	assert.Equal(t, []ai.Cell{{Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}}, fx.obs.steps)
	assert.Equal(t, 1, fx.obs.arrived)
	assert.True(t, fx.sched.has(loopName(a.ID())), "loop keeps ticking while idle")
}

func TestSpawn_Errors(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "..")))

	_, err := fx.w.Spawn(SpawnRequest{Map: "other"})
	assert.ErrorIs(t, err, ErrMapNotFound)
	_, err = fx.w.Spawn(SpawnRequest{Map: "m", Position: nav.Position{X: 5, Y: 0.5}})
	assert.ErrorIs(t, err, ErrOffMap)

	a, err := fx.w.Spawn(SpawnRequest{Map: "m", Position: nav.Position{X: 0.5, Y: 0.5}})
	require.NoError(t, err)
	assert.Len(t, a.Name(), 8, "name defaults to an id prefix")
}

func TestDespawn(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "...")))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	require.NoError(t, fx.w.SetPatrol(a.ID(), []ai.Cell{{Row: 0, Col: 2}}, 0))

	require.NoError(t, fx.w.Despawn(a.ID()))
	assert.False(t, fx.sched.has(loopName(a.ID())))
	assert.False(t, fx.sched.has(patrolTask(a.ID())))
	assert.Equal(t, []string{a.ID()}, fx.obs.forgotten)

	assert.ErrorIs(t, fx.w.Despawn(a.ID()), ErrActorNotFound)
	_, err := fx.w.Actor(a.ID())
	assert.ErrorIs(t, err, ErrActorNotFound)
	_, err = fx.w.SetTarget(a.ID(), nav.Position{})
	assert.ErrorIs(t, err, ErrActorNotFound)
}

func TestDisplace_Replans(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "m", ".....")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	_, err := fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 4}))
	require.NoError(t, err)

	fx.sched.fire(loopName(a.ID()))
	require.Equal(t, 1, fx.obs.replans)

	require.NoError(t, fx.w.Displace(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 3})))
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, 2, fx.obs.replans)
	assert.Equal(t, ai.Cell{Row: 0, Col: 4}, fx.cellOf(t, a.ID()))

	assert.ErrorIs(t, fx.w.Displace(a.ID(), nav.Position{X: -1, Y: 0}), ErrOffMap)
}

func TestViews_Sorted(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "...")))
	for _, n := range []string{"zed", "amy", "kim"} {
		_, err := fx.w.Spawn(SpawnRequest{Name: n, Map: "m", Position: nav.Position{X: 0.5, Y: 0.5}})
		require.NoError(t, err)
	}
	views := fx.w.Views()
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, 3)
}

func TestSetInventory_InvalidatesRoute(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "m", ".....")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 4}))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	require.Equal(t, 1, fx.obs.replans)

	require.NoError(t, fx.w.SetInventory(a.ID(), terrain.Inventory{Goat: true}))
	assert.True(t, a.Inventory().Goat)
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, 2, fx.obs.replans)
}

func TestUnreachableTarget_ReportedOnce(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "m", ".#.")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))

	for i := 0; i < 4; i++ {
		fx.sched.fire(loopName(a.ID()))
	}
	assert.Equal(t, 1, fx.obs.unreachable)
	v, _ := fx.w.View(a.ID())
	assert.Nil(t, v.Target, "unreachable target is abandoned")
}

// ---- Items ----

func TestPickup_GrantsItemAndReplans(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "m", "....")
	require.NoError(t, fx.w.AddMap(m))
	require.NoError(t, fx.w.PlaceItem("m", ai.Cell{Row: 0, Col: 1}, terrain.ItemBoat))
	require.NoError(t, fx.w.PlaceItem("m", ai.Cell{Row: 0, Col: 3}, terrain.ItemGoat))

	before := promtest.ToFloat64(pickupsTotal.WithLabelValues(terrain.ItemBoat))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))

	fx.sched.fire(loopName(a.ID()))
	assert.True(t, a.Inventory().Boat)
	assert.False(t, a.Inventory().Goat)
	assert.Equal(t, before+1, promtest.ToFloat64(pickupsTotal.WithLabelValues(terrain.ItemBoat)))

	items, err := fx.w.Items("m")
	require.NoError(t, err)
	assert.Equal(t, []Item{{Kind: terrain.ItemGoat, Cell: ai.Cell{Row: 0, Col: 3}}}, items)

	// the pickup dropped the cached route, so the next step plans again
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, 2, fx.obs.replans)
	assert.Equal(t, ai.Cell{Row: 0, Col: 2}, fx.cellOf(t, a.ID()))
}

func TestPlaceItem_Errors(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "..")))
	assert.ErrorIs(t, fx.w.PlaceItem("m", ai.Cell{}, "sword"), ErrBadItem)
	assert.ErrorIs(t, fx.w.PlaceItem("x", ai.Cell{}, terrain.ItemBoat), ErrMapNotFound)
	assert.ErrorIs(t, fx.w.PlaceItem("m", ai.Cell{Row: 3}, terrain.ItemBoat), terrain.ErrOutOfBounds)
	_, err := fx.w.Items("x")
	assert.ErrorIs(t, err, ErrMapNotFound)
}

// ---- Mining ----

func TestMine_PersistsAndReplays(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fx := newFixture(t, db)
	m := glyphMap(t, "quarry", ".^.")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "quarry", ai.Cell{}, terrain.Inventory{})

	_, err := fx.w.Mine(a.ID(), terrain.Right)
	assert.ErrorIs(t, err, ErrNoPickaxe)

	require.NoError(t, fx.w.SetInventory(a.ID(), terrain.Inventory{Pickaxe: true}))
	_, err = fx.w.Mine(a.ID(), terrain.Left)
	assert.ErrorIs(t, err, terrain.ErrOutOfBounds)
	_, err = fx.w.Mine(a.ID(), terrain.Here)
	assert.ErrorIs(t, err, terrain.ErrNotMineable)

	res, err := fx.w.Mine(a.ID(), terrain.Right)
	require.NoError(t, err)
	assert.Equal(t, MineResult{Map: "quarry", Cell: ai.Cell{Row: 0, Col: 1}, From: "mountain", To: "grass"}, res)

	var edits []model.MapEdit
	require.NoError(t, db.Find(&edits).Error)
	require.Len(t, edits, 1)
	assert.Equal(t, a.ID(), edits[0].ActorID)

	// the file version still has the mountain; the edit is replayed on top
	require.NoError(t, fx.w.ReloadMap("quarry", terrain.Tilemap{}, [][]string{{"grass", "mountain", "grass"}}))
	k, _ := m.KindAt(ai.Cell{Row: 0, Col: 1})
	assert.Equal(t, "grass", k.Name)

	// and on a fresh world sharing the database
	fx2 := newFixture(t, db)
	m2 := glyphMap(t, "quarry", ".^.")
	require.NoError(t, fx2.w.AddMap(m2))
	k, _ = m2.KindAt(ai.Cell{Row: 0, Col: 1})
	assert.Equal(t, "grass", k.Name)
}

func TestMine_OpensRoute(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "m", ".^.")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{Pickaxe: true})
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))
	fx.sched.fire(loopName(a.ID()))
	require.Equal(t, 1, fx.obs.unreachable)

	_, err := fx.w.Mine(a.ID(), terrain.Right)
	require.NoError(t, err)
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, ai.Cell{Row: 0, Col: 2}, fx.cellOf(t, a.ID()))
}

// ---- Path queries ----

func TestFindPath_InventoryChangesRoute(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", ".^.", "...")))
	m, _ := fx.w.Map("m")
	q := PathQuery{
		Map:  "m",
		From: m.CellToWorld(ai.Cell{Row: 0, Col: 0}),
		To:   m.CellToWorld(ai.Cell{Row: 0, Col: 2}),
	}

	res, ok, err := fx.w.FindPath(q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 40, res.Cost, "around the mountain")
	assert.Len(t, res.Points, 5)
	assert.Equal(t, 2*time.Second, res.Travel)

	q.Inventory = terrain.Inventory{Goat: true}
	res, ok, err = fx.w.FindPath(q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30, res.Cost, "over the mountain with a goat")
	assert.Equal(t, ai.Route{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, res.Route)
	assert.Equal(t, 1500*time.Millisecond, res.Travel)
}

func TestFindPath_NoRoute(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", ".#.")))

	_, ok, err := fx.w.FindPath(PathQuery{Map: "m", From: nav.Position{X: 0.5, Y: 0.5}, To: nav.Position{X: 2.5, Y: 0.5}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = fx.w.FindPath(PathQuery{Map: "m", From: nav.Position{X: 0.5, Y: 0.5}, To: nav.Position{X: 9, Y: 9}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = fx.w.FindPath(PathQuery{Map: "x"})
	assert.ErrorIs(t, err, ErrMapNotFound)
}

func TestFindPath_NonFiniteOptionsUseDefaults(t *testing.T) {
	w, err := NewWorldManager(Config{
		Scheduler: newManualScheduler(),
		Nav:       nav.Options{BaseSpeed: math.NaN(), CostScale: math.Inf(1), FallbackCost: math.NaN()},
	})
	require.NoError(t, err)
	defer w.StopAll()
	assert.Equal(t, nav.DefaultOptions(), w.Options())

	require.NoError(t, w.AddMap(glyphMap(t, "m", "...")))
	m, _ := w.Map("m")
	res, ok, err := w.FindPath(PathQuery{
		Map:  "m",
		From: m.CellToWorld(ai.Cell{Row: 0, Col: 0}),
		To:   m.CellToWorld(ai.Cell{Row: 0, Col: 2}),
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20, res.Cost)
	assert.Equal(t, time.Second, res.Travel)
}

// ---- Patrol ----

func TestPatrol_CyclesWaypoints(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "...")))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	wps := []ai.Cell{{Row: 0, Col: 2}, {Row: 0, Col: 0}}
	require.NoError(t, fx.w.SetPatrol(a.ID(), wps, 0))

	v, _ := fx.w.View(a.ID())
	assert.Equal(t, wps, v.Patrol)

	require.True(t, fx.sched.tick(patrolTask(a.ID())))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, ai.Cell{Row: 0, Col: 2}, fx.cellOf(t, a.ID()))

	fx.sched.tick(patrolTask(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, ai.Cell{Row: 0, Col: 0}, fx.cellOf(t, a.ID()))

	// back to the first waypoint even though it was a previous target
	fx.sched.tick(patrolTask(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))
	assert.Equal(t, ai.Cell{Row: 0, Col: 2}, fx.cellOf(t, a.ID()))

	require.NoError(t, fx.w.ClearPatrol(a.ID()))
	assert.False(t, fx.sched.has(patrolTask(a.ID())))
	v, _ = fx.w.View(a.ID())
	assert.Nil(t, v.Patrol)
}

func TestPatrol_Validation(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.w.AddMap(glyphMap(t, "m", "...")))
	a := fx.spawnAt(t, "m", ai.Cell{}, terrain.Inventory{})
	assert.Error(t, fx.w.SetPatrol(a.ID(), nil, 0))
	assert.ErrorIs(t, fx.w.SetPatrol(a.ID(), []ai.Cell{{Row: 4}}, 0), terrain.ErrOutOfBounds)
	assert.ErrorIs(t, fx.w.SetPatrol("ghost", []ai.Cell{{}}, 0), ErrActorNotFound)
	assert.ErrorIs(t, fx.w.ClearPatrol("ghost"), ErrActorNotFound)
}

// ---- Map files ----

func TestApplyMapFile_SpawnsAndReloads(t *testing.T) {
	fx := newFixture(t, nil)
	loader := resource.NewLoader(t.TempDir(), terrain.DefaultTable(), nil)
	mf := &resource.MapFile{
		Name: "farm",
		Rows: []string{"....", "...."},
		NPCs: []resource.NPCSpawn{
			{Name: "shepherd", At: resource.CellRef{Row: 0, Col: 0},
				Patrol: []resource.CellRef{{Row: 1, Col: 3}, {Row: 0, Col: 0}}, DwellMS: 200},
			{Name: "lost", At: resource.CellRef{Row: 9, Col: 9}},
		},
		Items: []resource.ItemSpawn{
			{Kind: "pickaxe", At: resource.CellRef{Row: 1, Col: 1}},
			{Kind: "crown", At: resource.CellRef{Row: 0, Col: 1}},
		},
	}
	require.NoError(t, fx.w.ApplyMapFile(loader, mf))

	views := fx.w.Views()
	require.Len(t, views, 1, "off-map npc is skipped")
	assert.Equal(t, "shepherd", views[0].Name)
	assert.True(t, views[0].NPC)
	assert.Len(t, views[0].Patrol, 2)
	items, _ := fx.w.Items("farm")
	assert.Equal(t, []Item{{Kind: "pickaxe", Cell: ai.Cell{Row: 1, Col: 1}}}, items)

	mf.Rows = []string{"..#.", "...."}
	require.NoError(t, fx.w.ApplyMapFile(loader, mf))
	assert.Len(t, fx.w.Views(), 1, "reload does not respawn")
	m, _ := fx.w.Map("farm")
	k, _ := m.KindAt(ai.Cell{Row: 0, Col: 2})
	assert.Equal(t, "wall", k.Name)

	mf.Rows = []string{"..", "."}
	assert.Error(t, fx.w.ApplyMapFile(loader, mf))
}

// ---- Metrics ----

func TestMetrics_CountSteps(t *testing.T) {
	fx := newFixture(t, nil)
	m := glyphMap(t, "metered", "...")
	require.NoError(t, fx.w.AddMap(m))
	a := fx.spawnAt(t, "metered", ai.Cell{}, terrain.Inventory{})
	_, _ = fx.w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 2}))
	fx.sched.fire(loopName(a.ID()))
	fx.sched.fire(loopName(a.ID()))

	assert.Equal(t, 2.0, promtest.ToFloat64(stepsTotal.WithLabelValues("metered")))
	assert.Equal(t, 1.0, promtest.ToFloat64(arrivalsTotal.WithLabelValues("metered")))
	assert.Equal(t, 1.0, promtest.ToFloat64(replansTotal.WithLabelValues("metered")))
}

// ---- Real scheduler ----

func TestWorld_WithRealScheduler(t *testing.T) {
	sched := scheduler.New(zap.NewNop())
	defer sched.Stop()
	w, err := NewWorldManager(Config{
		Scheduler: sched,
		Nav:       nav.Options{BaseSpeed: 100, CostScale: 10, FallbackCost: 1},
	})
	require.NoError(t, err)
	defer w.StopAll()

	m := glyphMap(t, "m", "....")
	require.NoError(t, w.AddMap(m))
	a, err := w.Spawn(SpawnRequest{Map: "m", Position: m.CellToWorld(ai.Cell{})})
	require.NoError(t, err)
	_, err = w.SetTarget(a.ID(), m.CellToWorld(ai.Cell{Row: 0, Col: 3}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		v, err := w.View(a.ID())
		return err == nil && v.Cell == ai.Cell{Row: 0, Col: 3} && v.State == "idle"
	}, 2*time.Second, 10*time.Millisecond)
}
