package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/model"
	"github.com/kasuganosora/tilewalk/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrActorNotFound = errors.New("world: actor not found")
	ErrMapNotFound   = errors.New("world: map not found")
	ErrMapExists     = errors.New("world: map already loaded")
	ErrOffMap        = errors.New("world: position is outside the map")
	ErrNoPickaxe     = errors.New("world: actor has no pickaxe")
	ErrBadItem       = errors.New("world: unknown item kind")
)

// Scheduler runs follower loops (delays) and patrols (tickers).
// *scheduler.Scheduler satisfies it.
type Scheduler interface {
	nav.Scheduler
	AddTicker(name string, interval time.Duration, fn scheduler.TaskFn)
}

// Forgetter is implemented by observers that keep per-actor state and want to drop
// it when the actor leaves.
type Forgetter interface {
	Forget(actorID string)
}

// Config carries the WorldManager's collaborators.
type Config struct {
	Scheduler  Scheduler
	DB         *gorm.DB // optional; persists and replays tile edits
	Nav        nav.Options
	PatrolTick time.Duration
	Logger     *zap.Logger

	// Observer is optional and sees every follower event after the world has
	// handled it. It must not Despawn from inside a callback.
	Observer nav.Observer
}

type actorEntry struct {
	actor    *Actor
	follower *nav.Follower
	loop     *nav.Handle
	patrol   []ai.Cell // nil when not patrolling

	// notify is read-held while the configured observer runs; Despawn takes it
	// to mark the entry gone before the observer forgets the actor.
	notify sync.RWMutex
	gone   bool
}

type mapEntry struct {
	m     *terrain.Map
	items map[ai.Cell]string
}

// WorldManager owns the loaded maps and every spawned actor with its follower loop.
type WorldManager struct {
	mu     sync.RWMutex
	maps   map[string]*mapEntry
	actors map[string]*actorEntry

	sched      Scheduler
	db         *gorm.DB
	observer   nav.Observer
	opts       nav.Options
	patrolTick time.Duration
	logger     *zap.Logger
}

// NewWorldManager creates an empty world.
func NewWorldManager(cfg Config) (*WorldManager, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("world: scheduler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tick := cfg.PatrolTick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &WorldManager{
		maps:       make(map[string]*mapEntry),
		actors:     make(map[string]*actorEntry),
		sched:      cfg.Scheduler,
		db:         cfg.DB,
		observer:   cfg.Observer,
		opts:       cfg.Nav,
		patrolTick: tick,
		logger:     logger,
	}, nil
}

// ---- Maps ----

// AddMap registers m and replays its persisted tile edits.
func (w *WorldManager) AddMap(m *terrain.Map) error {
	w.mu.Lock()
	if _, ok := w.maps[m.Name()]; ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMapExists, m.Name())
	}
	w.maps[m.Name()] = &mapEntry{m: m, items: make(map[ai.Cell]string)}
	w.mu.Unlock()

	w.replayEdits(m)
	rows, cols := m.Bounds()
	w.logger.Info("map added", zap.String("map", m.Name()), zap.Int("rows", rows), zap.Int("cols", cols))
	return nil
}

// ReloadMap swaps in a new tile layer for a loaded map, replays its edits and makes
// every follower on it plan again.
func (w *WorldManager) ReloadMap(name string, tm terrain.Tilemap, tiles [][]string) error {
	m, err := w.Map(name)
	if err != nil {
		return err
	}
	if err := m.Replace(tm, tiles); err != nil {
		return err
	}
	w.replayEdits(m)
	w.invalidateMap(name)
	w.logger.Info("map reloaded", zap.String("map", name))
	return nil
}

func (w *WorldManager) replayEdits(m *terrain.Map) {
	if w.db == nil {
		return
	}
	var edits []model.MapEdit
	if err := w.db.Where("map_name = ?", m.Name()).Order("id").Find(&edits).Error; err != nil {
		w.logger.Error("load map edits failed", zap.String("map", m.Name()), zap.Error(err))
		return
	}
	for _, e := range edits {
		if err := m.SetKind(ai.Cell{Row: e.Row, Col: e.Col}, e.ToKind); err != nil {
			w.logger.Warn("map edit skipped",
				zap.String("map", m.Name()), zap.Int64("edit", e.ID), zap.Error(err))
		}
	}
	if len(edits) > 0 {
		w.logger.Debug("map edits replayed", zap.String("map", m.Name()), zap.Int("edits", len(edits)))
	}
}

// Maps returns the loaded map names, sorted.
func (w *WorldManager) Maps() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.maps))
	for n := range w.maps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Map returns a loaded map.
func (w *WorldManager) Map(name string) (*terrain.Map, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	me, ok := w.maps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, name)
	}
	return me.m, nil
}

// ---- Actors ----

// SpawnRequest describes a new actor.
type SpawnRequest struct {
	Name      string
	Map       string
	Position  nav.Position
	Inventory terrain.Inventory
	NPC       bool
}

// Spawn places an actor on a map and starts its follower loop.
func (w *WorldManager) Spawn(req SpawnRequest) (*Actor, error) {
	m, err := w.Map(req.Map)
	if err != nil {
		return nil, err
	}
	if _, ok := m.WorldToCell(req.Position); !ok {
		return nil, ErrOffMap
	}

	a := &Actor{
		id:      uuid.NewString(),
		name:    req.Name,
		mapName: req.Map,
		npc:     req.NPC,
		pos:     req.Position,
		inv:     req.Inventory,
	}
	if a.name == "" {
		a.name = a.id[:8]
	}
	f, err := nav.NewFollower(nav.Config{
		ID:       a.id,
		Body:     a,
		Oracle:   m.Oracle(a.Inventory),
		Mapping:  m,
		Options:  w.opts,
		Observer: hooks{w: w},
		Logger:   w.logger,
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.actors[a.id] = &actorEntry{actor: a, follower: f, loop: f.Start(w.sched)}
	w.mu.Unlock()
	actorsGauge.Inc()

	w.logger.Info("actor spawned",
		zap.String("actor", a.id), zap.String("name", a.name), zap.String("map", a.mapName),
		zap.Bool("npc", a.npc))
	return a, nil
}

// Despawn stops an actor's loop and patrol and removes it.
func (w *WorldManager) Despawn(id string) error {
	w.mu.Lock()
	e, ok := w.actors[id]
	if ok {
		delete(w.actors, id)
	}
	w.mu.Unlock()
	if !ok {
		return ErrActorNotFound
	}
	w.stopActor(e)
	actorsGauge.Dec()
	e.notify.Lock()
	e.gone = true
	e.notify.Unlock()
	if fg, ok := w.observer.(Forgetter); ok {
		fg.Forget(id)
	}
	w.logger.Info("actor despawned", zap.String("actor", id))
	return nil
}

func (w *WorldManager) stopActor(e *actorEntry) {
	e.loop.Stop()
	w.sched.Remove(patrolTask(e.actor.id))
	e.follower.Clear()
}

func (w *WorldManager) entry(id string) (*actorEntry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.actors[id]
	if !ok {
		return nil, ErrActorNotFound
	}
	return e, nil
}

// Actor returns a spawned actor.
func (w *WorldManager) Actor(id string) (*Actor, error) {
	e, err := w.entry(id)
	if err != nil {
		return nil, err
	}
	return e.actor, nil
}

// View describes one actor.
func (w *WorldManager) View(id string) (ActorView, error) {
	w.mu.RLock()
	e, ok := w.actors[id]
	var patrol []ai.Cell
	if ok {
		patrol = append(patrol, e.patrol...)
	}
	w.mu.RUnlock()
	if !ok {
		return ActorView{}, ErrActorNotFound
	}
	return describe(e, patrol), nil
}

// Views describes every actor, ordered by name then id.
func (w *WorldManager) Views() []ActorView {
	w.mu.RLock()
	views := make([]ActorView, 0, len(w.actors))
	for _, e := range w.actors {
		views = append(views, describe(e, append([]ai.Cell(nil), e.patrol...)))
	}
	w.mu.RUnlock()
	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].ID < views[j].ID
	})
	return views
}

func describe(e *actorEntry, patrol []ai.Cell) ActorView {
	a, f := e.actor, e.follower
	cell, inGrid := f.Cell()
	v := ActorView{
		ID:        a.id,
		Name:      a.name,
		Map:       a.mapName,
		NPC:       a.npc,
		Position:  a.Position(),
		Cell:      cell,
		InGrid:    inGrid,
		State:     f.State().String(),
		Route:     f.Route(),
		Inventory: a.Inventory(),
		Patrol:    patrol,
	}
	if pos, ok := f.Target(); ok {
		v.Target = &pos
	}
	return v
}

// SetTarget points an actor's follower at pos. Reports whether the target changed.
func (w *WorldManager) SetTarget(id string, pos nav.Position) (bool, error) {
	e, err := w.entry(id)
	if err != nil {
		return false, err
	}
	return e.follower.SetTarget(pos), nil
}

// Displace teleports an actor. Its follower notices on the next step and re-plans.
func (w *WorldManager) Displace(id string, pos nav.Position) error {
	e, err := w.entry(id)
	if err != nil {
		return err
	}
	m, err := w.Map(e.actor.mapName)
	if err != nil {
		return err
	}
	if _, ok := m.WorldToCell(pos); !ok {
		return ErrOffMap
	}
	e.actor.MoveTo(pos)
	return nil
}

// SetInventory replaces an actor's equipment; its route is re-planned with the new costs.
func (w *WorldManager) SetInventory(id string, inv terrain.Inventory) error {
	e, err := w.entry(id)
	if err != nil {
		return err
	}
	e.actor.setInventory(inv)
	e.follower.Invalidate()
	return nil
}

// MineResult describes a mined tile.
type MineResult struct {
	Map  string  `json:"map"`
	Cell ai.Cell `json:"cell"`
	From string  `json:"from"`
	To   string  `json:"to"`
}

// Mine breaks the tile next to the actor (or under it, for terrain.Here) with a pickaxe.
// The edit is persisted and replayed whenever the map is reloaded.
func (w *WorldManager) Mine(id string, dir terrain.Direction) (MineResult, error) {
	e, err := w.entry(id)
	if err != nil {
		return MineResult{}, err
	}
	if !e.actor.Inventory().Pickaxe {
		return MineResult{}, ErrNoPickaxe
	}
	m, err := w.Map(e.actor.mapName)
	if err != nil {
		return MineResult{}, err
	}
	cell, ok := m.WorldToCell(e.actor.Position())
	if !ok {
		return MineResult{}, ErrOffMap
	}
	target, ok := m.Neighbor(cell, dir)
	if !ok {
		return MineResult{}, terrain.ErrOutOfBounds
	}
	prev, err := m.Mine(target)
	if err != nil {
		return MineResult{}, err
	}
	res := MineResult{Map: m.Name(), Cell: target, From: prev.Name, To: m.Table().Floor()}

	if w.db != nil {
		edit := &model.MapEdit{
			MapName:  res.Map,
			Row:      target.Row,
			Col:      target.Col,
			FromKind: res.From,
			ToKind:   res.To,
			ActorID:  id,
		}
		if err := w.db.Create(edit).Error; err != nil {
			w.logger.Error("persist map edit failed", zap.String("map", res.Map), zap.Error(err))
		}
	}
	minedTotal.WithLabelValues(res.Map).Inc()
	w.invalidateMap(res.Map)
	w.logger.Info("tile mined",
		zap.String("actor", id), zap.String("map", res.Map), zap.Stringer("cell", target),
		zap.String("from", res.From))
	return res, nil
}

// invalidateMap drops the cached routes of every follower on a map.
func (w *WorldManager) invalidateMap(name string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, e := range w.actors {
		if e.actor.mapName == name {
			e.follower.Invalidate()
		}
	}
}

// StopAll stops every actor loop and patrol (used at server shutdown).
func (w *WorldManager) StopAll() {
	w.mu.Lock()
	entries := make([]*actorEntry, 0, len(w.actors))
	for _, e := range w.actors {
		entries = append(entries, e)
	}
	w.actors = make(map[string]*actorEntry)
	w.mu.Unlock()
	for _, e := range entries {
		w.stopActor(e)
	}
	actorsGauge.Sub(float64(len(entries)))
	w.logger.Info("world stopped", zap.Int("actors", len(entries)))
}
