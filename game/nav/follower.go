// Package nav drives an entity along optimal grid routes, one cell per step, pacing each
// step by the cost of the cell being entered.
package nav

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"go.uber.org/zap"
)

// State is the follower's movement state.
type State int

const (
	// Idle: no pending target, target reached, or target abandoned as unreachable.
	Idle State = iota
	// Following: a target is set and the follower advances toward it on each tick.
	Following
)

func (s State) String() string {
	if s == Following {
		return "following"
	}
	return "idle"
}

// Options tune planning and pacing.
type Options struct {
	BaseSpeed    float64 // cells per second on cost-1 terrain
	CostScale    float64 // multiplier applied before rounding costs into the search grid
	FallbackCost float64 // used when the oracle answers blocked or a non-positive cost
}

// DefaultOptions returns the stock tuning: 2 cells/s, costs kept to one decimal.
func DefaultOptions() Options {
	return Options{BaseSpeed: 2, CostScale: 10, FallbackCost: 1}
}

// Normalized replaces any option that is not a positive finite number with its
// default.
func (o Options) Normalized() Options {
	d := DefaultOptions()
	if !validCost(o.BaseSpeed) {
		o.BaseSpeed = d.BaseSpeed
	}
	if !validCost(o.CostScale) {
		o.CostScale = d.CostScale
	}
	if !validCost(o.FallbackCost) {
		o.FallbackCost = d.FallbackCost
	}
	return o
}

// Config carries a follower's collaborators.
type Config struct {
	ID       string
	Body     Body
	Oracle   CostOracle
	Mapping  Mapping
	Options  Options
	Observer Observer    // optional
	Logger   *zap.Logger // optional
}

// Step describes the outcome of one Advance call.
type Step struct {
	State     State
	Replanned bool
	Moved     bool
	From      ai.Cell
	To        ai.Cell
	Delay     time.Duration
}

// Follower moves a Body toward a target cell. It is safe for concurrent use; advances
// are serialized.
type Follower struct {
	id       string
	body     Body
	oracle   CostOracle
	mapping  Mapping
	opts     Options
	observer Observer
	logger   *zap.Logger

	mu           sync.Mutex
	state        State
	hasTarget    bool
	target       ai.Cell
	targetPos    Position
	targetInGrid bool
	route        ai.Route
	delay        time.Duration
}

// NewFollower creates an idle follower.
func NewFollower(cfg Config) (*Follower, error) {
	if cfg.Body == nil || cfg.Oracle == nil || cfg.Mapping == nil {
		return nil, errors.New("nav: follower needs a body, a cost oracle and a mapping")
	}
	opts := cfg.Options.Normalized()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		id:       cfg.ID,
		body:     cfg.Body,
		oracle:   cfg.Oracle,
		mapping:  cfg.Mapping,
		opts:     opts,
		observer: cfg.Observer,
		logger:   logger.With(zap.String("follower", cfg.ID)),
		delay:    StepDelay(1, opts.BaseSpeed),
	}, nil
}

// ID returns the follower's identifier.
func (f *Follower) ID() string { return f.id }

// SetTarget points the follower at the cell containing pos. Setting the target that is
// already active is a no-op; otherwise the route is discarded and the follower resumes
// Following. Reports whether the target changed.
func (f *Follower) SetTarget(pos Position) bool {
	return f.setTarget(pos, false)
}

// setTarget stores the target; force resumes Following even when the cell is unchanged.
func (f *Follower) setTarget(pos Position, force bool) bool {
	cell, inGrid := f.mapping.WorldToCell(pos)

	f.mu.Lock()
	defer f.mu.Unlock()
	same := f.hasTarget && f.target == cell && f.targetInGrid == inGrid
	if same && (!force || f.state == Following) {
		return false
	}
	f.hasTarget = true
	f.target = cell
	f.targetPos = pos
	f.targetInGrid = inGrid
	f.route = nil
	f.state = Following
	f.logger.Debug("target set", zap.Stringer("cell", cell), zap.Bool("in_grid", inGrid))
	return true
}

// Invalidate drops the cached route so the next advance plans against the oracle's
// current answers. Use it after terrain or equipment changes.
func (f *Follower) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.route = nil
}

// Target returns the active target position. ok is false if none was set or the last one
// was abandoned as unreachable.
func (f *Follower) Target() (pos Position, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targetPos, f.hasTarget
}

// Clear drops the target and stops following.
func (f *Follower) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandon()
}

// State returns the current movement state.
func (f *Follower) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Route returns a copy of the cached route, or nil if none is cached.
func (f *Follower) Route() ai.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route.Clone()
}

// Delay returns how long to wait before the next Advance.
func (f *Follower) Delay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delay
}

// Cell returns the cell the body currently occupies. ok is false when the body is
// outside the grid.
func (f *Follower) Cell() (ai.Cell, bool) {
	return f.mapping.WorldToCell(f.body.Position())
}

// Idle implements ai.Agent.
func (f *Follower) Idle() bool { return f.State() == Idle }

// CurrentCell implements ai.Agent.
func (f *Follower) CurrentCell() ai.Cell {
	c, _ := f.Cell()
	return c
}

// GoTo implements ai.Agent by targeting the centre of c. Unlike SetTarget it restarts
// an idle follower whose last target was c, so a patrol can revisit a waypoint.
func (f *Follower) GoTo(c ai.Cell) bool {
	rows, cols := f.oracle.Bounds()
	if c.Row < 0 || c.Row >= rows || c.Col < 0 || c.Col >= cols {
		return false
	}
	f.setTarget(f.mapping.CellToWorld(c), true)
	return true
}

// Advance performs one tick: re-plan if the cached route does not start at the body's
// cell, then move one cell along it. Idle followers do nothing.
func (f *Follower) Advance() Step {
	f.mu.Lock()
	if f.state != Following {
		st := Step{State: f.state, Delay: f.delay}
		f.mu.Unlock()
		return st
	}

	cur, inGrid := f.mapping.WorldToCell(f.body.Position())
	step := Step{State: Following, From: cur}

	if head, ok := f.route.Head(); !ok || head != cur {
		route, found := f.plan(cur, inGrid)
		if !found {
			target := f.target
			f.abandon()
			step.State, step.Delay = Idle, f.delay
			f.mu.Unlock()
			f.logger.Debug("no route", zap.Stringer("from", cur), zap.Stringer("target", target))
			if f.observer != nil {
				f.observer.Unreachable(f, cur, target)
			}
			return step
		}
		f.route = route
		step.Replanned = true
	}
	var replanned ai.Route
	if step.Replanned {
		replanned = f.route.Clone()
	}

	if len(f.route) == 1 {
		f.state = Idle
		f.route = nil
		step.State, step.To, step.Delay = Idle, cur, f.delay
		f.mu.Unlock()
		f.notifyReplan(step, replanned)
		if f.observer != nil {
			f.observer.Arrived(f, cur)
		}
		return step
	}

	f.route = f.route[1:]
	next := f.route[0]
	cost, ok := f.oracle.Cost(next)
	if !ok || !validCost(cost) {
		f.logger.Debug("clamping step cost", zap.Stringer("cell", next), zap.Float64("cost", cost), zap.Bool("walkable", ok))
		cost = f.opts.FallbackCost
	}
	f.body.MoveTo(f.mapping.CellToWorld(next))
	f.delay = StepDelay(cost, f.opts.BaseSpeed)
	step.Moved, step.To, step.Delay = true, next, f.delay
	arrived := len(f.route) == 1
	if arrived {
		f.state = Idle
		f.route = nil
		step.State = Idle
	}
	f.mu.Unlock()

	f.notifyReplan(step, replanned)
	if f.observer != nil {
		f.observer.Stepped(f, next, step.Delay)
		if arrived {
			f.observer.Arrived(f, next)
		}
	}
	return step
}

// plan searches from cur to the target on a fresh snapshot. Caller holds f.mu.
func (f *Follower) plan(cur ai.Cell, inGrid bool) (ai.Route, bool) {
	if !inGrid || !f.targetInGrid {
		return nil, false
	}
	grid := BuildGrid(f.oracle, f.opts.CostScale, f.opts.FallbackCost)
	route, ok := ai.FindPath(grid, cur, f.target)
	if ok {
		f.logger.Debug("route planned",
			zap.Stringer("from", cur),
			zap.Stringer("target", f.target),
			zap.Int("cells", route.Len()),
			zap.Int("cost", route.Cost(grid)))
	}
	return route, ok
}

func (f *Follower) notifyReplan(step Step, route ai.Route) {
	if step.Replanned && f.observer != nil {
		f.observer.Replanned(f, route)
	}
}

// abandon clears the target and route. Caller holds f.mu.
func (f *Follower) abandon() {
	f.state = Idle
	f.hasTarget = false
	f.targetInGrid = false
	f.route = nil
}

// maxStepDelay bounds the wait for a single cell.
const maxStepDelay = 24 * time.Hour

// StepDelay is how long entering a cell of the given cost takes at baseSpeed,
// capped at one day.
func StepDelay(cost, baseSpeed float64) time.Duration {
	d := cost / baseSpeed * float64(time.Second)
	if d >= float64(maxStepDelay) || math.IsNaN(d) {
		return maxStepDelay
	}
	return time.Duration(d)
}
