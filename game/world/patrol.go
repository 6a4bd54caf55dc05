package world

import (
	"errors"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"go.uber.org/zap"
)

func patrolTask(actorID string) string { return "patrol:" + actorID }

// SetPatrol makes an actor cycle through waypoints, pausing dwell at each one.
// It replaces any earlier patrol.
func (w *WorldManager) SetPatrol(id string, cells []ai.Cell, dwell time.Duration) error {
	if len(cells) == 0 {
		return errors.New("world: patrol needs at least one waypoint")
	}
	e, err := w.entry(id)
	if err != nil {
		return err
	}
	m, err := w.Map(e.actor.mapName)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if _, ok := m.KindAt(c); !ok {
			return terrain.ErrOutOfBounds
		}
	}

	waypoints := append([]ai.Cell(nil), cells...)
	tree := ai.NewPatrolTree(waypoints, dwell.Milliseconds())
	tick := w.patrolTick
	ctx := &ai.AIContext{Agent: e.follower, DeltaMS: tick.Milliseconds()}

	w.mu.Lock()
	e.patrol = waypoints
	w.mu.Unlock()
	// the tree is only ever ticked from this ticker's goroutine
	w.sched.AddTicker(patrolTask(id), tick, func() { tree.Tick(ctx) })

	w.logger.Info("patrol set",
		zap.String("actor", id), zap.Int("waypoints", len(waypoints)), zap.Duration("dwell", dwell))
	return nil
}

// ClearPatrol stops an actor's patrol. The current target, if any, is kept.
func (w *WorldManager) ClearPatrol(id string) error {
	e, err := w.entry(id)
	if err != nil {
		return err
	}
	w.sched.Remove(patrolTask(id))
	w.mu.Lock()
	e.patrol = nil
	w.mu.Unlock()
	return nil
}
