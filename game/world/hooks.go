package world

import (
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"go.uber.org/zap"
)

// hooks is the observer every follower reports to. It keeps the world's own
// bookkeeping (metrics, pickups) and then forwards to the configured observer.
// Notifications for an actor that has already been despawned are dropped.
type hooks struct {
	w *WorldManager
}

var _ nav.Observer = hooks{}

func (h hooks) mapOf(f *nav.Follower) (*actorEntry, string) {
	e, err := h.w.entry(f.ID())
	if err != nil {
		return nil, ""
	}
	return e, e.actor.mapName
}

// forward hands an event to the configured observer unless the actor has been
// despawned. Despawn waits for a forward in flight before forgetting the actor.
func (h hooks) forward(e *actorEntry, fn func(o nav.Observer)) {
	if h.w.observer == nil {
		return
	}
	e.notify.RLock()
	defer e.notify.RUnlock()
	if e.gone {
		return
	}
	fn(h.w.observer)
}

func (h hooks) Replanned(f *nav.Follower, route ai.Route) {
	e, mapName := h.mapOf(f)
	if e == nil {
		return
	}
	replansTotal.WithLabelValues(mapName).Inc()
	routeCells.Observe(float64(route.Len()))
	h.forward(e, func(o nav.Observer) { o.Replanned(f, route) })
}

func (h hooks) Stepped(f *nav.Follower, to ai.Cell, delay time.Duration) {
	e, mapName := h.mapOf(f)
	if e == nil {
		return
	}
	stepsTotal.WithLabelValues(mapName).Inc()
	stepDelay.Observe(delay.Seconds())

	if item, ok := h.w.takeItem(mapName, to); ok && e.actor.pickUp(item) {
		// the new equipment may open a cheaper route
		f.Invalidate()
		pickupsTotal.WithLabelValues(item).Inc()
		h.w.logger.Info("item picked up",
			zap.String("actor", e.actor.id), zap.String("item", item), zap.Stringer("cell", to))
	}
	h.forward(e, func(o nav.Observer) { o.Stepped(f, to, delay) })
}

func (h hooks) Arrived(f *nav.Follower, at ai.Cell) {
	e, mapName := h.mapOf(f)
	if e == nil {
		return
	}
	arrivalsTotal.WithLabelValues(mapName).Inc()
	h.forward(e, func(o nav.Observer) { o.Arrived(f, at) })
}

func (h hooks) Unreachable(f *nav.Follower, from, target ai.Cell) {
	e, mapName := h.mapOf(f)
	if e == nil {
		return
	}
	unreachableTotal.WithLabelValues(mapName).Inc()
	h.forward(e, func(o nav.Observer) { o.Unreachable(f, from, target) })
}
