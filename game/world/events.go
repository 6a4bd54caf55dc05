package world

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"go.uber.org/zap"
)

// StepsChannel is the pub/sub channel follower events are published on.
const StepsChannel = "nav.steps"

const (
	trailLength  = 32
	trailTTL     = time.Hour
	stateTTL     = time.Hour
	cacheTimeout = 2 * time.Second
)

// ActorKey is the cache hash holding an actor's live follower state.
func ActorKey(id string) string { return "nav:actor:" + id }

// TrailKey is the cache list of the last cells an actor entered, newest first.
func TrailKey(id string) string { return "nav:trail:" + id }

// Event is the JSON document published for every follower notification.
type Event struct {
	Type    string    `json:"type"` // replanned | stepped | arrived | unreachable
	Actor   string    `json:"actor"`
	Cell    *ai.Cell  `json:"cell,omitempty"`
	Target  *ai.Cell  `json:"target,omitempty"`
	Route   []ai.Cell `json:"route,omitempty"`
	DelayMS int64     `json:"delay_ms,omitempty"`
	At      time.Time `json:"at"`
}

// EventObserver logs follower events, mirrors follower state into the cache and
// publishes each event on StepsChannel. Cache and PubSub are optional.
type EventObserver struct {
	cache  cache.Cache
	pubsub cache.PubSub
	logger *zap.Logger
	now    func() time.Time
}

var (
	_ nav.Observer = (*EventObserver)(nil)
	_ Forgetter    = (*EventObserver)(nil)
)

// NewEventObserver creates an EventObserver.
func NewEventObserver(c cache.Cache, ps cache.PubSub, logger *zap.Logger) *EventObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventObserver{cache: c, pubsub: ps, logger: logger, now: time.Now}
}

func (o *EventObserver) Replanned(f *nav.Follower, route ai.Route) {
	o.logger.Debug("route replanned", zap.String("actor", f.ID()), zap.Int("cells", route.Len()))
	o.emit(Event{Type: "replanned", Actor: f.ID(), Route: route})
}

func (o *EventObserver) Stepped(f *nav.Follower, to ai.Cell, delay time.Duration) {
	o.logger.Debug("stepped", zap.String("actor", f.ID()), zap.Stringer("cell", to), zap.Duration("delay", delay))
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if o.cache != nil {
		o.cacheErr("state", o.cache.HSetFields(ctx, ActorKey(f.ID()), map[string]string{
			"state": f.State().String(),
			"cell":  formatCell(to),
		}))
		o.expireState(ctx, f.ID())
		o.cacheErr("trail", o.cache.PushCapped(ctx, TrailKey(f.ID()), trailLength, trailTTL, formatCell(to)))
	}
	o.emit(Event{Type: "stepped", Actor: f.ID(), Cell: &to, DelayMS: delay.Milliseconds()})
}

func (o *EventObserver) Arrived(f *nav.Follower, at ai.Cell) {
	o.logger.Info("target reached", zap.String("actor", f.ID()), zap.Stringer("cell", at))
	if o.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		o.cacheErr("state", o.cache.HSet(ctx, ActorKey(f.ID()), "state", nav.Idle.String()))
		o.expireState(ctx, f.ID())
	}
	o.emit(Event{Type: "arrived", Actor: f.ID(), Cell: &at})
}

func (o *EventObserver) Unreachable(f *nav.Follower, from, target ai.Cell) {
	o.logger.Info("target unreachable",
		zap.String("actor", f.ID()), zap.Stringer("from", from), zap.Stringer("target", target))
	if o.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		o.cacheErr("state", o.cache.HSet(ctx, ActorKey(f.ID()), "state", nav.Idle.String()))
		o.expireState(ctx, f.ID())
	}
	o.emit(Event{Type: "unreachable", Actor: f.ID(), Cell: &from, Target: &target})
}

// Forget implements Forgetter.
func (o *EventObserver) Forget(actorID string) {
	if o.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	o.cacheErr("forget", o.cache.Del(ctx, ActorKey(actorID), TrailKey(actorID)))
}

// expireState keeps the actor hash from outliving an actor whose Forget raced a
// late write. A hash deleted in between is not an error.
func (o *EventObserver) expireState(ctx context.Context, actorID string) {
	if err := o.cache.Expire(ctx, ActorKey(actorID), stateTTL); err != nil && !cache.IsNotFound(err) {
		o.cacheErr("state_ttl", err)
	}
}

func (o *EventObserver) emit(ev Event) {
	if o.pubsub == nil {
		return
	}
	ev.At = o.now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Error("event marshal failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := o.pubsub.Publish(ctx, StepsChannel, string(data)); err != nil {
		o.logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (o *EventObserver) cacheErr(what string, err error) {
	if err != nil {
		o.logger.Warn("follower cache write failed", zap.String("field", what), zap.Error(err))
	}
}

func formatCell(c ai.Cell) string { return fmt.Sprintf("%d,%d", c.Row, c.Col) }

func parseCell(s string) (ai.Cell, error) {
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return ai.Cell{}, fmt.Errorf("world: bad cell %q", s)
	}
	row, err := strconv.Atoi(r)
	if err != nil {
		return ai.Cell{}, err
	}
	col, err := strconv.Atoi(c)
	if err != nil {
		return ai.Cell{}, err
	}
	return ai.Cell{Row: row, Col: col}, nil
}

// LiveState is the follower state last mirrored into the cache.
type LiveState struct {
	State string   `json:"state,omitempty"`
	Cell  *ai.Cell `json:"cell,omitempty"`
}

// ReadLiveState returns the mirrored state of an actor. Nothing written yet
// yields the zero LiveState.
func ReadLiveState(ctx context.Context, c cache.Cache, actorID string) (LiveState, error) {
	fields, err := c.HGetAll(ctx, ActorKey(actorID))
	if err != nil {
		return LiveState{}, err
	}
	ls := LiveState{State: fields["state"]}
	if s, ok := fields["cell"]; ok {
		cell, err := parseCell(s)
		if err != nil {
			return LiveState{}, err
		}
		ls.Cell = &cell
	}
	return ls, nil
}

// ReadTrail returns the last cells an actor entered, newest first.
func ReadTrail(ctx context.Context, c cache.Cache, actorID string) ([]ai.Cell, error) {
	raw, err := c.LRange(ctx, TrailKey(actorID), 0, -1)
	if err != nil {
		return nil, err
	}
	cells := make([]ai.Cell, 0, len(raw))
	for _, s := range raw {
		cell, err := parseCell(s)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}
