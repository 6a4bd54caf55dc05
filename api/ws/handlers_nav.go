package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
	"github.com/kasuganosora/tilewalk/game/world"
	"go.uber.org/zap"
)

// NavHandlers steers actors over the WebSocket.
type NavHandlers struct {
	wm     *world.WorldManager
	logger *zap.Logger
}

// RegisterNavHandlers registers the actor control messages on router.
func RegisterNavHandlers(r *Router, wm *world.WorldManager, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &NavHandlers{wm: wm, logger: logger}
	r.On("ping", h.Ping)
	r.On("watch", h.Watch)
	r.On("view", h.View)
	r.On("target", h.Target)
	r.On("displace", h.Displace)
	r.On("path", h.Path)
}

// spot is a world position or a grid cell on the actor's map; the cell wins.
type spot struct {
	Position *nav.Position `json:"position"`
	Cell     *ai.Cell      `json:"cell"`
}

func (p spot) resolve(m *terrain.Map) (nav.Position, error) {
	switch {
	case p.Cell != nil:
		return m.CellToWorld(*p.Cell), nil
	case p.Position != nil:
		return *p.Position, nil
	}
	return nav.Position{}, &ClientError{Msg: "position or cell required"}
}

type actorRef struct {
	Actor string `json:"actor"`
}

type watchPayload struct {
	Actors []string `json:"actors"`
}

type movePayload struct {
	Actor string `json:"actor"`
	spot
}

type pathPayload struct {
	Map       string            `json:"map"`
	From      spot              `json:"from"`
	To        spot              `json:"to"`
	Inventory terrain.Inventory `json:"inventory"`
}

func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return &ClientError{Msg: "payload required"}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &ClientError{Msg: "invalid payload"}
	}
	return nil
}

// clientErr exposes world and terrain failures the caller can fix.
func clientErr(err error) error {
	switch {
	case errors.Is(err, world.ErrActorNotFound), errors.Is(err, world.ErrMapNotFound),
		errors.Is(err, world.ErrOffMap), errors.Is(err, terrain.ErrOutOfBounds):
		return &ClientError{Msg: err.Error()}
	}
	return err
}

func (h *NavHandlers) Ping(_ context.Context, s *Session, _ json.RawMessage) error {
	s.Send("pong", nil)
	return nil
}

// Watch sets which actors' events reach this session. An empty list watches all.
func (h *NavHandlers) Watch(_ context.Context, s *Session, payload json.RawMessage) error {
	var req watchPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return &ClientError{Msg: "invalid payload"}
		}
	}
	s.Watch(req.Actors)
	s.Send("watching", req)
	return nil
}

func (h *NavHandlers) View(_ context.Context, s *Session, payload json.RawMessage) error {
	var req actorRef
	if err := decode(payload, &req); err != nil {
		return err
	}
	v, err := h.wm.View(req.Actor)
	if err != nil {
		return clientErr(err)
	}
	s.Send("actor", v)
	return nil
}

// actorMap resolves the map an actor stands on.
func (h *NavHandlers) actorMap(id string) (*terrain.Map, error) {
	a, err := h.wm.Actor(id)
	if err != nil {
		return nil, clientErr(err)
	}
	m, err := h.wm.Map(a.MapName())
	if err != nil {
		return nil, clientErr(err)
	}
	return m, nil
}

func (h *NavHandlers) Target(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req movePayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	m, err := h.actorMap(req.Actor)
	if err != nil {
		return err
	}
	pos, err := req.resolve(m)
	if err != nil {
		return err
	}
	changed, err := h.wm.SetTarget(req.Actor, pos)
	if err != nil {
		return clientErr(err)
	}
	h.logger.Debug("ws target",
		zap.String("trace_id", TraceIDFromCtx(ctx)),
		zap.String("actor", req.Actor),
		zap.Bool("changed", changed))
	cell, inGrid := m.WorldToCell(pos)
	s.Send("target_ok", map[string]interface{}{
		"actor":   req.Actor,
		"changed": changed,
		"cell":    cell,
		"in_grid": inGrid,
	})
	return nil
}

func (h *NavHandlers) Displace(ctx context.Context, s *Session, payload json.RawMessage) error {
	var req movePayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	m, err := h.actorMap(req.Actor)
	if err != nil {
		return err
	}
	pos, err := req.resolve(m)
	if err != nil {
		return err
	}
	if err := h.wm.Displace(req.Actor, pos); err != nil {
		return clientErr(err)
	}
	h.logger.Debug("ws displace",
		zap.String("trace_id", TraceIDFromCtx(ctx)),
		zap.String("actor", req.Actor))
	v, err := h.wm.View(req.Actor)
	if err != nil {
		return clientErr(err)
	}
	s.Send("actor", v)
	return nil
}

func (h *NavHandlers) Path(_ context.Context, s *Session, payload json.RawMessage) error {
	var req pathPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	m, err := h.wm.Map(req.Map)
	if err != nil {
		return clientErr(err)
	}
	from, err := req.From.resolve(m)
	if err != nil {
		return &ClientError{Msg: fmt.Sprintf("from: %s", err)}
	}
	to, err := req.To.resolve(m)
	if err != nil {
		return &ClientError{Msg: fmt.Sprintf("to: %s", err)}
	}
	res, ok, err := h.wm.FindPath(world.PathQuery{Map: req.Map, From: from, To: to, Inventory: req.Inventory})
	if err != nil {
		return clientErr(err)
	}
	s.Send("path", map[string]interface{}{
		"found":     ok,
		"route":     res.Route,
		"points":    res.Points,
		"cost":      res.Cost,
		"travel_ms": res.Travel.Milliseconds(),
	})
	return nil
}
