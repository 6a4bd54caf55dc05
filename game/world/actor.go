package world

import (
	"sync"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/nav"
	"github.com/kasuganosora/tilewalk/game/terrain"
)

// Actor is an entity standing on a map. It is the nav.Body its follower moves.
type Actor struct {
	id      string
	name    string
	mapName string
	npc     bool

	mu  sync.RWMutex
	pos nav.Position
	inv terrain.Inventory
}

var _ nav.Body = (*Actor)(nil)

func (a *Actor) ID() string      { return a.id }
func (a *Actor) Name() string    { return a.name }
func (a *Actor) MapName() string { return a.mapName }
func (a *Actor) IsNPC() bool     { return a.npc }

// Position implements nav.Body.
func (a *Actor) Position() nav.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

// MoveTo implements nav.Body.
func (a *Actor) MoveTo(p nav.Position) {
	a.mu.Lock()
	a.pos = p
	a.mu.Unlock()
}

// Inventory returns the actor's equipment.
func (a *Actor) Inventory() terrain.Inventory {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inv
}

func (a *Actor) setInventory(inv terrain.Inventory) {
	a.mu.Lock()
	a.inv = inv
	a.mu.Unlock()
}

// pickUp adds item to the inventory; false if the item is unknown.
func (a *Actor) pickUp(item string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	inv, ok := a.inv.With(item)
	if ok {
		a.inv = inv
	}
	return ok
}

// ActorView is a point-in-time description of an actor and its follower.
type ActorView struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Map       string            `json:"map"`
	NPC       bool              `json:"npc"`
	Position  nav.Position      `json:"position"`
	Cell      ai.Cell           `json:"cell"`
	InGrid    bool              `json:"in_grid"`
	State     string            `json:"state"`
	Target    *nav.Position     `json:"target,omitempty"`
	Route     []ai.Cell         `json:"route,omitempty"`
	Inventory terrain.Inventory `json:"inventory"`
	Patrol    []ai.Cell         `json:"patrol,omitempty"`
}
