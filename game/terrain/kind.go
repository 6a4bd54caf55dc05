// Package terrain turns tile layers and a per-kind cost table into the walkability and
// cost answers navigation needs.
package terrain

import (
	"fmt"
	"sort"
)

// Kind describes one type of tile.
type Kind struct {
	Name              string
	Glyph             string  // single character used in map files
	BaseCost          float64 // cost to enter without any equipment
	CostWithGoat      float64 // replaces BaseCost when the walker has a goat; 0 = no override
	CostWithBoat      float64 // replaces the cost when the walker has a boat; 0 = no override
	BlocksWithoutGoat bool
	BlocksWithoutBoat bool
	AlwaysBlocked     bool
	Mineable          bool // a pickaxe can turn it into the table's floor kind
}

// Inventory is the equipment that changes how a walker sees terrain.
type Inventory struct {
	Goat    bool `json:"goat"`
	Boat    bool `json:"boat"`
	Pickaxe bool `json:"pickaxe"`
}

// Item kinds that can be picked up.
const (
	ItemGoat    = "goat"
	ItemBoat    = "boat"
	ItemPickaxe = "pickaxe"
)

// With returns the inventory after picking up item. ok is false for unknown items.
func (inv Inventory) With(item string) (Inventory, bool) {
	switch item {
	case ItemGoat:
		inv.Goat = true
	case ItemBoat:
		inv.Boat = true
	case ItemPickaxe:
		inv.Pickaxe = true
	default:
		return inv, false
	}
	return inv, true
}

// walkable reports whether a walker carrying inv may enter k.
func (k Kind) walkable(inv Inventory) bool {
	switch {
	case k.AlwaysBlocked:
		return false
	case k.BlocksWithoutGoat && !inv.Goat:
		return false
	case k.BlocksWithoutBoat && !inv.Boat:
		return false
	}
	return true
}

// cost returns the entry cost for a walker carrying inv; never <= 0.
func (k Kind) cost(inv Inventory) float64 {
	c := k.BaseCost
	if inv.Goat && k.CostWithGoat > 0 {
		c = k.CostWithGoat
	}
	if inv.Boat && k.CostWithBoat > 0 {
		c = k.CostWithBoat
	}
	if c <= 0 {
		c = 1
	}
	return c
}

// Table indexes kinds by name and glyph.
type Table struct {
	byName  map[string]Kind
	byGlyph map[string]Kind
	floor   string
}

// NewTable builds a table. floor names the kind mined tiles become; it must be present.
func NewTable(kinds []Kind, floor string) (*Table, error) {
	t := &Table{
		byName:  make(map[string]Kind, len(kinds)),
		byGlyph: make(map[string]Kind, len(kinds)),
		floor:   floor,
	}
	for _, k := range kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("terrain: kind with empty name")
		}
		if _, dup := t.byName[k.Name]; dup {
			return nil, fmt.Errorf("terrain: duplicate kind %q", k.Name)
		}
		t.byName[k.Name] = k
		if k.Glyph != "" {
			if other, dup := t.byGlyph[k.Glyph]; dup {
				return nil, fmt.Errorf("terrain: glyph %q used by %q and %q", k.Glyph, other.Name, k.Name)
			}
			t.byGlyph[k.Glyph] = k
		}
	}
	if _, ok := t.byName[floor]; !ok {
		return nil, fmt.Errorf("terrain: floor kind %q not defined", floor)
	}
	return t, nil
}

// DefaultKinds is the stock terrain set.
func DefaultKinds() []Kind {
	return []Kind{
		{Name: "grass", Glyph: ".", BaseCost: 1},
		{Name: "hill", Glyph: "n", BaseCost: 2, CostWithGoat: 1},
		{Name: "mountain", Glyph: "^", BaseCost: 3, CostWithGoat: 2, BlocksWithoutGoat: true, Mineable: true},
		{Name: "water", Glyph: "~", BaseCost: 1.5, CostWithBoat: 1, BlocksWithoutBoat: true},
		{Name: "wall", Glyph: "#", AlwaysBlocked: true},
	}
}

// DefaultTable returns the table for DefaultKinds with grass as the floor.
func DefaultTable() *Table {
	t, err := NewTable(DefaultKinds(), "grass")
	if err != nil {
		panic(err)
	}
	return t
}

// Kind looks up a kind by name.
func (t *Table) Kind(name string) (Kind, bool) {
	k, ok := t.byName[name]
	return k, ok
}

// ByGlyph looks up a kind by its map-file glyph.
func (t *Table) ByGlyph(g string) (Kind, bool) {
	k, ok := t.byGlyph[g]
	return k, ok
}

// Floor returns the kind mined tiles turn into.
func (t *Table) Floor() string { return t.floor }

// Names returns every kind name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
