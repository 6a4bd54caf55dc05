package world

import (
	"fmt"
	"sort"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/game/terrain"
)

// Item is a pickup lying on a map.
type Item struct {
	Kind string  `json:"kind"`
	Cell ai.Cell `json:"cell"`
}

// PlaceItem drops a pickup on a cell, replacing whatever lay there.
func (w *WorldManager) PlaceItem(mapName string, c ai.Cell, kind string) error {
	if _, ok := (terrain.Inventory{}).With(kind); !ok {
		return fmt.Errorf("%w: %q", ErrBadItem, kind)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	me, ok := w.maps[mapName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMapNotFound, mapName)
	}
	if _, ok := me.m.KindAt(c); !ok {
		return terrain.ErrOutOfBounds
	}
	me.items[c] = kind
	return nil
}

// Items lists the pickups on a map, ordered by row then column.
func (w *WorldManager) Items(mapName string) ([]Item, error) {
	w.mu.RLock()
	me, ok := w.maps[mapName]
	if !ok {
		w.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, mapName)
	}
	items := make([]Item, 0, len(me.items))
	for c, k := range me.items {
		items = append(items, Item{Kind: k, Cell: c})
	}
	w.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Cell, items[j].Cell
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	return items, nil
}

// takeItem removes and returns the pickup on c, if any.
func (w *WorldManager) takeItem(mapName string, c ai.Cell) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	me, ok := w.maps[mapName]
	if !ok {
		return "", false
	}
	kind, ok := me.items[c]
	if ok {
		delete(me.items, c)
	}
	return kind, ok
}
