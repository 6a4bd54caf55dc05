package world

import (
	"errors"
	"time"

	"github.com/kasuganosora/tilewalk/game/ai"
	"github.com/kasuganosora/tilewalk/resource"
	"go.uber.org/zap"
)

// ApplyMapFile loads a decoded map file into the world. A map seen for the first time
// is added with its pickups and NPCs; a known map only has its tiles replaced.
func (w *WorldManager) ApplyMapFile(l *resource.Loader, mf *resource.MapFile) error {
	if _, err := w.Map(mf.Name); err == nil {
		tiles, err := mf.Tiles(l.Table())
		if err != nil {
			return err
		}
		return w.ReloadMap(mf.Name, mf.Tilemap(), tiles)
	} else if !errors.Is(err, ErrMapNotFound) {
		return err
	}

	m, err := l.Build(mf)
	if err != nil {
		return err
	}
	if err := w.AddMap(m); err != nil {
		return err
	}

	for _, it := range mf.Items {
		if err := w.PlaceItem(mf.Name, it.At.Cell(), it.Kind); err != nil {
			w.logger.Warn("item skipped", zap.String("map", mf.Name), zap.String("item", it.Kind), zap.Error(err))
		}
	}
	for _, npc := range mf.NPCs {
		if err := w.spawnNPC(mf.Name, npc); err != nil {
			w.logger.Warn("npc skipped", zap.String("map", mf.Name), zap.String("npc", npc.Name), zap.Error(err))
		}
	}
	return nil
}

func (w *WorldManager) spawnNPC(mapName string, npc resource.NPCSpawn) error {
	m, err := w.Map(mapName)
	if err != nil {
		return err
	}
	a, err := w.Spawn(SpawnRequest{
		Name:      npc.Name,
		Map:       mapName,
		Position:  m.CellToWorld(npc.At.Cell()),
		Inventory: npc.Inventory,
		NPC:       true,
	})
	if err != nil {
		return err
	}
	if len(npc.Patrol) == 0 {
		return nil
	}
	cells := make([]ai.Cell, len(npc.Patrol))
	for i, p := range npc.Patrol {
		cells[i] = p.Cell()
	}
	return w.SetPatrol(a.ID(), cells, time.Duration(npc.DwellMS)*time.Millisecond)
}
