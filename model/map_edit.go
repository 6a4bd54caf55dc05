package model

import "time"

// MapEdit records a tile changed at runtime (mining). Edits are replayed, in ID
// order, whenever the map is (re)loaded from its file.
type MapEdit struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MapName   string    `gorm:"index:idx_map_edit_map;size:64;not null" json:"map_name"`
	Row       int       `gorm:"not null" json:"row"`
	Col       int       `gorm:"not null" json:"col"`
	FromKind  string    `gorm:"size:32" json:"from_kind"`
	ToKind    string    `gorm:"size:32;not null" json:"to_kind"`
	ActorID   string    `gorm:"size:36" json:"actor_id"`
	CreatedAt time.Time `gorm:"autoCreateTime:milli" json:"created_at"`
}
