package model

import (
	"time"

	"gorm.io/datatypes"
)

// CommandLog records an operator command issued through the API.
type CommandLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_cmd_trace;size:36;not null" json:"trace_id"`
	Subject    string         `gorm:"size:64" json:"subject"`
	ActorID    string         `gorm:"index:idx_cmd_actor;size:36" json:"actor_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Request    datatypes.JSON `json:"request"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	MapName    string         `gorm:"size:64" json:"map_name"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_cmd_created;autoCreateTime:milli" json:"created_at"`
}
