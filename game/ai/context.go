package ai

// AIContext is passed to every behavior tree node during a tick.
type AIContext struct {
	Agent   Agent
	DeltaMS int64 // milliseconds since last tick
}

// Agent is the navigation surface a behavior tree can drive.
// Implemented by *nav.Follower; declared here to avoid an import cycle.
type Agent interface {
	// Idle reports whether the agent has no active target.
	Idle() bool
	// CurrentCell returns the grid cell the agent occupies.
	CurrentCell() Cell
	// GoTo sets a new target cell. Returns false if the cell cannot be addressed.
	GoTo(c Cell) bool
}
