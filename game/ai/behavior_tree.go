package ai

// Status is the result of a behavior tree node tick.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	}
	return "unknown"
}

// Node is a single node in a behavior tree.
type Node interface {
	Tick(ctx *AIContext) Status
}

// Selector succeeds as soon as one child succeeds (logical OR).
type Selector struct {
	Children []Node
}

func (s *Selector) Tick(ctx *AIContext) Status {
	for _, c := range s.Children {
		if st := c.Tick(ctx); st != StatusFailure {
			return st
		}
	}
	return StatusFailure
}

// Sequence succeeds only when all children succeed (logical AND).
type Sequence struct {
	Children []Node
}

func (s *Sequence) Tick(ctx *AIContext) Status {
	for _, c := range s.Children {
		if st := c.Tick(ctx); st != StatusSuccess {
			return st
		}
	}
	return StatusSuccess
}

// ConditionNode evaluates a boolean predicate.
type ConditionNode struct {
	Fn func(*AIContext) bool
}

func (cn *ConditionNode) Tick(ctx *AIContext) Status {
	if cn.Fn(ctx) {
		return StatusSuccess
	}
	return StatusFailure
}

// ActionNode executes an action and returns its status.
type ActionNode struct {
	Fn func(*AIContext) Status
}

func (an *ActionNode) Tick(ctx *AIContext) Status {
	return an.Fn(ctx)
}

// Inverter negates the result of its child.
type Inverter struct {
	Child Node
}

func (i *Inverter) Tick(ctx *AIContext) Status {
	switch i.Child.Tick(ctx) {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	}
	return StatusRunning
}

// Wait reports running until DurationMS of accumulated tick time has passed, then
// succeeds once and rearms.
type Wait struct {
	DurationMS int64
	elapsed    int64
}

func (w *Wait) Tick(ctx *AIContext) Status {
	w.elapsed += ctx.DeltaMS
	if w.elapsed < w.DurationMS {
		return StatusRunning
	}
	w.elapsed = 0
	return StatusSuccess
}

// IsIdle succeeds when the agent has no active target.
var IsIdle Node = &ConditionNode{Fn: func(ctx *AIContext) bool {
	return ctx.Agent != nil && ctx.Agent.Idle()
}}

// Waypoints cycles an agent through a fixed list of cells. Each tick sends the agent
// to the next waypoint it is not already standing on.
type Waypoints struct {
	Cells []Cell
	next  int
}

func (wp *Waypoints) Tick(ctx *AIContext) Status {
	if ctx.Agent == nil || len(wp.Cells) == 0 {
		return StatusFailure
	}
	cur := ctx.Agent.CurrentCell()
	for range wp.Cells {
		c := wp.Cells[wp.next]
		wp.next = (wp.next + 1) % len(wp.Cells)
		if c == cur {
			continue
		}
		if ctx.Agent.GoTo(c) {
			return StatusSuccess
		}
	}
	return StatusFailure
}

// NewPatrolTree builds a tree that, whenever the agent is idle, waits dwellMS and then
// sends it to the next waypoint.
func NewPatrolTree(cells []Cell, dwellMS int64) *BehaviorTree {
	return &BehaviorTree{Root: &Sequence{Children: []Node{
		IsIdle,
		&Wait{DurationMS: dwellMS},
		&Waypoints{Cells: cells},
	}}}
}

// BehaviorTree wraps the root node.
type BehaviorTree struct {
	Root Node
}

// Tick runs one frame of the behavior tree.
func (bt *BehaviorTree) Tick(ctx *AIContext) Status {
	if bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}
