package ai

import (
	"github.com/emirpasic/gods/queues/priorityqueue"
)

// openNode is a frontier entry. A cell may be queued more than once; entries whose g
// no longer matches the best known cost are skipped when dequeued.
type openNode struct {
	cell Cell
	g, h int
	seq  uint64
}

func (n *openNode) f() int { return n.g + n.h }

// frontier orders open nodes by f, then by h (closer to the goal first), then by
// insertion order.
type frontier struct {
	q   *priorityqueue.Queue
	seq uint64
}

func compareOpen(a, b interface{}) int {
	x, y := a.(*openNode), b.(*openNode)
	switch {
	case x.f() != y.f():
		if x.f() < y.f() {
			return -1
		}
		return 1
	case x.h != y.h:
		if x.h < y.h {
			return -1
		}
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	}
	return 0
}

func newFrontier() *frontier {
	return &frontier{q: priorityqueue.NewWith(compareOpen)}
}

func (f *frontier) push(c Cell, g, h int) {
	f.seq++
	f.q.Enqueue(&openNode{cell: c, g: g, h: h, seq: f.seq})
}

func (f *frontier) pop() (*openNode, bool) {
	v, ok := f.q.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(*openNode), true
}

func (f *frontier) len() int { return f.q.Size() }
