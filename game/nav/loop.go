package nav

import (
	"sync"
	"sync/atomic"
)

// Handle controls a running follower loop.
type Handle struct {
	name    string
	sched   Scheduler
	stopped atomic.Bool
	once    sync.Once
}

// TaskName returns the scheduler task name used by the loop.
func (h *Handle) TaskName() string { return h.name }

// Stop cancels the loop. An advance already in progress completes; no further advances
// run. Safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.stopped.Store(true)
		h.sched.Remove(h.name)
	})
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool { return h.stopped.Load() }

// Start runs the follower on s: wait Delay(), Advance, repeat until the handle is stopped.
// The loop keeps ticking while idle so a later SetTarget is picked up on the next wake.
func (f *Follower) Start(s Scheduler) *Handle {
	h := &Handle{name: "nav:" + f.id, sched: s}
	var tick func()
	tick = func() {
		if h.stopped.Load() {
			return
		}
		f.Advance()
		if h.stopped.Load() {
			return
		}
		s.AddDelay(h.name, f.Delay(), tick)
	}
	s.AddDelay(h.name, f.Delay(), tick)
	return h
}
