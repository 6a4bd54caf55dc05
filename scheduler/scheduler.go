package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	delays  map[string]*delayEntry
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped bool
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
}

// delayEntry is compared by pointer so a task that re-arms itself from inside its own
// callback is not removed by the callback's cleanup.
type delayEntry struct {
	timer *time.Timer
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		delays:  make(map[string]*delayEntry),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				s.run(name, fn)
			case <-entry.stopCh:
				return
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Debug("scheduler ticker registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay, replacing any pending delay with the
// same name. fn may call AddDelay with its own name to re-arm itself.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.delays[name]; ok {
		old.timer.Stop()
	}
	entry := &delayEntry{}
	entry.timer = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			if s.delays[name] == entry {
				delete(s.delays, name)
			}
			s.mu.Unlock()
		}()
		s.run(name, fn)
	})
	s.delays[name] = entry
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if d, ok := s.delays[name]; ok {
		d.timer.Stop()
		delete(s.delays, name)
	}
}

// Pending reports whether a delay task with the given name is waiting to fire.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.delays[name]
	return ok
}

// Stop stops all tasks. Later registrations are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
	for name, d := range s.delays {
		d.timer.Stop()
		delete(s.delays, name)
	}
	for name := range s.tickers {
		delete(s.tickers, name)
	}
}

// ListTickers returns the sorted names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DelayCount returns the number of pending delay tasks.
func (s *Scheduler) DelayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}
