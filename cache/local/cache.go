package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

// entry holds a cached value with an optional expiry. Hashes and lists share
// the keyspace with plain strings, so Del and Expire work on all of them.
type entry struct {
	data     string
	hash     map[string]string
	list     []string
	expireAt time.Time
	noExpiry bool
}

func (e *entry) expired(now time.Time) bool {
	return !e.noExpiry && now.After(e.expireAt)
}

// LocalCache is an in-process cache implementing the Cache interface.
type LocalCache struct {
	mu         sync.Mutex
	items      map[string]*entry
	gcInterval time.Duration
	stopGC     chan struct{}
	closeOnce  sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		items:      make(map[string]*entry),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine. Safe to call more than once.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.items {
				if e.expired(now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// live returns the unexpired entry for key. Caller holds c.mu.
func (c *LocalCache) live(key string) (*entry, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.items, key)
		return nil, false
	}
	return e, true
}

// getOrCreate returns the live entry for key, creating a non-expiring one. Caller holds c.mu.
func (c *LocalCache) getOrCreate(key string) *entry {
	if e, ok := c.live(key); ok {
		return e
	}
	e := &entry{noExpiry: true}
	c.items[key] = e
	return e
}

// ---- KV ----

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := &entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	} else {
		e.noExpiry = true
	}
	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return ErrNotFound
	}
	e.noExpiry = false
	e.expireAt = time.Now().Add(ttl)
	return nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.getOrCreate(key)
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	e.hash[field] = value
	return nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]string)
	if e, ok := c.live(key); ok {
		for k, v := range e.hash {
			result[k] = v
		}
	}
	return result, nil
}

func (c *LocalCache) HSetFields(_ context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.getOrCreate(key)
	if e.hash == nil {
		e.hash = make(map[string]string, len(fields))
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	return nil
}

// ---- List ----

// span clamps a Redis-style inclusive range (negative indices count from the end).
func span(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop, start <= stop && start < n
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, nil
	}
	lo, hi, ok := span(int64(len(e.list)), start, stop)
	if !ok {
		return nil, nil
	}
	result := make([]string, hi-lo+1)
	copy(result, e.list[lo:hi+1])
	return result, nil
}

func (c *LocalCache) PushCapped(_ context.Context, key string, max int64, ttl time.Duration, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.getOrCreate(key)
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	if max > 0 && int64(len(e.list)) > max {
		e.list = append([]string(nil), e.list[:max]...)
	}
	if ttl > 0 {
		e.noExpiry = false
		e.expireAt = time.Now().Add(ttl)
	}
	return nil
}
