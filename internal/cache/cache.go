// Package cache provides a single-slot, time-bounded read cache for state
// documents. Concurrent misses may each run the loader; the cache does not
// deduplicate in-flight loads.
package cache

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/metrics"
)

// DefaultTTL is used when New receives a non-positive ttl.
const DefaultTTL = 30 * time.Second

// State describes the cache slot.
type State string

const (
	StateEmpty   State = "empty"
	StateValid   State = "valid"
	StateExpired State = "expired"
)

// Status is a point-in-time view of the slot.
type Status struct {
	State State
	Age   time.Duration // Zero when empty
	TTL   time.Duration
}

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

// ReadCache holds at most one value of T with the time it was stored.
type ReadCache[T any] struct {
	ttl      time.Duration
	now      Clock
	name     string
	recorder metrics.Recorder

	mu       sync.RWMutex
	value    T
	storedAt time.Time
	present  bool
}

// Option configures a ReadCache.
type Option func(*options)

type options struct {
	now      Clock
	name     string
	recorder metrics.Recorder
}

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.now = c
		}
	}
}

// WithName labels hit/miss metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = metrics.OrNoop(r) }
}

// New returns an empty cache with the given ttl.
func New[T any](ttl time.Duration, opts ...Option) *ReadCache[T] {
	o := options{now: time.Now, name: "default", recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadCache[T]{ttl: ttl, now: o.now, name: o.name, recorder: o.recorder}
}

// Get returns the cached value if it is still valid.
func (c *ReadCache[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.present && c.now().Sub(c.storedAt) < c.ttl {
		return c.value, true
	}
	var zero T
	return zero, false
}

// GetOrLoad returns the cached value or runs loader and caches its result.
// A loader error is returned as-is and leaves the slot unchanged.
func (c *ReadCache[T]) GetOrLoad(loader func() (T, error)) (T, error) {
	if v, ok := c.Get(); ok {
		c.recorder.IncCacheLookup(c.name, true)
		return v, nil
	}
	c.recorder.IncCacheLookup(c.name, false)

	v, err := loader()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(v)
	return v, nil
}

// Set stores v with the current time.
func (c *ReadCache[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.storedAt = c.now()
	c.present = true
	c.mu.Unlock()
}

// Invalidate empties the slot.
func (c *ReadCache[T]) Invalidate() {
	c.mu.Lock()
	var zero T
	c.value = zero
	c.storedAt = time.Time{}
	c.present = false
	c.mu.Unlock()
}

// IsValid reports whether Get would hit.
func (c *ReadCache[T]) IsValid() bool {
	_, ok := c.Get()
	return ok
}

// Status reports the slot state and age.
func (c *ReadCache[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.present {
		return Status{State: StateEmpty, TTL: c.ttl}
	}
	age := c.now().Sub(c.storedAt)
	st := StateValid
	if age >= c.ttl {
		st = StateExpired
	}
	return Status{State: st, Age: age, TTL: c.ttl}
}

// TTL returns the configured time-to-live.
func (c *ReadCache[T]) TTL() time.Duration { return c.ttl }
