package store

import (
	"sync"
	"sync/atomic"
)

// counter is a monotonic sequence. Next returns strictly increasing values;
// Observe moves the sequence forward past an externally chosen value so a
// later Next never collides with it.
type counter struct {
	seq atomic.Int64
}

func (c *counter) next() int64 {
	return c.seq.Add(1)
}

func (c *counter) observe(v int64) {
	for {
		cur := c.seq.Load()
		if v <= cur || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Allocator hands out surrogate key values per (entity, field). Values are
// not persisted; a new Allocator starts every sequence at 1.
//
// Allocator is safe for concurrent use. Each Database owns one unless a
// shared one is injected with WithAllocator.
type Allocator struct {
	mu       sync.Mutex
	counters map[allocKey]*counter
}

type allocKey struct {
	entity string
	field  string
}

// NewAllocator creates an allocator with every sequence at 0.
func NewAllocator() *Allocator {
	return &Allocator{counters: make(map[allocKey]*counter)}
}

func (a *Allocator) counter(entity, field string) *counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := allocKey{entity, field}
	c, ok := a.counters[k]
	if !ok {
		c = &counter{}
		a.counters[k] = c
	}
	return c
}

// Next returns the next value for (entity, field).
func (a *Allocator) Next(entity, field string) int64 {
	return a.counter(entity, field).next()
}

// Observe records an explicitly supplied value so it is never handed out.
func (a *Allocator) Observe(entity, field string, v int64) {
	a.counter(entity, field).observe(v)
}

// Current returns the last value handed out or observed.
func (a *Allocator) Current(entity, field string) int64 {
	return a.counter(entity, field).seq.Load()
}
