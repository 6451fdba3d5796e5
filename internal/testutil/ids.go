package testutil

import "sync"

// FixedIDGenerator hands out predetermined IDs, for golden output that
// embeds session IDs.
//
// Thread-safety: safe for concurrent use.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator returns a generator yielding ids in order. Once the
// list is exhausted the last ID repeats; with no ids it yields
// "test-session".
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	if len(ids) == 0 {
		ids = []string{"test-session"}
	}
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next ID.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[min(g.idx, len(g.ids)-1)]
	g.idx++
	return id
}
