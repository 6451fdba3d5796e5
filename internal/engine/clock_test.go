package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAndAdvances(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current(), "Current does not advance")
}

func TestClock_ConcurrentStampsAreUnique(t *testing.T) {
	c := NewClock()
	const workers, calls = 16, 200

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*calls)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				seq := c.Next()
				mu.Lock()
				seen[seq] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls)
	assert.Equal(t, int64(workers*calls), c.Current())
}
