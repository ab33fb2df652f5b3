// ABOUTME: Tests for the seen-cache used to drop retransmitted push frames
// ABOUTME: Validates TTL expiry, capacity eviction, and atomic duplicate detection

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstObservationIsNotDuplicate(t *testing.T) {
	c := New(5*time.Minute, 100)

	assert.False(t, c.Duplicate("new-message:m1"))
	assert.True(t, c.Duplicate("new-message:m1"))
}

func TestCache_ExpiredKeyIsNotDuplicate(t *testing.T) {
	c := New(10*time.Millisecond, 100)

	assert.False(t, c.Duplicate("k"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Duplicate("k"))
}

func TestCache_CapacityEviction(t *testing.T) {
	c := New(5*time.Minute, 3)

	c.Duplicate("k1")
	c.Duplicate("k2")
	c.Duplicate("k3")
	c.Duplicate("k4") // evicts the oldest

	assert.LessOrEqual(t, c.Len(), 3)
	assert.False(t, c.Duplicate("k1"), "oldest key should have been evicted")
	assert.True(t, c.Duplicate("k4"))
}

func TestCache_RecheckRefreshesPosition(t *testing.T) {
	c := New(5*time.Minute, 3)

	c.Duplicate("k1")
	c.Duplicate("k2")
	c.Duplicate("k3")
	c.Duplicate("k1") // refreshes k1 to the back
	c.Duplicate("k4") // should evict k2, not k1

	assert.True(t, c.Duplicate("k1"))
	assert.False(t, c.Duplicate("k2"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Duplicate(fmt.Sprintf("key-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, c.Len())
}
