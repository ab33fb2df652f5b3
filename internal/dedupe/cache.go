// ABOUTME: TTL and size bounded seen-cache for suppressing duplicate push frames
// ABOUTME: Keys are event identifiers; the merge algorithm stays idempotent without it

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry holds the observation time and list position for a cached key
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently observed event keys so the socket layer can drop
// retransmitted frames before they reach the merge algorithm. Insertion
// order is kept in a linked list for O(1) eviction when full.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*entry
	order   *list.List // oldest key at front
	ttl     time.Duration
	maxSize int
}

// New creates a seen-cache with the given TTL and maximum size
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		keys:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Duplicate atomically reports whether key was already observed inside
// the TTL, marking it as observed when it was not. The single-call shape
// avoids a check/mark race between concurrent frames.
func (c *Cache) Duplicate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.keys[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}

	c.observeLocked(key)
	return false
}

// observeLocked records or refreshes a key. Must be called with mu held.
func (c *Cache) observeLocked(key string) {
	now := time.Now()

	if e, ok := c.keys[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.keys) >= c.maxSize {
		c.evictLocked()
	}

	elem := c.order.PushBack(key)
	c.keys[key] = &entry{seenAt: now, element: elem}
}

// evictLocked drops expired keys, falling back to the oldest key when
// nothing has expired yet. Must be called with mu held.
func (c *Cache) evictLocked() {
	now := time.Now()
	for front := c.order.Front(); front != nil; {
		key := front.Value.(string)
		e := c.keys[key]
		next := front.Next()
		if now.Sub(e.seenAt) < c.ttl && len(c.keys) < c.maxSize {
			break
		}
		c.order.Remove(front)
		delete(c.keys, key)
		front = next
	}
}

// Len returns the number of tracked keys
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
