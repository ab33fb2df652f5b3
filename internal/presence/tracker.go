// ABOUTME: Presence tracker maintaining the set of currently-online participant identifiers
// ABOUTME: Join and leave transitions are idempotent; the set is cleared on reconnect

package presence

import (
	"log/slog"
	"sync"
)

// Tracker holds the online-identifier set derived from join/leave events.
// Presence is a set, not a counter: duplicate joins collapse, and leaving
// an identifier that is not present is a no-op.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]struct{}
	logger *slog.Logger
}

// New creates an empty tracker. Pass nil logger for default.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		online: make(map[string]struct{}),
		logger: logger.With("component", "presence"),
	}
}

// Join marks an identifier online
func (t *Tracker) Join(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[id] = struct{}{}
}

// Leave marks an identifier offline
func (t *Tracker) Leave(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, id)
}

// IsOnline reports whether the identifier has joined and not yet left
func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Reset clears the set. Called on reconnect: the set is rebuilt from
// subsequent events, with an accepted staleness window between the
// disconnect and the first rebuilt event.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.online) > 0 {
		t.logger.Debug("presence cleared", "count", len(t.online))
	}
	t.online = make(map[string]struct{})
}

// Count returns the number of online identifiers
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}
