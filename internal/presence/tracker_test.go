// ABOUTME: Tests for the online-identifier set derived from join/leave events
// ABOUTME: Validates idempotent transitions and the clear-on-reconnect lifecycle

package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_JoinLeave(t *testing.T) {
	tr := New(nil)

	assert.False(t, tr.IsOnline("42"))

	tr.Join("42")
	assert.True(t, tr.IsOnline("42"))

	tr.Leave("42")
	assert.False(t, tr.IsOnline("42"))
}

func TestTracker_DuplicateJoinsAreIdempotent(t *testing.T) {
	tr := New(nil)

	// Presence is a set, not a counter: two joins need one leave
	tr.Join("42")
	tr.Join("42")
	assert.Equal(t, 1, tr.Count())

	tr.Leave("42")
	assert.False(t, tr.IsOnline("42"))
}

func TestTracker_LeaveWhenOfflineIsNoOp(t *testing.T) {
	tr := New(nil)

	tr.Leave("42")
	assert.False(t, tr.IsOnline("42"))
	assert.Equal(t, 0, tr.Count())
}

func TestTracker_EmptyIdentifierIgnored(t *testing.T) {
	tr := New(nil)

	tr.Join("")
	assert.Equal(t, 0, tr.Count())
}

func TestTracker_ResetClearsSet(t *testing.T) {
	tr := New(nil)

	tr.Join("1")
	tr.Join("2")
	tr.Reset()

	assert.False(t, tr.IsOnline("1"))
	assert.False(t, tr.IsOnline("2"))
	assert.Equal(t, 0, tr.Count())
}
