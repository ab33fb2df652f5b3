// ABOUTME: Tests for the local SQLite cache of threads and messages
// ABOUTME: Covers round trips, upsert semantics, and the confirmed-only rule

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCache_ThreadRoundTrip(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	th := &Thread{
		ID:      "t1",
		Kind:    KindTicket,
		Subject: "Billing",
		Status:  StatusOpen,
		Participants: []Participant{
			{ID: "u1", Name: "Sam", Role: "student"},
		},
		LastMessage:  "help",
		LastActivity: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, c.SaveThread(ctx, th))

	threads, err := c.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	got := threads[0]
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, KindTicket, got.Kind)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, "help", got.LastMessage)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "Sam", got.Participants[0].Name)
}

func TestSQLiteCache_ThreadUpsert(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	th := &Thread{ID: "t1", Kind: KindTicket, Status: StatusOpen, LastActivity: time.Now()}
	require.NoError(t, c.SaveThread(ctx, th))

	th.Status = StatusResolved
	require.NoError(t, c.SaveThread(ctx, th))

	threads, err := c.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, StatusResolved, threads[0].Status)
}

func TestSQLiteCache_MessageRoundTrip(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Millisecond)
	msgs := []*Message{
		{ID: "m2", ThreadID: "c1", Sender: "u2", Content: "second", CreatedAt: at.Add(time.Second), State: StateConfirmed},
		{ID: "m1", ThreadID: "c1", Sender: "u1", Content: "first", CreatedAt: at, State: StateConfirmed},
		{ID: "m3", ThreadID: "other", Sender: "u1", Content: "elsewhere", CreatedAt: at, State: StateConfirmed},
	}
	for _, m := range msgs {
		require.NoError(t, c.SaveMessage(ctx, m))
	}

	got, err := c.ThreadMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Chronological order regardless of insert order
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, StateConfirmed, got[0].State)
}

func TestSQLiteCache_RejectsPendingMessages(t *testing.T) {
	c := testCache(t)

	pending := &Message{ProvisionalKey: "p1", ThreadID: "c1", Content: "draft", State: StatePending}
	assert.Error(t, c.SaveMessage(context.Background(), pending))
}

func TestSQLiteCache_ThreadsOrderedByActivity(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, c.SaveThread(ctx, &Thread{ID: "old", Kind: KindConversation, LastActivity: now.Add(-time.Hour)}))
	require.NoError(t, c.SaveThread(ctx, &Thread{ID: "new", Kind: KindConversation, LastActivity: now}))

	threads, err := c.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "new", threads[0].ID)
	assert.Equal(t, "old", threads[1].ID)
}
