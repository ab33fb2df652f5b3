// ABOUTME: Tests for the recency-ordered thread list
// ABOUTME: Validates stable sorting, summary patching, and in-place status updates

package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/chatsync/internal/store"
)

func conv(id string, at time.Time) *store.Thread {
	return &store.Thread{ID: id, Kind: store.KindConversation, LastActivity: at}
}

func ticket(id string, status store.TicketStatus, at time.Time) *store.Thread {
	return &store.Thread{ID: id, Kind: store.KindTicket, Status: status, LastActivity: at}
}

func TestList_OrderedByRecency(t *testing.T) {
	l := New(nil)
	now := time.Now()

	l.Upsert(conv("old", now.Add(-time.Hour)))
	l.Upsert(conv("new", now))
	l.Upsert(conv("mid", now.Add(-time.Minute)))

	ids := idsOf(l.Snapshot())
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestList_ApplyMessageResorts(t *testing.T) {
	l := New(nil)
	now := time.Now()

	l.Upsert(conv("a", now.Add(-time.Hour)))
	l.Upsert(conv("b", now))

	changed := l.ApplyMessage("a", &store.Message{
		Content:   "bump",
		Sender:    "u2",
		CreatedAt: now.Add(time.Second),
	})
	require.True(t, changed)

	snap := l.Snapshot()
	assert.Equal(t, []string{"a", "b"}, idsOf(snap))
	assert.Equal(t, "bump", snap[0].LastMessage)
	assert.Equal(t, "u2", snap[0].LastSender)
}

func TestList_ApplyMessageOlderThanSummaryIgnored(t *testing.T) {
	l := New(nil)
	now := time.Now()

	th := conv("a", now)
	th.LastMessage = "current"
	l.Upsert(th)

	changed := l.ApplyMessage("a", &store.Message{
		Content:   "stale backfill",
		CreatedAt: now.Add(-time.Hour),
	})
	assert.False(t, changed)

	got, _ := l.Get("a")
	assert.Equal(t, "current", got.LastMessage)
}

func TestList_ApplyMessageUnknownThread(t *testing.T) {
	l := New(nil)
	assert.False(t, l.ApplyMessage("nope", &store.Message{Content: "x", CreatedAt: time.Now()}))
}

func TestList_TiesKeepPriorOrder(t *testing.T) {
	l := New(nil)
	now := time.Now()

	l.Upsert(conv("first", now))
	l.Upsert(conv("second", now))
	l.Upsert(conv("third", now))

	// Equal activity: insertion order must survive every resort
	l.Upsert(conv("later", now.Add(time.Second)))

	assert.Equal(t, []string{"later", "first", "second", "third"}, idsOf(l.Snapshot()))
}

func TestList_SetStatusInPlace(t *testing.T) {
	l := New(nil)
	now := time.Now()

	l.Upsert(ticket("t1", store.StatusOpen, now.Add(-time.Minute)))
	l.Upsert(conv("c1", now))

	before := idsOf(l.Snapshot())
	require.True(t, l.SetStatus("t1", store.StatusResolved))

	// Status mutation carries no activity: order untouched
	assert.Equal(t, before, idsOf(l.Snapshot()))

	got, _ := l.Get("t1")
	assert.Equal(t, store.StatusResolved, got.Status)
}

func TestList_SetStatusOnConversationRejected(t *testing.T) {
	l := New(nil)
	l.Upsert(conv("c1", time.Now()))

	assert.False(t, l.SetStatus("c1", store.StatusClosed))
}

func TestList_UpsertRefreshesWithoutRewinding(t *testing.T) {
	l := New(nil)
	now := time.Now()

	live := conv("a", now)
	live.LastMessage = "live message"
	l.Upsert(live)

	// A stale fetch snapshot must not rewind the live summary
	stale := conv("a", now.Add(-time.Hour))
	stale.LastMessage = "old snapshot"
	l.Upsert(stale)

	got, _ := l.Get("a")
	assert.Equal(t, "live message", got.LastMessage)
	assert.Equal(t, now.Unix(), got.LastActivity.Unix())
}

func TestList_RecomputeSummaryAfterRollback(t *testing.T) {
	l := New(nil)
	now := time.Now()

	l.Upsert(conv("a", now.Add(-time.Minute)))
	l.ApplyMessage("a", &store.Message{Content: "doomed send", CreatedAt: now})

	// The failed send is gone; the summary falls back to the prior entry
	prior := &store.Message{Content: "earlier", Sender: "u2", CreatedAt: now.Add(-time.Minute)}
	require.True(t, l.RecomputeSummary("a", prior))

	got, _ := l.Get("a")
	assert.Equal(t, "earlier", got.LastMessage)
}

func TestList_SnapshotIsACopy(t *testing.T) {
	l := New(nil)
	l.Upsert(conv("a", time.Now()))

	snap := l.Snapshot()
	snap[0].LastMessage = "mutated"

	got, _ := l.Get("a")
	assert.Empty(t, got.LastMessage)
}

func idsOf(threads []*store.Thread) []string {
	ids := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}
