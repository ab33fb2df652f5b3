// ABOUTME: Per-thread ordered message log owning the merge/dedup algorithm
// ABOUTME: Collapses optimistic sends with their server echoes and keeps timestamp order

package thread

import (
	"sort"
	"time"

	"github.com/tutorlane/chatsync/internal/store"
)

// MergeOutcome describes what the merge algorithm did with an incoming message
type MergeOutcome int

const (
	// MergeDuplicate: the log already held a confirmed copy; input discarded
	MergeDuplicate MergeOutcome = iota
	// MergeReplaced: an optimistic pending entry was confirmed in place
	MergeReplaced
	// MergeAppended: the message was new and appended (re-sorting if needed)
	MergeAppended
)

// Log is the ordered message log for one thread. Messages arrive from
// three sources with no ordering guarantee between them: paginated
// fetches, submit responses, and push broadcasts. Merge absorbs or
// appends every input; it never rejects one, so the log cannot wedge.
type Log struct {
	threadID string
	window   time.Duration
	isMine   func(*store.Message) bool
	msgs     []*store.Message
}

// DefaultPendingWindow bounds the content-match join between a pending
// optimistic send and the server's echo of that same send.
const DefaultPendingWindow = 5 * time.Second

// NewLog creates an empty log. isMine is the attribution predicate for
// this thread's kind; it decides whether an authoritative copy may
// confirm a pending local entry. A zero window uses the default.
func NewLog(threadID string, window time.Duration, isMine func(*store.Message) bool) *Log {
	if window <= 0 {
		window = DefaultPendingWindow
	}
	if isMine == nil {
		isMine = func(*store.Message) bool { return false }
	}
	return &Log{
		threadID: threadID,
		window:   window,
		isMine:   isMine,
	}
}

// Merge applies one incoming message to the log:
//
//  1. A confirmed entry with the same server ID already exists: discard.
//     This absorbs the broadcast echo after the submit response (or the
//     reverse) and repeated broadcast delivery to the sender.
//  2. The input is authoritative, attributed to the local actor, and a
//     pending entry with equal content sits within the recency window:
//     confirm that entry in place, preserving its position.
//  3. Otherwise append, re-sorting only when the input arrived out of
//     timestamp order (pagination backfill).
//
// The content+recency match in step 2 is a heuristic: identifiers are
// unavailable at submit time, so there is nothing exact to join on. Two
// identical sends inside the window can confirm the wrong entry.
func (l *Log) Merge(m *store.Message) MergeOutcome {
	if m.ID != "" {
		for _, have := range l.msgs {
			if have.Confirmed() && have.ID == m.ID {
				return MergeDuplicate
			}
		}

		if l.isMine(m) {
			if p := l.matchPending(m); p != nil {
				p.ID = m.ID
				if !m.CreatedAt.IsZero() {
					// Some submit-response shapes omit createdAt; the
					// provisional estimate keeps the entry in place
					p.CreatedAt = m.CreatedAt
				}
				p.State = store.StateConfirmed
				if len(m.Attachment) > 0 {
					p.Attachment = m.Attachment
				}
				return MergeReplaced
			}
		}
	}

	outOfOrder := len(l.msgs) > 0 && m.CreatedAt.Before(l.msgs[len(l.msgs)-1].CreatedAt)
	l.msgs = append(l.msgs, m)
	if outOfOrder {
		// Stable: equal timestamps keep arrival order
		sort.SliceStable(l.msgs, func(i, j int) bool {
			return l.msgs[i].CreatedAt.Before(l.msgs[j].CreatedAt)
		})
	}
	return MergeAppended
}

// matchPending finds the earliest pending entry with equal content whose
// provisional timestamp lies within the recency window of m.
func (l *Log) matchPending(m *store.Message) *store.Message {
	for _, have := range l.msgs {
		if have.State != store.StatePending {
			continue
		}
		if have.Content != m.Content {
			continue
		}
		delta := m.CreatedAt.Sub(have.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if m.CreatedAt.IsZero() || delta <= l.window {
			return have
		}
	}
	return nil
}

// Fail removes the pending entry with the given provisional key and
// returns it, or nil if no such entry exists. Failed messages leave the
// visible log; resubmission is an explicit new submit.
func (l *Log) Fail(provisionalKey string) *store.Message {
	for i, have := range l.msgs {
		if have.State == store.StatePending && have.ProvisionalKey == provisionalKey {
			have.State = store.StateFailed
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			return have
		}
	}
	return nil
}

// Messages returns a snapshot of the log in display order. Entries are
// cloned: a later in-place confirm must not be visible through a
// snapshot handed to a reader outside the engine's lock.
func (l *Log) Messages() []*store.Message {
	out := make([]*store.Message, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the newest entry, or nil for an empty log
func (l *Log) Last() *store.Message {
	if len(l.msgs) == 0 {
		return nil
	}
	return l.msgs[len(l.msgs)-1]
}

// Len returns the number of visible entries
func (l *Log) Len() int {
	return len(l.msgs)
}

// ThreadID returns the thread this log belongs to
func (l *Log) ThreadID() string {
	return l.threadID
}
