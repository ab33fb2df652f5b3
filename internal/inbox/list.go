// ABOUTME: Ordered thread list keyed by recency, patched by fetches and message events
// ABOUTME: Stable sort on last activity; ticket status mutates in place without reordering

package inbox

import (
	"log/slog"
	"sort"
	"time"

	"github.com/tutorlane/chatsync/internal/store"
)

// List maintains thread summaries sorted by last-activity descending.
// Ties keep their prior relative order (stable sort).
type List struct {
	threads []*store.Thread
	byID    map[string]*store.Thread
	logger  *slog.Logger
}

// New creates an empty list. Pass nil logger for default.
func New(logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{
		byID:   make(map[string]*store.Thread),
		logger: logger.With("component", "inbox"),
	}
}

// Upsert inserts a thread or refreshes an existing one from a fetch
// result. Summary fields only move forward: a fetch snapshot never
// rewinds activity that a live message event already recorded.
func (l *List) Upsert(t *store.Thread) {
	have, ok := l.byID[t.ID]
	if !ok {
		c := t.Clone()
		l.byID[c.ID] = c
		l.threads = append(l.threads, c)
		l.resort()
		return
	}

	have.Kind = t.Kind
	if t.Subject != "" {
		have.Subject = t.Subject
	}
	if t.Status != "" {
		have.Status = t.Status
	}
	if len(t.Participants) > 0 {
		have.Participants = append([]store.Participant(nil), t.Participants...)
	}
	if t.LastActivity.After(have.LastActivity) {
		have.LastMessage = t.LastMessage
		have.LastSender = t.LastSender
		have.LastFromAdmin = t.LastFromAdmin
		have.LastActivity = t.LastActivity
		l.resort()
	}
}

// ApplyMessage patches a thread's summary from a merged message and
// re-sorts if its recency changed. Returns false when the thread is
// unknown or the message is older than the current summary.
func (l *List) ApplyMessage(threadID string, m *store.Message) bool {
	have, ok := l.byID[threadID]
	if !ok {
		return false
	}
	if m.CreatedAt.Before(have.LastActivity) {
		return false
	}

	have.LastMessage = m.Content
	have.LastSender = m.Sender
	have.LastFromAdmin = m.FromAdmin
	have.LastActivity = m.CreatedAt
	l.resort()
	return true
}

// RecomputeSummary rebuilds a thread's summary from the log's newest
// entry after a rollback (a failed optimistic send that had already
// bumped the preview). A nil last clears the summary.
func (l *List) RecomputeSummary(threadID string, last *store.Message) bool {
	have, ok := l.byID[threadID]
	if !ok {
		return false
	}
	if last == nil {
		have.LastMessage = ""
		have.LastSender = ""
		have.LastFromAdmin = false
	} else {
		have.LastMessage = last.Content
		have.LastSender = last.Sender
		have.LastFromAdmin = last.FromAdmin
		have.LastActivity = last.CreatedAt
	}
	l.resort()
	return true
}

// SetStatus updates a ticket's status in place. Order is untouched:
// status changes carry no activity of their own.
func (l *List) SetStatus(ticketID string, status store.TicketStatus) bool {
	have, ok := l.byID[ticketID]
	if !ok || have.Kind != store.KindTicket {
		return false
	}
	if have.Status == status {
		return false
	}
	l.logger.Debug("ticket status changed", "ticket_id", ticketID, "from", have.Status, "to", status)
	have.Status = status
	return true
}

// Get returns a copy of one thread
func (l *List) Get(id string) (*store.Thread, bool) {
	have, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	return have.Clone(), true
}

// Contains reports whether the thread is known
func (l *List) Contains(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Snapshot returns copies of all threads in display order
func (l *List) Snapshot() []*store.Thread {
	out := make([]*store.Thread, len(l.threads))
	for i, t := range l.threads {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of threads
func (l *List) Len() int {
	return len(l.threads)
}

// LatestActivity returns the most recent activity across all threads
func (l *List) LatestActivity() time.Time {
	if len(l.threads) == 0 {
		return time.Time{}
	}
	return l.threads[0].LastActivity
}

// resort re-establishes last-activity-descending order, stable
func (l *List) resort() {
	sort.SliceStable(l.threads, func(i, j int) bool {
		return l.threads[i].LastActivity.After(l.threads[j].LastActivity)
	})
}
