// ABOUTME: Read-only projection of threads and logs into display values
// ABOUTME: Owns the two attribution predicates (conversation by sender, ticket by role)

package view

import (
	"time"

	"github.com/tutorlane/chatsync/internal/identity"
	"github.com/tutorlane/chatsync/internal/store"
)

// UnknownSender is rendered when a message's sender cannot be resolved
// against the thread's participant set. An ambiguous attribution never
// fails the whole thread.
const UnknownSender = "Unknown"

// Bubble is one message prepared for display
type Bubble struct {
	ID         string // server ID or provisional key
	Content    string
	SenderName string
	Mine       bool
	Pending    bool
	At         time.Time
}

// Summary is one thread prepared for the inbox view
type Summary struct {
	ThreadID     string
	Kind         store.ThreadKind
	Title        string
	Preview      string
	At           time.Time
	Status       store.TicketStatus
	Unread       bool
	InputEnabled bool
}

// Mine decides whether a message displays as sent by the local actor.
//
// The two predicates are deliberately separate: a conversation matches
// on the sender's identifier, while a ticket matches on the admin role
// tag — "admin" is a role shared by all support staff, not a specific
// identifier, so the predicates must not be unified.
func Mine(m *store.Message, kind store.ThreadKind, local identity.Identity) bool {
	if kind == store.KindTicket {
		return m.FromAdmin == local.Admin()
	}
	return m.Sender == local.UserID
}

// ProjectThread derives display bubbles from a thread's log
func ProjectThread(t *store.Thread, msgs []*store.Message, local identity.Identity) []Bubble {
	bubbles := make([]Bubble, 0, len(msgs))
	for _, m := range msgs {
		bubbles = append(bubbles, Bubble{
			ID:         m.Key(),
			Content:    m.Content,
			SenderName: senderName(t, m, local),
			Mine:       Mine(m, t.Kind, local),
			Pending:    m.State == store.StatePending,
			At:         m.CreatedAt,
		})
	}
	return bubbles
}

// ProjectSummary derives the inbox row for one thread
func ProjectSummary(t *store.Thread, local identity.Identity) Summary {
	last := &store.Message{
		Sender:    t.LastSender,
		FromAdmin: t.LastFromAdmin,
	}

	return Summary{
		ThreadID: t.ID,
		Kind:     t.Kind,
		Title:    title(t, local),
		Preview:  t.LastMessage,
		At:       t.LastActivity,
		Status:   t.Status,
		Unread:   t.Status == store.StatusOpen && t.LastMessage != "" && !Mine(last, t.Kind, local),
		// The composer stays enabled for every state except closed
		InputEnabled: t.Kind != store.KindTicket || t.Status != store.StatusClosed,
	}
}

// ProjectList derives inbox rows for all threads, preserving order
func ProjectList(threads []*store.Thread, local identity.Identity) []Summary {
	out := make([]Summary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ProjectSummary(t, local))
	}
	return out
}

// senderName resolves a display name for the message sender
func senderName(t *store.Thread, m *store.Message, local identity.Identity) string {
	if Mine(m, t.Kind, local) {
		if local.Name != "" {
			return local.Name
		}
		return local.UserID
	}
	if t.Kind == store.KindTicket && m.FromAdmin {
		return "Support"
	}
	for _, p := range t.Participants {
		if p.ID == m.Sender {
			if p.Name != "" {
				return p.Name
			}
			return p.ID
		}
	}
	return UnknownSender
}

// title resolves the inbox row title: the counterpart's name for a
// conversation, the subject for a ticket.
func title(t *store.Thread, local identity.Identity) string {
	if t.Kind == store.KindTicket {
		if t.Subject != "" {
			return t.Subject
		}
		return "Support ticket"
	}
	for _, p := range t.Participants {
		if p.ID != local.UserID {
			if p.Name != "" {
				return p.Name
			}
			return p.ID
		}
	}
	return UnknownSender
}
