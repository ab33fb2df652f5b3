// ABOUTME: Shared domain types for chatsync threads, messages, and participants
// ABOUTME: Defines ticket status taxonomy, confirmation lifecycle, and sentinel errors

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ThreadKind distinguishes direct conversations from support tickets
type ThreadKind string

const (
	KindConversation ThreadKind = "conversation"
	KindTicket       ThreadKind = "ticket"
)

// TicketStatus is the lifecycle state of a support ticket.
// Conversations carry no status (empty string).
type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in-progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// ConfirmState tracks a message through the optimistic-send lifecycle.
// State only moves forward: pending -> confirmed, or pending -> failed.
type ConfirmState string

const (
	StatePending   ConfirmState = "pending"
	StateConfirmed ConfirmState = "confirmed"
	StateFailed    ConfirmState = "failed"
)

// Participant is one member of a thread
type Participant struct {
	ID   string
	Name string
	Role string // "student", "tutor", "admin", "user"
}

// Thread is a conversation or support ticket. The message log itself
// lives in thread.Log; Thread carries only what the inbox needs for
// display and recency ordering.
type Thread struct {
	ID           string
	Kind         ThreadKind
	Subject      string // tickets only
	Participants []Participant
	Status       TicketStatus // tickets only; empty for conversations

	// Summary fields maintained by the inbox
	LastMessage   string
	LastSender    string
	LastFromAdmin bool
	LastActivity  time.Time
}

// Clone returns a copy of the thread with its own participants slice
func (t *Thread) Clone() *Thread {
	c := *t
	c.Participants = append([]Participant(nil), t.Participants...)
	return &c
}

// Message is a single entry in a thread's log.
//
// ID is server-assigned and globally unique once confirmed; it is empty
// while the message is pending. ProvisionalKey is a locally-unique key
// allocated at submit time so a failed send can be rolled back before
// any server identifier exists.
type Message struct {
	ID             string
	ProvisionalKey string
	ThreadID       string
	Sender         string // participant identifier
	FromAdmin      bool   // role tag for ticket messages
	Content        string
	Attachment     []byte // opaque payload, not interpreted here
	CreatedAt      time.Time
	State          ConfirmState
}

// Confirmed reports whether the message carries a server identifier
func (m *Message) Confirmed() bool {
	return m.State == StateConfirmed && m.ID != ""
}

// Key returns the server ID when confirmed, otherwise the provisional key
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ProvisionalKey
}

// Clone returns a copy of the message with its own attachment slice
func (m *Message) Clone() *Message {
	c := *m
	c.Attachment = append([]byte(nil), m.Attachment...)
	return &c
}
