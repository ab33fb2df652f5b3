// ABOUTME: Tests for display projection and the two attribution predicates
// ABOUTME: Covers mine/theirs, unknown senders, unread badges, and composer gating

package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/chatsync/internal/identity"
	"github.com/tutorlane/chatsync/internal/store"
)

var student = identity.Identity{UserID: "u1", Name: "Sam", Role: "student"}
var admin = identity.Identity{UserID: "a9", Name: "Agent", Role: "admin"}

func TestMine_ConversationMatchesOnSender(t *testing.T) {
	mine := &store.Message{Sender: "u1"}
	theirs := &store.Message{Sender: "u2"}

	assert.True(t, Mine(mine, store.KindConversation, student))
	assert.False(t, Mine(theirs, store.KindConversation, student))
}

func TestMine_TicketMatchesOnRoleNotIdentifier(t *testing.T) {
	fromAdmin := &store.Message{Sender: "some-other-admin", FromAdmin: true}
	fromUser := &store.Message{Sender: "u1", FromAdmin: false}

	// Any admin's message is "mine" to an admin, regardless of identifier
	assert.True(t, Mine(fromAdmin, store.KindTicket, admin))
	assert.False(t, Mine(fromUser, store.KindTicket, admin))

	// And the inverse for the user side
	assert.False(t, Mine(fromAdmin, store.KindTicket, student))
	assert.True(t, Mine(fromUser, store.KindTicket, student))
}

func TestProjectThread_SenderNames(t *testing.T) {
	th := &store.Thread{
		ID:   "c1",
		Kind: store.KindConversation,
		Participants: []store.Participant{
			{ID: "u1", Name: "Sam"},
			{ID: "u2", Name: "Taylor"},
		},
	}
	msgs := []*store.Message{
		{ID: "m1", Sender: "u2", Content: "hello", State: store.StateConfirmed},
		{ID: "m2", Sender: "u1", Content: "hi", State: store.StateConfirmed},
		{ID: "m3", Sender: "ghost", Content: "?", State: store.StateConfirmed},
	}

	bubbles := ProjectThread(th, msgs, student)
	require.Len(t, bubbles, 3)

	assert.Equal(t, "Taylor", bubbles[0].SenderName)
	assert.False(t, bubbles[0].Mine)

	assert.Equal(t, "Sam", bubbles[1].SenderName)
	assert.True(t, bubbles[1].Mine)

	// Unresolvable sender renders with a fallback, never fails the thread
	assert.Equal(t, UnknownSender, bubbles[2].SenderName)
}

func TestProjectThread_PendingFlag(t *testing.T) {
	th := &store.Thread{ID: "c1", Kind: store.KindConversation}
	msgs := []*store.Message{
		{ProvisionalKey: "p1", Sender: "u1", Content: "sending", State: store.StatePending},
	}

	bubbles := ProjectThread(th, msgs, student)
	require.Len(t, bubbles, 1)
	assert.True(t, bubbles[0].Pending)
	assert.Equal(t, "p1", bubbles[0].ID)
}

func TestProjectSummary_UnreadBadge(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		thread *store.Thread
		local  identity.Identity
		unread bool
	}{
		{
			name: "open ticket with admin reply is unread for user",
			thread: &store.Thread{
				ID: "t1", Kind: store.KindTicket, Status: store.StatusOpen,
				LastMessage: "we're on it", LastFromAdmin: true, LastActivity: now,
			},
			local:  student,
			unread: true,
		},
		{
			name: "open ticket with own message is read",
			thread: &store.Thread{
				ID: "t2", Kind: store.KindTicket, Status: store.StatusOpen,
				LastMessage: "please help", LastFromAdmin: false, LastActivity: now,
			},
			local:  student,
			unread: false,
		},
		{
			name: "resolved ticket never shows the badge",
			thread: &store.Thread{
				ID: "t3", Kind: store.KindTicket, Status: store.StatusResolved,
				LastMessage: "we're on it", LastFromAdmin: true, LastActivity: now,
			},
			local:  student,
			unread: false,
		},
		{
			name: "user message is unread for the admin",
			thread: &store.Thread{
				ID: "t4", Kind: store.KindTicket, Status: store.StatusOpen,
				LastMessage: "please help", LastFromAdmin: false, LastActivity: now,
			},
			local:  admin,
			unread: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.unread, ProjectSummary(tc.thread, tc.local).Unread)
		})
	}
}

func TestProjectSummary_ComposerGating(t *testing.T) {
	open := &store.Thread{ID: "t1", Kind: store.KindTicket, Status: store.StatusResolved}
	closed := &store.Thread{ID: "t2", Kind: store.KindTicket, Status: store.StatusClosed}
	conv := &store.Thread{ID: "c1", Kind: store.KindConversation}

	// Input is enabled for every state except closed
	assert.True(t, ProjectSummary(open, student).InputEnabled)
	assert.False(t, ProjectSummary(closed, student).InputEnabled)
	assert.True(t, ProjectSummary(conv, student).InputEnabled)
}

func TestProjectSummary_Titles(t *testing.T) {
	conv := &store.Thread{
		ID:   "c1",
		Kind: store.KindConversation,
		Participants: []store.Participant{
			{ID: "u1", Name: "Sam"},
			{ID: "u2", Name: "Taylor"},
		},
	}
	assert.Equal(t, "Taylor", ProjectSummary(conv, student).Title)

	tkt := &store.Thread{ID: "t1", Kind: store.KindTicket, Subject: "Billing problem"}
	assert.Equal(t, "Billing problem", ProjectSummary(tkt, student).Title)

	bare := &store.Thread{ID: "t2", Kind: store.KindTicket}
	assert.Equal(t, "Support ticket", ProjectSummary(bare, student).Title)
}
