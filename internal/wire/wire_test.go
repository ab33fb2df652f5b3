// ABOUTME: Tests for boundary decoding of loosely-shaped collaborator payloads
// ABOUTME: Covers nested envelopes, field spelling variants, and timestamp formats

package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/chatsync/internal/store"
)

func TestDecodeMessage_Flat(t *testing.T) {
	raw := []byte(`{"id":"m1","threadId":"c1","sender":"u2","content":"hello","createdAt":"2026-08-30T10:00:00Z"}`)

	m, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "c1", m.ThreadID)
	assert.Equal(t, "u2", m.Sender)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, store.StateConfirmed, m.State)
	assert.Equal(t, 2026, m.CreatedAt.Year())
}

func TestDecodeMessage_NestedEnvelope(t *testing.T) {
	// Collaborator responses wrap the payload at arbitrary depth
	wrapped := [][]byte{
		[]byte(`{"data":{"id":"m1","content":"hello","sender":"u2"}}`),
		[]byte(`{"result":{"data":{"id":"m1","content":"hello","sender":"u2"}}}`),
		[]byte(`{"data":{"message":{"id":"m1","content":"hello","sender":"u2"}}}`),
	}

	for _, raw := range wrapped {
		m, err := DecodeMessage(raw)
		require.NoError(t, err, "payload: %s", raw)
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "hello", m.Content)
	}
}

func TestDecodeMessage_SpellingVariants(t *testing.T) {
	raw := []byte(`{"_id":"m1","thread_id":"c1","senderId":"u2","text":"hi","timestamp":1767100000000,"isAdminMessage":true}`)

	m, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "c1", m.ThreadID)
	assert.Equal(t, "u2", m.Sender)
	assert.Equal(t, "hi", m.Content)
	assert.True(t, m.FromAdmin)
	assert.Equal(t, time.UnixMilli(1767100000000).Unix(), m.CreatedAt.Unix())
}

func TestDecodeMessage_NoServerIDIsPending(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"content":"draft","sender":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, store.StatePending, m.State)
}

func TestDecodeMessage_Unrecognizable(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"foo":"bar"}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeEventMessage_ThreadBesideMessage(t *testing.T) {
	raw := []byte(`{"threadId":"c9","message":{"id":"m1","content":"yo","sender":"u2"}}`)

	threadID, m, err := DecodeEventMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "c9", threadID)
	assert.Equal(t, "c9", m.ThreadID)
	assert.Equal(t, "m1", m.ID)
}

func TestDecodeEventMessage_MissingThread(t *testing.T) {
	_, _, err := DecodeEventMessage([]byte(`{"message":{"id":"m1","content":"yo"}}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeThread_Ticket(t *testing.T) {
	raw := []byte(`{"data":{"id":"t1","subject":"Refund","status":"open","participants":[{"id":"u1","name":"Sam"},{"id":"a1","name":"Agent","role":"admin"}]}}`)

	th, err := DecodeThread(raw)
	require.NoError(t, err)
	assert.Equal(t, "t1", th.ID)
	assert.Equal(t, store.KindTicket, th.Kind)
	assert.Equal(t, store.StatusOpen, th.Status)
	require.Len(t, th.Participants, 2)
	assert.Equal(t, "admin", th.Participants[1].Role)
}

func TestDecodeThread_BareParticipantIdentifiers(t *testing.T) {
	raw := []byte(`{"id":"c1","participants":["u1","u2"]}`)

	th, err := DecodeThread(raw)
	require.NoError(t, err)
	assert.Equal(t, store.KindConversation, th.Kind)
	require.Len(t, th.Participants, 2)
	assert.Equal(t, "u1", th.Participants[0].ID)
	assert.Empty(t, th.Participants[0].Name)
}

func TestDecodeThreads(t *testing.T) {
	raw := []byte(`{"data":{"threads":[{"id":"c1","participants":["u1","u2"]},{"id":"t1","status":"open"}]}}`)

	threads, err := DecodeThreads(raw)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, store.KindConversation, threads[0].Kind)
	assert.Equal(t, store.KindTicket, threads[1].Kind)
}

func TestDecodeMessagePage(t *testing.T) {
	raw := []byte(`{"data":{"messages":[{"id":"m1","content":"a"},{"id":"m2","content":"b"}],"totalPages":3}}`)

	msgs, totalPages, err := DecodeMessagePage(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 3, totalPages)
}

func TestDecodeMessagePage_BareArray(t *testing.T) {
	raw := []byte(`[{"id":"m1","content":"a"}]`)

	msgs, totalPages, err := DecodeMessagePage(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, totalPages)
}

func TestDecodeIdentifier(t *testing.T) {
	assert.Equal(t, "u7", DecodeIdentifier([]byte(`{"id":"u7"}`)))
	assert.Equal(t, "u8", DecodeIdentifier([]byte(`{"userId":"u8"}`)))
	assert.Equal(t, "u9", DecodeIdentifier([]byte(`"u9"`)))
	assert.Empty(t, DecodeIdentifier([]byte(`{}`)))
}

func TestDecodeTicketStatus(t *testing.T) {
	id, status, err := DecodeTicketStatus([]byte(`{"ticketId":"t1","status":"resolved"}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, store.StatusResolved, status)

	_, _, err = DecodeTicketStatus([]byte(`{"ticketId":"t1","status":"bogus"}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}
