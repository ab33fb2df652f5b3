// ABOUTME: Boundary decoding of loosely-shaped collaborator payloads into typed domain values
// ABOUTME: Tolerates envelopes nested at arbitrary depth so shape checks never leak into merge logic

package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tutorlane/chatsync/internal/store"
)

// ErrBadPayload is returned when a payload has no recognizable shape
var ErrBadPayload = errors.New("unrecognizable payload")

// maxUnwrapDepth bounds envelope descent; collaborator responses have
// been observed wrapped up to three levels deep.
const maxUnwrapDepth = 5

// wrapperKeys are envelope keys the API and push channel are known to
// wrap payloads under, in probe order.
var wrapperKeys = []string{"data", "result", "payload", "body", "response", "message"}

// Unwrap descends through known envelope keys until it reaches a value
// carrying at least one of the wanted fields, or the depth bound.
func Unwrap(raw []byte, want ...string) gjson.Result {
	return unwrap(gjson.ParseBytes(raw), want, 0)
}

func unwrap(r gjson.Result, want []string, depth int) gjson.Result {
	if depth >= maxUnwrapDepth || !r.IsObject() {
		return r
	}
	for _, key := range want {
		if r.Get(key).Exists() {
			return r
		}
	}
	for _, key := range wrapperKeys {
		child := r.Get(key)
		if child.IsObject() || child.IsArray() {
			return unwrap(child, want, depth+1)
		}
	}
	return r
}

// DecodeMessage parses a single message payload. Field names vary by
// collaborator endpoint; all observed spellings are accepted.
func DecodeMessage(raw []byte) (*store.Message, error) {
	r := Unwrap(raw, "content", "text")

	m := &store.Message{
		ID:        str(r, "id", "_id", "messageId"),
		ThreadID:  str(r, "threadId", "thread_id", "conversationId", "ticketId"),
		Sender:    str(r, "sender", "senderId", "sender_id", "from", "userId"),
		FromAdmin: r.Get("isAdminMessage").Bool() || r.Get("fromAdmin").Bool() || r.Get("isAdmin").Bool(),
		Content:   str(r, "content", "text"),
		CreatedAt: timestamp(r, "createdAt", "created_at", "timestamp", "ts"),
	}

	if att := r.Get("attachment"); att.Exists() && att.Raw != "null" {
		m.Attachment = []byte(att.Raw)
	}

	if m.ID == "" && m.Content == "" {
		return nil, fmt.Errorf("decoding message: %w", ErrBadPayload)
	}

	// A server identifier makes the copy authoritative
	if m.ID != "" {
		m.State = store.StateConfirmed
	} else {
		m.State = store.StatePending
	}

	return m, nil
}

// DecodeEventMessage parses a new-message push frame, which carries the
// thread reference either beside the message or inside it.
func DecodeEventMessage(raw []byte) (string, *store.Message, error) {
	outer := gjson.ParseBytes(raw)
	threadID := str(outer, "threadId", "thread_id", "conversationId", "ticketId")

	m, err := DecodeMessage(raw)
	if err != nil {
		return "", nil, err
	}
	if threadID == "" {
		threadID = m.ThreadID
	}
	if threadID == "" {
		return "", nil, fmt.Errorf("decoding event message: thread reference missing: %w", ErrBadPayload)
	}
	m.ThreadID = threadID
	return threadID, m, nil
}

// DecodeThread parses a thread (conversation or ticket) payload.
// Participants may arrive as objects or as bare identifier strings; bare
// identifiers are kept as ID-only participants for the caller to hydrate.
func DecodeThread(raw []byte) (*store.Thread, error) {
	r := Unwrap(raw, "participants", "members", "subject", "status")

	t := &store.Thread{
		ID:           str(r, "id", "_id", "threadId", "ticketId"),
		Subject:      str(r, "subject", "title"),
		Status:       store.TicketStatus(str(r, "status")),
		LastMessage:  str(r, "lastMessage", "last_message"),
		LastActivity: timestamp(r, "lastActivity", "updatedAt", "updated_at", "createdAt"),
	}
	if t.ID == "" {
		return nil, fmt.Errorf("decoding thread: %w", ErrBadPayload)
	}

	switch str(r, "kind", "type") {
	case string(store.KindTicket), "support":
		t.Kind = store.KindTicket
	case string(store.KindConversation), "direct":
		t.Kind = store.KindConversation
	default:
		// Ticket payloads always carry a status or subject
		if t.Status != "" || t.Subject != "" {
			t.Kind = store.KindTicket
		} else {
			t.Kind = store.KindConversation
		}
	}

	members := r.Get("participants")
	if !members.Exists() {
		members = r.Get("members")
	}
	members.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			t.Participants = append(t.Participants, store.Participant{
				ID:   str(v, "id", "_id", "userId"),
				Name: str(v, "name", "fullName", "username"),
				Role: str(v, "role"),
			})
		} else {
			t.Participants = append(t.Participants, store.Participant{ID: v.String()})
		}
		return true
	})

	return t, nil
}

// DecodeThreads parses a thread-list payload
func DecodeThreads(raw []byte) ([]*store.Thread, error) {
	r := Unwrap(raw, "threads", "tickets", "conversations")

	list := r
	for _, key := range []string{"threads", "tickets", "conversations", "items"} {
		if v := r.Get(key); v.IsArray() {
			list = v
			break
		}
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("decoding thread list: %w", ErrBadPayload)
	}

	var threads []*store.Thread
	var decodeErr error
	list.ForEach(func(_, v gjson.Result) bool {
		t, err := DecodeThread([]byte(v.Raw))
		if err != nil {
			decodeErr = err
			return false
		}
		threads = append(threads, t)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	return threads, nil
}

// DecodeMessagePage parses a paginated fetch response into its messages
// and total-pages metadata.
func DecodeMessagePage(raw []byte) ([]*store.Message, int, error) {
	r := Unwrap(raw, "messages", "items", "totalPages")

	list := r
	for _, key := range []string{"messages", "items"} {
		if v := r.Get(key); v.IsArray() {
			list = v
			break
		}
	}
	if !list.IsArray() {
		return nil, 0, fmt.Errorf("decoding message page: %w", ErrBadPayload)
	}

	var messages []*store.Message
	var decodeErr error
	list.ForEach(func(_, v gjson.Result) bool {
		m, err := DecodeMessage([]byte(v.Raw))
		if err != nil {
			decodeErr = err
			return false
		}
		messages = append(messages, m)
		return true
	})
	if decodeErr != nil {
		return nil, 0, decodeErr
	}

	totalPages := int(num(r, "totalPages", "total_pages", "pages"))
	if totalPages == 0 && len(messages) > 0 {
		totalPages = 1
	}

	return messages, totalPages, nil
}

// DecodeIdentifier extracts a participant identifier from presence frames
func DecodeIdentifier(raw []byte) string {
	r := Unwrap(raw, "id", "userId")
	if id := str(r, "id", "userId", "user_id"); id != "" {
		return id
	}
	// Some frames carry the bare identifier as the payload itself
	if v := gjson.ParseBytes(raw); v.Type == gjson.String || v.Type == gjson.Number {
		return v.String()
	}
	return ""
}

// DecodeTicketStatus extracts the ticket reference and new status from a
// ticket-status-changed frame.
func DecodeTicketStatus(raw []byte) (string, store.TicketStatus, error) {
	r := Unwrap(raw, "ticketId", "status")
	id := str(r, "ticketId", "ticket_id", "id", "threadId")
	status := store.TicketStatus(str(r, "status"))
	if id == "" || !status.Valid() {
		return "", "", fmt.Errorf("decoding ticket status: %w", ErrBadPayload)
	}
	return id, status, nil
}

// str returns the first non-empty string among the given keys
func str(r gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
		// Numeric identifiers are stringified
		if v := r.Get(key); v.Exists() && v.Type == gjson.Number {
			return v.String()
		}
	}
	return ""
}

// num returns the first numeric value among the given keys
func num(r gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() && v.Type == gjson.Number {
			return v.Float()
		}
	}
	return 0
}

// timestamp parses a creation time that may be RFC3339 or epoch millis/seconds
func timestamp(r gjson.Result, keys ...string) time.Time {
	for _, key := range keys {
		v := r.Get(key)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.String:
			if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
				return t
			}
			if t, err := time.Parse(time.RFC3339, v.String()); err == nil {
				return t
			}
		case gjson.Number:
			n := v.Int()
			if n > 1e12 {
				return time.UnixMilli(n)
			}
			if n > 0 {
				return time.Unix(n, 0)
			}
		}
	}
	return time.Time{}
}
