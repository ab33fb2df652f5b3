// ABOUTME: HTTP client for the marketplace API collaborator (threads, messages, tickets)
// ABOUTME: Request failures stay localized to one operation; payloads are decoded via wire

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tutorlane/chatsync/internal/store"
	"github.com/tutorlane/chatsync/internal/wire"
)

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api request failed: status %d", e.Code)
}

// Client talks JSON-over-HTTP to the marketplace API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the given base URL, authenticating every
// request with the session token. Pass nil logger for default.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "api"),
	}
}

// MessagePage is one page of a thread's history plus paging metadata
type MessagePage struct {
	Messages   []*store.Message
	Page       int
	TotalPages int
}

// ListThreads fetches the thread summaries visible to the local user
func (c *Client) ListThreads(ctx context.Context) ([]*store.Thread, error) {
	body, err := c.do(ctx, http.MethodGet, "/threads", nil)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}

	threads, err := wire.DecodeThreads(body)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	return threads, nil
}

// CreateConversation creates or returns the direct conversation with the
// given participant. Participants returned as bare identifiers are
// hydrated via the user-lookup endpoint.
func (c *Client) CreateConversation(ctx context.Context, participantID string) (*store.Thread, error) {
	body, err := c.do(ctx, http.MethodPost, "/threads", map[string]any{
		"participantId": participantID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	t, err := wire.DecodeThread(body)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	t.Kind = store.KindConversation

	if err := c.hydrateParticipants(ctx, t); err != nil {
		// Hydration is best-effort; a bare participant renders as Unknown
		c.logger.Warn("participant hydration failed", "thread_id", t.ID, "error", err)
	}

	return t, nil
}

// CreateTicket opens a new support ticket
func (c *Client) CreateTicket(ctx context.Context, subject string) (*store.Thread, error) {
	body, err := c.do(ctx, http.MethodPost, "/tickets", map[string]any{
		"subject": subject,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	t, err := wire.DecodeThread(body)
	if err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}
	t.Kind = store.KindTicket
	if t.Status == "" {
		t.Status = store.StatusOpen
	}
	return t, nil
}

// FetchMessages retrieves one page of a thread's history, sorted
// ascending by creation time.
func (c *Client) FetchMessages(ctx context.Context, threadID string, page, pageSize int) (*MessagePage, error) {
	path := fmt.Sprintf("/threads/%s/messages?page=%d&pageSize=%d&sort=asc",
		url.PathEscape(threadID), page, pageSize)

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching messages for thread %s: %w", threadID, err)
	}

	messages, totalPages, err := wire.DecodeMessagePage(body)
	if err != nil {
		return nil, fmt.Errorf("fetching messages for thread %s: %w", threadID, err)
	}
	for _, m := range messages {
		if m.ThreadID == "" {
			m.ThreadID = threadID
		}
	}

	return &MessagePage{Messages: messages, Page: page, TotalPages: totalPages}, nil
}

// SubmitMessage sends a message and returns the created message with its
// authoritative identifier and timestamp.
func (c *Client) SubmitMessage(ctx context.Context, threadID, content string, attachment []byte) (*store.Message, error) {
	payload := map[string]any{"content": content}
	if len(attachment) > 0 {
		payload["attachment"] = json.RawMessage(attachment)
	}

	body, err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", payload)
	if err != nil {
		return nil, fmt.Errorf("submitting message to thread %s: %w", threadID, err)
	}

	m, err := wire.DecodeMessage(body)
	if err != nil {
		return nil, fmt.Errorf("submitting message to thread %s: %w", threadID, err)
	}
	if m.ThreadID == "" {
		m.ThreadID = threadID
	}
	return m, nil
}

// SetTicketStatus mutates a ticket's status and returns the confirmed value
func (c *Client) SetTicketStatus(ctx context.Context, ticketID string, status store.TicketStatus) (store.TicketStatus, error) {
	if !status.Valid() {
		return "", fmt.Errorf("invalid ticket status %q", status)
	}

	body, err := c.do(ctx, http.MethodPatch, "/tickets/"+url.PathEscape(ticketID)+"/status", map[string]any{
		"status": string(status),
	})
	if err != nil {
		return "", fmt.Errorf("updating ticket %s status: %w", ticketID, err)
	}

	r := wire.Unwrap(body, "status")
	confirmed := store.TicketStatus(r.Get("status").String())
	if !confirmed.Valid() {
		confirmed = status
	}
	return confirmed, nil
}

// GetUser looks up a participant by identifier
func (c *Client) GetUser(ctx context.Context, id string) (*store.Participant, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("looking up user %s: %w", id, err)
	}

	r := wire.Unwrap(body, "name", "role")
	p := &store.Participant{ID: id}
	if v := r.Get("name"); v.Exists() {
		p.Name = v.String()
	}
	if v := r.Get("role"); v.Exists() {
		p.Role = v.String()
	}
	return p, nil
}

// hydrateParticipants fills in names for participants that arrived as
// bare identifiers.
func (c *Client) hydrateParticipants(ctx context.Context, t *store.Thread) error {
	for i, p := range t.Participants {
		if p.Name != "" {
			continue
		}
		full, err := c.GetUser(ctx, p.ID)
		if err != nil {
			return err
		}
		t.Participants[i] = *full
	}
	return nil
}

// do executes one request and returns the raw response body
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}
