// ABOUTME: Push-channel transport adapter over a persistent websocket connection
// ABOUTME: Idempotent topic subscription, fire-and-forget emit, degraded mode on failure

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/tutorlane/chatsync/internal/dedupe"
)

// ErrNotConnected is returned by Close when no channel was established
var ErrNotConnected = errors.New("socket not connected")

const (
	// seenTTL bounds how long retransmitted frame keys are remembered
	seenTTL = 2 * time.Minute
	// seenMax caps the seen-cache size
	seenMax = 4096

	// eventNewMessage is the one inbound topic whose frames carry a
	// server identifier and are therefore eligible for dedupe
	eventNewMessage = "new-message"
)

// Handler consumes the data payload of one inbound frame. Handlers are
// invoked sequentially from the read loop: each runs to completion
// before the next frame is dispatched, so they never interleave.
type Handler func(data []byte)

// Options configures a Socket
type Options struct {
	URL         string
	Token       string
	DialTimeout time.Duration
	Logger      *slog.Logger

	// OnError receives connection-level failures. The socket never
	// panics or propagates them; it degrades and reports here.
	OnError func(error)

	// OnConnect runs after each successful dial (including reconnects),
	// before any frame is dispatched.
	OnConnect func()
}

// Socket wraps the persistent bidirectional channel. Connection failure
// is not fatal: the socket marks itself degraded, surfaces the error
// through OnError, and the engine continues in fetch-only mode.
type Socket struct {
	opts   Options
	logger *slog.Logger
	seen   *dedupe.Cache

	mu       sync.RWMutex
	handlers map[string]Handler
	conn     *websocket.Conn
	degraded bool
	closed   bool

	writeMu sync.Mutex
}

// frame is the JSON wire shape of one push-channel message
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New creates a socket; call Connect to establish the channel
func New(opts Options) *Socket {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Socket{
		opts:     opts,
		logger:   logger.With("component", "socket"),
		seen:     dedupe.New(seenTTL, seenMax),
		handlers: make(map[string]Handler),
		degraded: true, // until the first successful dial
	}
}

// Connect dials the push channel. On failure the socket stays degraded
// and the error is both returned and surfaced via OnError; the caller
// must treat it as a signal, never a crash. Connect may be called again
// after a failure or a dropped connection.
func (s *Socket) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.opts.DialTimeout}
	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	conn, _, err := dialer.DialContext(ctx, s.opts.URL, header)
	if err != nil {
		s.setDegraded(fmt.Errorf("dialing push channel: %w", err))
		return fmt.Errorf("dialing push channel: %w", err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.degraded = false
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("push channel connected", "url", s.opts.URL)

	if s.opts.OnConnect != nil {
		s.opts.OnConnect()
	}

	go s.readLoop(conn)
	return nil
}

// Subscribe registers a handler for an event topic. Subscribing a topic
// that already has a handler is a no-op, not an error.
func (s *Socket) Subscribe(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[event]; ok {
		s.logger.Debug("topic already subscribed", "event", event)
		return
	}
	s.handlers[event] = h
}

// Unsubscribe removes the handler for an event topic. Unsubscribing an
// unknown topic is a no-op.
func (s *Socket) Unsubscribe(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Emit sends a frame on the channel, fire-and-forget. No delivery
// acknowledgment exists at this layer; that guarantee is built one
// level up by correlating with the HTTP response. When the channel is
// down the frame is dropped with a debug log.
func (s *Socket) Emit(event string, payload any) {
	s.mu.RLock()
	conn := s.conn
	degraded := s.degraded
	s.mu.RUnlock()

	if conn == nil || degraded {
		s.logger.Debug("emit dropped, channel unavailable", "event", event)
		return
	}

	data, err := json.Marshal(frame{Event: event, Data: mustRaw(payload)})
	if err != nil {
		s.logger.Warn("emit payload not encodable", "event", event, "error", err)
		return
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Debug("emit failed", "event", event, "error", err)
	}
}

// Degraded reports whether the channel is currently unavailable
func (s *Socket) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Close shuts the channel down deliberately; no error is surfaced
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.degraded = true
	if s.conn == nil {
		return ErrNotConnected
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// readLoop pumps inbound frames until the connection drops. Frames are
// dispatched inline so one event is applied fully before the next.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.RLock()
			deliberate := s.closed
			s.mu.RUnlock()
			if !deliberate {
				s.setDegraded(fmt.Errorf("push channel read: %w", err))
			}
			return
		}
		s.dispatch(data)
	}
}

// dispatch decodes one frame and hands it to the topic's handler
func (s *Socket) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Debug("discarding malformed frame", "error", err)
		return
	}
	if f.Event == "" {
		return
	}

	if key := frameKey(f); key != "" && s.seen.Duplicate(key) {
		s.logger.Debug("duplicate frame dropped", "event", f.Event, "key", key)
		return
	}

	s.mu.RLock()
	h := s.handlers[f.Event]
	s.mu.RUnlock()

	if h == nil {
		s.logger.Debug("frame for unsubscribed topic", "event", f.Event)
		return
	}
	h(f.Data)
}

// frameKey derives a dedupe key for message broadcasts, the only frames
// that carry a server-assigned identifier. Presence and coarse signals
// are never deduplicated: a rejoin within the TTL is a new fact, not a
// retransmission.
func frameKey(f frame) string {
	if f.Event != eventNewMessage {
		return ""
	}
	r := gjson.ParseBytes(f.Data)
	for _, path := range []string{"message.id", "message._id"} {
		if v := r.Get(path); v.Exists() && v.String() != "" {
			return f.Event + ":" + v.String()
		}
	}
	return ""
}

// setDegraded flips the socket into degraded mode and reports the cause
func (s *Socket) setDegraded(err error) {
	s.mu.Lock()
	alreadyDegraded := s.degraded
	s.degraded = true
	s.conn = nil
	s.mu.Unlock()

	if !alreadyDegraded {
		s.logger.Warn("push channel degraded", "error", err)
	}
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// mustRaw encodes a payload for embedding in a frame, tolerating nil
func mustRaw(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
