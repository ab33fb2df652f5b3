// ABOUTME: Reconciliation engine orchestrating optimistic sends, fetches, and broadcasts
// ABOUTME: Serializes all event application so the merge algorithm sees one event at a time

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorlane/chatsync/internal/api"
	"github.com/tutorlane/chatsync/internal/identity"
	"github.com/tutorlane/chatsync/internal/inbox"
	"github.com/tutorlane/chatsync/internal/presence"
	"github.com/tutorlane/chatsync/internal/socket"
	"github.com/tutorlane/chatsync/internal/store"
	"github.com/tutorlane/chatsync/internal/thread"
	"github.com/tutorlane/chatsync/internal/wire"
)

// Push-channel topics consumed and rooms joined by the engine
const (
	topicNewMessage    = "new-message"
	topicUserOnline    = "user-online"
	topicUserOffline   = "user-offline"
	topicTicketStatus  = "ticket-status-changed"
	topicTicketUpdated = "ticket-updated"
	commandJoin        = "join"
	commandLeave       = "leave"
)

// ticketRefreshThrottle spaces out refetches triggered by the coarse
// ticket-updated signal.
const ticketRefreshThrottle = 2 * time.Second

// API defines what the engine needs from the request/response transport
type API interface {
	ListThreads(ctx context.Context) ([]*store.Thread, error)
	FetchMessages(ctx context.Context, threadID string, page, pageSize int) (*api.MessagePage, error)
	SubmitMessage(ctx context.Context, threadID, content string, attachment []byte) (*store.Message, error)
	SetTicketStatus(ctx context.Context, ticketID string, status store.TicketStatus) (store.TicketStatus, error)
	CreateConversation(ctx context.Context, participantID string) (*store.Thread, error)
	CreateTicket(ctx context.Context, subject string) (*store.Thread, error)
}

// Transport defines what the engine needs from the push channel
type Transport interface {
	Subscribe(event string, h socket.Handler)
	Unsubscribe(event string)
	Emit(event string, payload any)
	Degraded() bool
}

// Cache defines the optional local persistence the engine writes through
type Cache interface {
	SaveThread(ctx context.Context, t *store.Thread) error
	SaveMessage(ctx context.Context, m *store.Message) error
	ThreadMessages(ctx context.Context, threadID string) ([]*store.Message, error)
	Threads(ctx context.Context) ([]*store.Thread, error)
}

// Notifier receives view-facing signals. ThreadChanged fires only for
// the active thread: events merged into a closed thread are applied
// lazily without visual side effects.
type Notifier interface {
	ThreadChanged(threadID string)
	ListChanged()
	SendFailed(threadID, provisionalKey string, err error)
}

// Options configures an Engine
type Options struct {
	API       API
	Transport Transport
	Cache     Cache // optional
	Notifier  Notifier
	Identity  identity.Identity
	Presence  *presence.Tracker

	// PendingWindow bounds the optimistic-send content match; zero uses
	// the thread package default.
	PendingWindow time.Duration
	PageSize      int
	Logger        *slog.Logger
}

// Engine correlates the three event sources — paginated fetches,
// optimistic sends, and push broadcasts — into per-thread logs with
// exactly-once visible delivery.
//
// One mutex serializes all event application: each handler runs to
// completion before the next event is applied, so ordering races
// between the sources are resolved by the merge algorithm alone, never
// by sequencing assumptions.
type Engine struct {
	api      API
	sock     Transport
	cache    Cache
	notify   Notifier
	me       identity.Identity
	presence *presence.Tracker
	window   time.Duration
	pageSize int
	logger   *slog.Logger

	mu     sync.Mutex
	logs   map[string]*thread.Log
	pages  map[string]int // total pages per thread, from fetch metadata
	inbox  *inbox.List
	active string

	lastTicketRefresh time.Time
}

// New creates an engine. API and Transport are required.
func New(opts Options) (*Engine, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconcile")

	tracker := opts.Presence
	if tracker == nil {
		tracker = presence.New(logger)
	}

	notify := opts.Notifier
	if notify == nil {
		notify = noopNotifier{}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Engine{
		api:      opts.API,
		sock:     opts.Transport,
		cache:    opts.Cache,
		notify:   notify,
		me:       opts.Identity,
		presence: tracker,
		window:   opts.PendingWindow,
		pageSize: pageSize,
		logger:   logger,
		logs:     make(map[string]*thread.Log),
		pages:    make(map[string]int),
		inbox:    inbox.New(logger),
	}, nil
}

// Start subscribes the push topics and bootstraps the inbox from the
// local cache and then the API. A failing list fetch degrades to cached
// data; it does not prevent startup.
func (e *Engine) Start(ctx context.Context) error {
	e.sock.Subscribe(topicNewMessage, e.handleNewMessage)
	e.sock.Subscribe(topicUserOnline, e.handleUserOnline)
	e.sock.Subscribe(topicUserOffline, e.handleUserOffline)
	e.sock.Subscribe(topicTicketStatus, e.handleTicketStatus)
	e.sock.Subscribe(topicTicketUpdated, e.handleTicketUpdated)

	if e.cache != nil {
		cached, err := e.cache.Threads(ctx)
		if err != nil {
			e.logger.Warn("cache bootstrap failed", "error", err)
		} else {
			e.mu.Lock()
			for _, t := range cached {
				e.inbox.Upsert(t)
			}
			e.mu.Unlock()
		}
	}

	if err := e.RefreshThreads(ctx); err != nil {
		e.logger.Warn("thread list fetch failed, using cached inbox", "error", err)
	}

	e.notify.ListChanged()
	return nil
}

// HandleReconnect is invoked when the push channel reconnects. Presence
// is cleared and rebuilt from subsequent events (the staleness window
// between disconnect and rebuild is accepted), and the thread list is
// refetched to cover anything missed while offline.
func (e *Engine) HandleReconnect() {
	e.presence.Reset()
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != "" {
		e.sock.Emit(commandJoin, map[string]string{"room": active})
	}
	go func() {
		if err := e.RefreshThreads(context.Background()); err != nil {
			e.logger.Warn("post-reconnect refresh failed", "error", err)
		}
	}()
}

// RefreshThreads refetches the thread list and patches the inbox
func (e *Engine) RefreshThreads(ctx context.Context) error {
	threads, err := e.api.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("refreshing thread list: %w", err)
	}

	e.mu.Lock()
	for _, t := range threads {
		e.inbox.Upsert(t)
	}
	e.mu.Unlock()

	if e.cache != nil {
		for _, t := range threads {
			e.saveThread(t)
		}
	}

	e.notify.ListChanged()
	return nil
}

// Open activates a thread: joins its room, seeds its log from the local
// cache, fetches page 1 of history, and returns the merged log. A fetch
// failure returns whatever the cache held alongside the error.
func (e *Engine) Open(ctx context.Context, threadID string) ([]*store.Message, error) {
	e.mu.Lock()
	if !e.inbox.Contains(threadID) {
		// First open of a thread the list fetch has not seen yet
		e.inbox.Upsert(&store.Thread{ID: threadID, Kind: store.KindConversation})
	}
	log := e.ensureLogLocked(threadID)
	e.active = threadID
	e.mu.Unlock()

	e.sock.Emit(commandJoin, map[string]string{"room": threadID})

	if e.cache != nil {
		cached, err := e.cache.ThreadMessages(ctx, threadID)
		if err != nil {
			e.logger.Warn("cache read failed", "thread_id", threadID, "error", err)
		} else {
			e.mu.Lock()
			for _, m := range cached {
				log.Merge(m)
			}
			e.mu.Unlock()
		}
	}

	page, err := e.api.FetchMessages(ctx, threadID, 1, e.pageSize)
	if err != nil {
		e.mu.Lock()
		snapshot := log.Messages()
		e.mu.Unlock()
		return snapshot, fmt.Errorf("opening thread %s: %w", threadID, err)
	}

	e.mergePage(threadID, page)

	e.mu.Lock()
	snapshot := log.Messages()
	e.mu.Unlock()
	return snapshot, nil
}

// FetchPage backfills one more page of history into an open thread
func (e *Engine) FetchPage(ctx context.Context, threadID string, pageNum int) error {
	page, err := e.api.FetchMessages(ctx, threadID, pageNum, e.pageSize)
	if err != nil {
		return fmt.Errorf("fetching page %d of thread %s: %w", pageNum, threadID, err)
	}
	e.mergePage(threadID, page)
	return nil
}

// TotalPages returns the last-seen page count for a thread
func (e *Engine) TotalPages(threadID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages[threadID]
}

// CloseThread leaves the thread's room and clears the active view.
// In-flight submits are not cancelled: their responses still merge into
// the stored log, so reopening shows them.
func (e *Engine) CloseThread(threadID string) {
	e.sock.Emit(commandLeave, map[string]string{"room": threadID})
	e.mu.Lock()
	if e.active == threadID {
		e.active = ""
	}
	e.mu.Unlock()
}

// Submit sends a message optimistically. A pending entry appears in the
// log immediately; the network request runs in the background, and the
// first authoritative copy to arrive — response or broadcast — confirms
// it. On rejection the pending entry is removed and the notifier told
// once; resubmission is an explicit new Submit.
func (e *Engine) Submit(ctx context.Context, threadID, content string, attachment []byte) (string, error) {
	if content == "" && len(attachment) == 0 {
		return "", fmt.Errorf("message is empty")
	}

	pending := &store.Message{
		ProvisionalKey: uuid.New().String(),
		ThreadID:       threadID,
		Sender:         e.me.UserID,
		FromAdmin:      e.me.Admin(),
		Content:        content,
		Attachment:     attachment,
		CreatedAt:      time.Now(),
		State:          store.StatePending,
	}

	e.mu.Lock()
	log := e.ensureLogLocked(threadID)
	log.Merge(pending)
	e.inbox.ApplyMessage(threadID, pending)
	active := e.active == threadID
	e.mu.Unlock()

	if active {
		e.notify.ThreadChanged(threadID)
	}
	e.notify.ListChanged()

	// The submit outlives the caller's context: closing the thread or
	// view must not cancel an in-flight send.
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		confirmed, err := e.api.SubmitMessage(sendCtx, threadID, content, attachment)
		if err != nil {
			e.failSubmit(threadID, pending.ProvisionalKey, err)
			return
		}
		e.applyMessage(threadID, confirmed)
	}()

	return pending.ProvisionalKey, nil
}

// SetTicketStatus mutates a ticket's status through the API and applies
// the confirmed value. The echo broadcast is absorbed as a duplicate.
func (e *Engine) SetTicketStatus(ctx context.Context, ticketID string, status store.TicketStatus) error {
	confirmed, err := e.api.SetTicketStatus(ctx, ticketID, status)
	if err != nil {
		return err
	}
	e.applyTicketStatus(ticketID, confirmed)
	return nil
}

// StartConversation creates (or retrieves) the direct conversation with
// a participant and registers it in the inbox.
func (e *Engine) StartConversation(ctx context.Context, participantID string) (*store.Thread, error) {
	t, err := e.api.CreateConversation(ctx, participantID)
	if err != nil {
		return nil, err
	}
	e.registerThread(t)
	return t, nil
}

// OpenTicket creates a new support ticket and registers it in the inbox
func (e *Engine) OpenTicket(ctx context.Context, subject string) (*store.Thread, error) {
	t, err := e.api.CreateTicket(ctx, subject)
	if err != nil {
		return nil, err
	}
	e.registerThread(t)
	return t, nil
}

// Messages returns a snapshot of a thread's log in display order
func (e *Engine) Messages(threadID string) []*store.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	log, ok := e.logs[threadID]
	if !ok {
		return nil
	}
	return log.Messages()
}

// Threads returns a snapshot of the inbox in display order
func (e *Engine) Threads() []*store.Thread {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inbox.Snapshot()
}

// Thread returns a copy of one thread's summary
func (e *Engine) Thread(threadID string) (*store.Thread, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inbox.Get(threadID)
}

// IsOnline reports a participant's presence
func (e *Engine) IsOnline(id string) bool {
	return e.presence.IsOnline(id)
}

// ActiveThread returns the thread currently bound to the view
func (e *Engine) ActiveThread() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// handleNewMessage routes an inbound broadcast to its thread's log.
// Events for threads that are not open are still applied, so reopening
// shows them; they just skip the active-view notification.
func (e *Engine) handleNewMessage(data []byte) {
	threadID, m, err := wire.DecodeEventMessage(data)
	if err != nil {
		e.logger.Debug("discarding undecodable message event", "error", err)
		return
	}
	e.applyMessage(threadID, m)
}

func (e *Engine) handleUserOnline(data []byte) {
	if id := wire.DecodeIdentifier(data); id != "" {
		e.presence.Join(id)
	}
}

func (e *Engine) handleUserOffline(data []byte) {
	if id := wire.DecodeIdentifier(data); id != "" {
		e.presence.Leave(id)
	}
}

func (e *Engine) handleTicketStatus(data []byte) {
	ticketID, status, err := wire.DecodeTicketStatus(data)
	if err != nil {
		e.logger.Debug("discarding undecodable status event", "error", err)
		return
	}
	e.applyTicketStatus(ticketID, status)
}

// handleTicketUpdated reacts to the coarse "something changed" signal
// by refetching the ticket list, throttled.
func (e *Engine) handleTicketUpdated(data []byte) {
	e.mu.Lock()
	if time.Since(e.lastTicketRefresh) < ticketRefreshThrottle {
		e.mu.Unlock()
		return
	}
	e.lastTicketRefresh = time.Now()
	e.mu.Unlock()

	go func() {
		if err := e.RefreshThreads(context.Background()); err != nil {
			e.logger.Warn("ticket refresh failed", "error", err)
		}
	}()
}

// applyMessage merges one authoritative or broadcast message
func (e *Engine) applyMessage(threadID string, m *store.Message) {
	e.mu.Lock()
	if !e.inbox.Contains(threadID) {
		// Broadcast for a thread the list fetch has not seen yet;
		// materialize a stub and let the next refresh fill it in
		e.inbox.Upsert(&store.Thread{ID: threadID, Kind: store.KindConversation})
		go e.handleTicketUpdated(nil)
	}
	log := e.ensureLogLocked(threadID)

	outcome := log.Merge(m)
	if outcome == thread.MergeDuplicate {
		e.mu.Unlock()
		return
	}

	e.inbox.ApplyMessage(threadID, m)
	active := e.active == threadID
	t, _ := e.inbox.Get(threadID)
	e.mu.Unlock()

	if m.Confirmed() {
		e.saveMessage(m)
	}
	if t != nil {
		e.saveThread(t)
	}

	e.notify.ListChanged()
	if active {
		e.notify.ThreadChanged(threadID)
	}
}

// applyTicketStatus patches a ticket's status in place
func (e *Engine) applyTicketStatus(ticketID string, status store.TicketStatus) {
	e.mu.Lock()
	changed := e.inbox.SetStatus(ticketID, status)
	active := e.active == ticketID
	t, _ := e.inbox.Get(ticketID)
	e.mu.Unlock()

	if !changed {
		return
	}
	if t != nil {
		e.saveThread(t)
	}

	e.notify.ListChanged()
	if active {
		e.notify.ThreadChanged(ticketID)
	}
}

// failSubmit rolls back a rejected optimistic send
func (e *Engine) failSubmit(threadID, provisionalKey string, cause error) {
	e.mu.Lock()
	log, ok := e.logs[threadID]
	if !ok {
		e.mu.Unlock()
		return
	}
	removed := log.Fail(provisionalKey)
	if removed != nil {
		e.inbox.RecomputeSummary(threadID, log.Last())
	}
	active := e.active == threadID
	e.mu.Unlock()

	if removed == nil {
		return
	}

	e.logger.Warn("send rejected", "thread_id", threadID, "error", cause)
	e.notify.SendFailed(threadID, provisionalKey, cause)
	e.notify.ListChanged()
	if active {
		e.notify.ThreadChanged(threadID)
	}
}

// mergePage applies one fetched history page
func (e *Engine) mergePage(threadID string, page *api.MessagePage) {
	e.mu.Lock()
	log := e.ensureLogLocked(threadID)
	for _, m := range page.Messages {
		log.Merge(m)
	}
	e.pages[threadID] = page.TotalPages
	if last := log.Last(); last != nil {
		e.inbox.ApplyMessage(threadID, last)
	}
	active := e.active == threadID
	e.mu.Unlock()

	if e.cache != nil {
		for _, m := range page.Messages {
			if m.Confirmed() {
				e.saveMessage(m)
			}
		}
	}

	e.notify.ListChanged()
	if active {
		e.notify.ThreadChanged(threadID)
	}
}

// registerThread adds a freshly created thread to the inbox and cache
func (e *Engine) registerThread(t *store.Thread) {
	e.mu.Lock()
	e.inbox.Upsert(t)
	e.mu.Unlock()
	e.saveThread(t)
	e.notify.ListChanged()
}

// ensureLogLocked returns the thread's log, creating it with the
// attribution predicate for the thread's kind. Must hold mu.
func (e *Engine) ensureLogLocked(threadID string) *thread.Log {
	if log, ok := e.logs[threadID]; ok {
		return log
	}

	kind := store.KindConversation
	if t, ok := e.inbox.Get(threadID); ok {
		kind = t.Kind
	}

	// Conversations attribute by sender identifier; tickets by the
	// admin role tag. The predicates are deliberately not unified.
	var isMine func(*store.Message) bool
	if kind == store.KindTicket {
		admin := e.me.Admin()
		isMine = func(m *store.Message) bool { return m.FromAdmin == admin }
	} else {
		me := e.me.UserID
		isMine = func(m *store.Message) bool { return m.Sender == me }
	}

	log := thread.NewLog(threadID, e.window, isMine)
	e.logs[threadID] = log
	return log
}

// saveMessage writes through to the cache with a detached timeout
// context; cache failures are logged, never surfaced.
func (e *Engine) saveMessage(m *store.Message) {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.SaveMessage(ctx, m); err != nil {
		e.logger.Error("failed to cache message", "error", err, "message_id", m.ID)
	}
}

// saveThread writes a thread summary through to the cache
func (e *Engine) saveThread(t *store.Thread) {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.SaveThread(ctx, t); err != nil {
		e.logger.Error("failed to cache thread", "error", err, "thread_id", t.ID)
	}
}

// noopNotifier is used when the caller supplies no notifier
type noopNotifier struct{}

func (noopNotifier) ThreadChanged(string)             {}
func (noopNotifier) ListChanged()                     {}
func (noopNotifier) SendFailed(string, string, error) {}
