// ABOUTME: Local SQLite cache for confirmed messages and thread summaries using modernc.org/sqlite
// ABOUTME: Write-through on confirmed merges so reopened threads render before the first fetch

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache persists confirmed messages and thread summaries locally.
// It is advisory: a cache failure degrades to fetch-only, and the merge
// algorithm absorbs anything the cache and a later fetch both supply.
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteCache opens (or creates) the cache database at the given path.
// Parent directories are created if needed.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	logger := slog.Default().With("component", "cache")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("local cache initialized", "path", path)
	return c, nil
}

// createSchema creates the cache tables if they don't exist
func (c *SQLiteCache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			subject       TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT '',
			last_message  TEXT NOT NULL DEFAULT '',
			last_sender   TEXT NOT NULL DEFAULT '',
			last_admin    INTEGER NOT NULL DEFAULT 0,
			last_activity TEXT NOT NULL,

			CHECK (kind IN ('conversation', 'ticket'))
		);

		CREATE INDEX IF NOT EXISTS idx_threads_activity ON threads(last_activity);

		CREATE TABLE IF NOT EXISTS participants (
			thread_id TEXT NOT NULL,
			id        TEXT NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			role      TEXT NOT NULL DEFAULT '',

			PRIMARY KEY (thread_id, id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			sender     TEXT NOT NULL,
			from_admin INTEGER NOT NULL DEFAULT 0,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_created
			ON messages(thread_id, created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveThread upserts a thread summary and its participants
func (c *SQLiteCache) SaveThread(ctx context.Context, t *Thread) error {
	query := `
		INSERT INTO threads (id, kind, subject, status, last_message, last_sender, last_admin, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			subject = excluded.subject,
			status = excluded.status,
			last_message = excluded.last_message,
			last_sender = excluded.last_sender,
			last_admin = excluded.last_admin,
			last_activity = excluded.last_activity
	`

	_, err := c.db.ExecContext(ctx, query,
		t.ID,
		string(t.Kind),
		t.Subject,
		string(t.Status),
		t.LastMessage,
		t.LastSender,
		boolToInt(t.LastFromAdmin),
		t.LastActivity.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting thread: %w", err)
	}

	for _, p := range t.Participants {
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO participants (thread_id, id, name, role)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(thread_id, id) DO UPDATE SET
				name = excluded.name,
				role = excluded.role
		`, t.ID, p.ID, p.Name, p.Role)
		if err != nil {
			return fmt.Errorf("upserting participant: %w", err)
		}
	}

	c.logger.Debug("cached thread", "thread_id", t.ID, "kind", t.Kind)
	return nil
}

// SaveMessage upserts a confirmed message. Pending messages are never
// cached; the provisional key is local-only state.
func (c *SQLiteCache) SaveMessage(ctx context.Context, m *Message) error {
	if !m.Confirmed() {
		return fmt.Errorf("refusing to cache unconfirmed message for thread %s", m.ThreadID)
	}

	query := `
		INSERT INTO messages (id, thread_id, sender, from_admin, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			created_at = excluded.created_at
	`

	_, err := c.db.ExecContext(ctx, query,
		m.ID,
		m.ThreadID,
		m.Sender,
		boolToInt(m.FromAdmin),
		m.Content,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting message: %w", err)
	}

	c.logger.Debug("cached message", "id", m.ID, "thread_id", m.ThreadID)
	return nil
}

// ThreadMessages returns the cached messages for a thread in chronological order
func (c *SQLiteCache) ThreadMessages(ctx context.Context, threadID string) ([]*Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, from_admin, content, created_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var fromAdmin int
		var createdAt string

		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Sender, &fromAdmin, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		m.FromAdmin = fromAdmin != 0
		m.State = StateConfirmed

		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// Threads returns all cached thread summaries, most recent activity first
func (c *SQLiteCache) Threads(ctx context.Context) ([]*Thread, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, kind, subject, status, last_message, last_sender, last_admin, last_activity
		FROM threads
		ORDER BY last_activity DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var t Thread
		var kind, status, lastActivity string
		var lastAdmin int

		if err := rows.Scan(&t.ID, &kind, &t.Subject, &status, &t.LastMessage, &t.LastSender, &lastAdmin, &lastActivity); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}

		t.Kind = ThreadKind(kind)
		t.Status = TicketStatus(status)
		t.LastFromAdmin = lastAdmin != 0
		t.LastActivity, err = time.Parse(time.RFC3339Nano, lastActivity)
		if err != nil {
			return nil, fmt.Errorf("parsing thread last_activity: %w", err)
		}

		threads = append(threads, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread rows: %w", err)
	}

	for _, t := range threads {
		participants, err := c.threadParticipants(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Participants = participants
	}

	return threads, nil
}

// threadParticipants loads the participant set for one thread
func (c *SQLiteCache) threadParticipants(ctx context.Context, threadID string) ([]Participant, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, role FROM participants WHERE thread_id = ?
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Role); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participant rows: %w", err)
	}

	return participants, nil
}

// Close releases the database handle
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
