// ABOUTME: Terminal client for the chatsync engine
// ABOUTME: Renders the inbox and live threads with mine/theirs attribution coloring

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/tutorlane/chatsync/internal/api"
	"github.com/tutorlane/chatsync/internal/config"
	"github.com/tutorlane/chatsync/internal/identity"
	"github.com/tutorlane/chatsync/internal/reconcile"
	"github.com/tutorlane/chatsync/internal/socket"
	"github.com/tutorlane/chatsync/internal/store"
	"github.com/tutorlane/chatsync/internal/view"
)

var version = "dev"

// getConfigPath returns the path to the chatsync config file.
// Priority: CHATSYNC_CONFIG env var > XDG_CONFIG_HOME/chatsync/config.yaml > ~/.config/chatsync/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATSYNC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatsync", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatsync <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  inbox                    List conversations and tickets by recency")
		fmt.Println("  open <thread-id>         Open a thread and chat interactively")
		fmt.Println("  ticket <subject...>      Open a new support ticket")
		fmt.Println("  status <ticket-id> <st>  Change a ticket's status")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "inbox":
		err = runInbox(ctx)
	case "open":
		err = runOpen(ctx, os.Args[2:])
	case "ticket":
		err = runTicket(ctx, os.Args[2:])
	case "status":
		err = runStatus(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, identity, and wires the engine
func setup(ctx context.Context, notifier reconcile.Notifier) (*reconcile.Engine, identity.Identity, func(), error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, identity.Identity{}, nil, err
	}

	setupLogging(cfg.Logging)

	token := os.Getenv("CHATSYNC_TOKEN")
	if token == "" {
		return nil, identity.Identity{}, nil, fmt.Errorf("CHATSYNC_TOKEN is not set")
	}

	me, err := identity.FromToken(token)
	if err != nil {
		return nil, identity.Identity{}, nil, err
	}

	apiClient := api.New(cfg.API.BaseURL, token, slog.Default())

	var eng *reconcile.Engine
	sock := socket.New(socket.Options{
		URL:         cfg.Socket.URL,
		Token:       token,
		DialTimeout: cfg.Socket.DialTimeout,
		Logger:      slog.Default(),
		OnError: func(err error) {
			color.New(color.FgYellow).Fprintf(os.Stderr, "! push channel unavailable: %v (fetch-only mode)\n", err)
		},
		OnConnect: func() {
			if eng != nil {
				eng.HandleReconnect()
			}
		},
	})

	var cache reconcile.Cache
	var closeCache func()
	if cfg.Cache.Enabled {
		sqlCache, err := store.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			slog.Warn("cache unavailable, continuing without", "error", err)
		} else {
			cache = sqlCache
			closeCache = func() { sqlCache.Close() }
		}
	}

	eng, err = reconcile.New(reconcile.Options{
		API:           apiClient,
		Transport:     sock,
		Cache:         cache,
		Notifier:      notifier,
		Identity:      me,
		PendingWindow: cfg.Sync.PendingWindow,
		PageSize:      cfg.Sync.PageSize,
	})
	if err != nil {
		if closeCache != nil {
			closeCache()
		}
		return nil, identity.Identity{}, nil, err
	}

	// A failed dial degrades to fetch-only; the engine still starts
	if err := sock.Connect(ctx); err != nil {
		slog.Warn("continuing without push channel", "error", err)
	}

	if err := eng.Start(ctx); err != nil {
		if closeCache != nil {
			closeCache()
		}
		return nil, identity.Identity{}, nil, err
	}

	cleanup := func() {
		sock.Close()
		if closeCache != nil {
			closeCache()
		}
	}
	return eng, me, cleanup, nil
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runInbox(ctx context.Context) error {
	eng, me, cleanup, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	summaries := view.ProjectList(eng.Threads(), me)
	if len(summaries) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	badge := color.New(color.FgRed, color.Bold)

	for _, s := range summaries {
		marker := " "
		if s.Unread {
			marker = badge.Sprint("*")
		}
		line := fmt.Sprintf("%s %s", marker, bold.Sprint(s.Title))
		if s.Kind == store.KindTicket {
			line += dim.Sprintf(" [%s]", s.Status)
		}
		fmt.Println(line)
		preview := s.Preview
		if len(preview) > 70 {
			preview = preview[:70] + "…"
		}
		dim.Printf("    %s  %s  (%s)\n", s.At.Format("Jan 2 15:04"), preview, s.ThreadID)
	}
	return nil
}

// threadPrinter re-renders the active thread on engine notifications
type threadPrinter struct {
	eng      *reconcile.Engine
	me       identity.Identity
	threadID string
	printed  map[string]bool
}

func (p *threadPrinter) ThreadChanged(threadID string) {
	if threadID != p.threadID || p.eng == nil {
		return
	}
	t, ok := p.eng.Thread(threadID)
	if !ok {
		return
	}
	for _, b := range view.ProjectThread(t, p.eng.Messages(threadID), p.me) {
		p.printBubble(b)
	}
}

func (p *threadPrinter) ListChanged() {}

func (p *threadPrinter) SendFailed(threadID, provisionalKey string, err error) {
	if threadID == p.threadID {
		color.New(color.FgRed).Printf("! send failed: %v\n", err)
	}
}

func (p *threadPrinter) printBubble(b view.Bubble) {
	if p.printed[b.ID] {
		return
	}
	p.printed[b.ID] = true

	mine := color.New(color.FgCyan)
	theirs := color.New(color.FgGreen)
	dim := color.New(color.FgHiBlack)

	c := theirs
	if b.Mine {
		c = mine
	}
	suffix := ""
	if b.Pending {
		suffix = dim.Sprint(" (sending…)")
	}
	fmt.Printf("%s %s %s%s\n",
		dim.Sprint(b.At.Format("15:04")),
		c.Sprintf("%s:", b.SenderName),
		b.Content,
		suffix)
}

func runOpen(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chatsync open <thread-id>")
	}
	threadID := args[0]

	printer := &threadPrinter{me: identity.Identity{}, threadID: threadID, printed: make(map[string]bool)}
	eng, me, cleanup, err := setup(ctx, printer)
	if err != nil {
		return err
	}
	defer cleanup()
	printer.eng = eng
	printer.me = me

	msgs, err := eng.Open(ctx, threadID)
	if err != nil {
		// Cached history may still have rendered; the failure is localized
		color.New(color.FgYellow).Fprintf(os.Stderr, "! history fetch failed: %v\n", err)
	}
	defer eng.CloseThread(threadID)

	t, _ := eng.Thread(threadID)
	if t != nil {
		for _, b := range view.ProjectThread(t, msgs, me) {
			printer.printBubble(b)
		}
		if t.Kind == store.KindTicket && t.Status == store.StatusClosed {
			fmt.Println("This ticket is closed.")
			return nil
		}
	}

	fmt.Println("Type a message and press enter. Ctrl-C to leave.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if _, err := eng.Submit(ctx, threadID, line, nil); err != nil {
				color.New(color.FgRed).Printf("! %v\n", err)
			}
		case <-time.After(100 * time.Millisecond):
			// Wake periodically so notifications print promptly
		}
	}
}

func runTicket(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: chatsync ticket <subject...>")
	}
	subject := strings.Join(args, " ")

	eng, _, cleanup, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := eng.OpenTicket(ctx, subject)
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Ticket created: %s\n", t.ID)
	fmt.Printf("Open it with: chatsync open %s\n", t.ID)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: chatsync status <ticket-id> <open|in-progress|resolved|closed>")
	}
	status := store.TicketStatus(args[1])
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", args[1])
	}

	eng, _, cleanup, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.SetTicketStatus(ctx, args[0], status); err != nil {
		return err
	}
	color.New(color.FgGreen).Printf("Ticket %s is now %s\n", args[0], status)
	return nil
}
