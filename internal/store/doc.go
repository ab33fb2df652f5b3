// Package store defines the shared domain types for chatsync (threads,
// messages, participants) and provides the local SQLite cache that keeps
// confirmed history available across restarts.
package store
