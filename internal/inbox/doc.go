// Package inbox maintains the ordered list of conversations and tickets
// by recency. It has no locking of its own: the reconciliation engine is
// its single writer and serializes all event application.
package inbox
