// Package presence tracks which participants are currently online,
// derived from join/leave events on the push channel.
package presence
