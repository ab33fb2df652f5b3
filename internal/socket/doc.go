// Package socket implements the push half of the transport adapter: a
// websocket channel with topic subscription, fire-and-forget emit, and
// graceful degradation when the channel is unavailable.
//
// Handlers for inbound frames run sequentially from the read loop with
// no interleaving. That property is what lets the layers above apply
// events without locks of their own; keep it when changing the loop.
package socket
