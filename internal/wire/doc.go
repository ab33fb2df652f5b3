// Package wire isolates the unwrapping and validation of dynamic server
// payloads at the transport boundary, producing strongly-typed messages
// and threads for the rest of the engine.
package wire
