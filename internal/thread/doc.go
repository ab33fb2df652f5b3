// Package thread implements the per-thread ordered message log and its
// merge algorithm.
//
// # Merge guarantees
//
// The log receives messages from three concurrent sources: the paginated
// history fetch, the submit response, and the push broadcast. Merge
// guarantees, regardless of arrival order:
//
//   - exactly-once visible delivery: a confirmed server ID appears once
//   - stable ordering: ascending by timestamp, ties keep arrival order
//   - optimistic sends collapse with their server echo instead of
//     producing a second bubble
//
// Every input is either absorbed or appended; merge never rejects a
// message, so the log cannot get stuck on a malformed or repeated event.
package thread
