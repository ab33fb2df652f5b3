// Package dedupe provides a time-bounded seen-cache used to drop
// duplicate push-channel frames before they reach the merge algorithm.
package dedupe
