// Package policy defines the pluggable retention contract used by the feed
// cache to bound its item store. The default implementation is the sliding
// window in policy/window; alternative strategies (pinning, larger back
// history, asymmetric windows) can be supplied without changing the cache.
package policy

// Slot describes one resident cache entry: its id and its position in the
// delivery sequence.
type Slot[K comparable] struct {
	ID    K
	Index int
}

// Retention decides which resident entries to drop after the cursor moves.
//
// Victims is called under the cache lock after every successful forward
// advance; implementations must be fast, must not block, and must not
// retain the resident slice past the call.
type Retention[K comparable] interface {
	// Victims returns the ids to evict given the current cursor position
	// and the full set of resident slots.
	Victims(cursor int, resident []Slot[K]) []K
}
