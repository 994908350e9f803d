package feed

import (
	"context"
	"time"
)

// Cache is a session-scoped prefetching cache over an ordered sequence of
// item ids. All methods are safe for concurrent use by multiple goroutines.
//
// Foreground operations (Next, Previous) are O(1) plus, on the miss path,
// one bounded provider fetch. Background maintenance never delays a
// foreground return.
type Cache[K comparable, V any] interface {
	// LoadInitial starts a new session: it establishes the delivery
	// sequence, places the cursor before the first item, and returns once
	// the first Options.BufferSize items have been fetched into the
	// lookahead buffer (or their fetches have failed and been retried).
	// Items that could not be resolved are picked up again by background
	// maintenance. Any prior session state is discarded.
	LoadInitial(ctx context.Context, ids []K) error

	// Extend appends ids to the tail of the current sequence. The sequence
	// grows incrementally as the caller discovers more items; the cache
	// never reorders it. Extend before LoadInitial is a no-op.
	Extend(ids ...K)

	// Next delivers the item after the cursor and advances the cursor.
	// The buffer front is served when resident (hit); otherwise an
	// emergency fetch runs synchronously (miss). On total fetch failure a
	// placeholder delivery is returned instead of an error, so the
	// pipeline never stalls. Returns ErrEndOfFeed when the cursor is at
	// the end of the sequence, and ErrNotLoaded before LoadInitial.
	Next(ctx context.Context) (Delivery[K, V], error)

	// Previous steps the cursor back one position and delivers the item
	// there. Backward navigation never touches the lookahead buffer.
	// Returns ErrNoPrevious when the cursor is at the first item or
	// nothing has been delivered yet.
	Previous(ctx context.Context) (Delivery[K, V], error)

	// QueueTransition appends a presentation task to the transition
	// sequencer. Exactly one task plays at a time, strictly in submission
	// order; the returned channel closes when this task completes.
	QueueTransition(item V, kind TransitionKind, d time.Duration) (<-chan struct{}, error)

	// Reset clears the item store, buffer, cursor, swipe statistics, and
	// counters, and invalidates all in-flight fetches of the old session.
	// Calling Reset twice is equivalent to calling it once.
	Reset()

	// Stats returns a snapshot of the session counters. It never mutates
	// cache state.
	Stats() Stats

	// Close stops the prefetch loop and the transition sequencer. Queued
	// transitions that have not started are resolved without playing.
	Close() error
}

// Delivery is the result of a Next or Previous call.
type Delivery[K comparable, V any] struct {
	// ID and Index identify the delivered position in the sequence.
	ID    K
	Index int

	// Item is the resolved payload, or a placeholder when Placeholder
	// is true.
	Item V

	// Hit reports whether the item was already resident.
	Hit bool

	// Placeholder reports that the provider failed even after a retry and
	// Item is a degraded stand-in. The presentation layer is expected to
	// render a loading/error affordance for it.
	Placeholder bool
}

// Stats is a point-in-time snapshot of session counters. All counters are
// monotonic until Reset.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Prefetches uint64
	Evictions  uint64

	// Underruns counts Next calls that found the buffer empty.
	Underruns uint64
	// FetchFailures counts provider fetches that failed after retries.
	FetchFailures uint64

	// HitRate is Hits/(Hits+Misses), 0 before the first lookup.
	HitRate float64

	CacheSize   int
	BufferSize  int
	Cursor      int
	SequenceLen int
}
