// Package feed provides a generic, session-scoped prefetching cache that
// delivers items from an ordered discovery sequence one at a time, keeping
// the next few items resident in memory so that advancing never blocks on
// the data provider.
//
// Design
//
//   - Ownership: a single mutex guards the sequence, cursor, lookahead
//     buffer, item store, and swipe statistics. Background work (buffer
//     maintenance, speculative prefetch, eviction) runs on detached
//     goroutines that re-enter the lock, so foreground calls and background
//     work interleave at well-defined points and a Next call is never
//     delayed by the maintenance it triggers.
//
//   - Lookahead buffer: an ordered queue of resolved item ids strictly
//     ahead of the cursor, with no gaps. Buffer[i] always corresponds to
//     Sequence[Cursor+1+i]. After every advance a maintenance pass tops the
//     buffer back up to Options.BufferSize; the whole batch settles before
//     any entry is appended, so contiguity holds even when individual
//     fetches complete out of order.
//
//   - Predictive prefetch: a periodic tick measures swipe velocity from the
//     last ten inter-advance gaps and widens or narrows the speculative
//     lookahead window accordingly. Speculative fetches only run while the
//     user is navigating forward; their failures are logged and dropped.
//
//   - Single flight: concurrent fetches for the same id are coalesced
//     through internal/singleflight, so every id has at most one
//     outstanding provider call regardless of which path (buffer
//     maintenance, speculative prefetch, emergency fetch) asked for it.
//
//   - Retention: eviction is pluggable via the policy package. The default
//     sliding-window retention keeps entries whose sequence index lies in
//     [cursor-BackWindow, cursor+MaxCacheSize], bounding memory to a window
//     around the cursor regardless of feed length.
//
//   - Sessions: Reset (and LoadInitial) bump a generation counter. Results
//     of fetches started under an older generation are discarded when they
//     land, so a new session never observes stale items.
//
//   - Transitions: a FIFO sequencer plays presentation tasks one at a time
//     in submission order. QueueTransition returns a channel that closes
//     when that task completes; the next task starts on the sequencer's own
//     goroutine, never synchronously inside the enqueue call.
//
//   - Metrics: Options.Metrics receives hit/miss/prefetch/evict/size
//     signals. NoopMetrics is the default; a Prometheus adapter lives in
//     metrics/prom. Options.Logger receives warnings for buffer underruns
//     and dropped prefetches; logging/zlog adapts a zerolog.Logger.
//
// Basic usage
//
//	c := feed.New[string, Card](feed.Options[string, Card]{
//	    Fetcher: func(ctx context.Context, id string) (Card, error) {
//	        return api.Card(ctx, id)
//	    },
//	})
//	defer c.Close()
//
//	if err := c.LoadInitial(ctx, ids); err != nil {
//	    return err
//	}
//	for {
//	    d, err := c.Next(ctx)
//	    if errors.Is(err, feed.ErrEndOfFeed) {
//	        break
//	    }
//	    done, _ := c.QueueTransition(d.Item, "swipe-left", 300*time.Millisecond)
//	    <-done
//	}
//
// Thread-safety
//
// All methods on Cache are safe for concurrent use. Foreground operations
// take one short critical section plus, on the miss path, a bounded
// provider fetch; everything else happens in the background.
package feed
