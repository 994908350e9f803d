package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/feedcache/internal/singleflight"
	"github.com/IvanBrykalov/feedcache/policy/window"
)

// counters are the session-scoped monotonic counters behind Stats.
type counters struct {
	hits          uint64
	misses        uint64
	prefetches    uint64
	evictions     uint64
	underruns     uint64
	fetchFailures uint64
}

// cache composes the item store, lookahead buffer, swipe tracker, prefetch
// scheduler, and transition sequencer behind the Cache interface.
//
// mu is the single logical owner of seq, index, cursor, buf, st, swipe, and
// counters (see the package documentation). Background goroutines re-enter
// it and verify the session generation before applying any result.
type cache[K comparable, V any] struct {
	opt Options[K, V]

	mu     sync.Mutex
	seq    []K         // delivery order, append-only within a session
	index  map[K]int   // id -> sequence position
	cursor int         // last delivered position, -1 before first delivery
	buf    []K         // buf[i] corresponds to seq[cursor+1+i], no gaps
	st     *store[K, V]
	swipe  tracker
	cnt    counters
	gen    uint64 // session generation; bumped by Reset/LoadInitial
	loaded bool

	// sf coalesces provider calls per id. Replaced wholesale on Reset so
	// a new session never joins a flight started by the old one.
	sf *singleflight.Group[K, V]

	seqr *sequencer[V]

	closed atomic.Bool
	stop   chan struct{} // stops the prefetch loop
}

// New constructs a cache with the provided Options and starts its prefetch
// loop and transition sequencer. Panics if Fetcher is nil or BufferSize
// exceeds MaxCacheSize; all other zero-valued fields get defaults.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Fetcher == nil {
		panic("feed: Fetcher must be provided")
	}
	if opt.BufferSize <= 0 {
		opt.BufferSize = DefaultBufferSize
	}
	if opt.BaseLookahead <= 0 {
		opt.BaseLookahead = DefaultBaseLookahead
	}
	if opt.MinLookahead <= 0 {
		opt.MinLookahead = DefaultMinLookahead
	}
	if opt.MaxLookahead <= 0 {
		opt.MaxLookahead = DefaultMaxLookahead
	}
	if opt.BackWindow <= 0 {
		opt.BackWindow = DefaultBackWindow
	}
	if opt.MaxCacheSize <= 0 {
		opt.MaxCacheSize = DefaultMaxCacheSize
	}
	if opt.BufferSize > opt.MaxCacheSize {
		panic("feed: BufferSize must not exceed MaxCacheSize")
	}
	if opt.PrefetchInterval <= 0 {
		opt.PrefetchInterval = DefaultPrefetchInterval
	}
	if opt.FetchTimeout <= 0 {
		opt.FetchTimeout = DefaultFetchTimeout
	}
	if opt.FastVelocity <= 0 {
		opt.FastVelocity = DefaultFastVelocity
	}
	if opt.SlowVelocity <= 0 {
		opt.SlowVelocity = DefaultSlowVelocity
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = DiscardLogger{}
	}
	if opt.Retention == nil {
		opt.Retention = window.New[K](opt.BackWindow, opt.MaxCacheSize)
	}

	c := &cache[K, V]{
		opt:    opt,
		cursor: -1,
		st:     newStore[K, V](),
		sf:     &singleflight.Group[K, V]{},
		stop:   make(chan struct{}),
	}
	c.seqr = newSequencer[V](opt.Presenter)
	go c.run()
	return c
}

// ---- Cache[K,V] implementation ----

// LoadInitial starts a new session over ids and synchronously fills the
// lookahead buffer. Duplicate ids keep their first position; later
// occurrences are dropped.
func (c *cache[K, V]) LoadInitial(ctx context.Context, ids []K) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	c.resetLocked()
	c.loaded = true
	c.seq = make([]K, 0, len(ids))
	c.index = make(map[K]int, len(ids))
	for _, id := range ids {
		if _, dup := c.index[id]; dup {
			continue
		}
		c.index[id] = len(c.seq)
		c.seq = append(c.seq, id)
	}
	gen := c.gen
	c.mu.Unlock()

	// The whole initial batch settles (with retries) before we return.
	return c.maintainBuffer(ctx, gen)
}

// Extend appends ids to the sequence tail. Ids already present are ignored.
func (c *cache[K, V]) Extend(ids ...K) {
	if c.closed.Load() || len(ids) == 0 {
		return
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return
	}
	for _, id := range ids {
		if _, dup := c.index[id]; dup {
			continue
		}
		c.index[id] = len(c.seq)
		c.seq = append(c.seq, id)
	}
	gen := c.gen
	c.mu.Unlock()

	// New tail items may fit in the buffer right away.
	go func() { _ = c.maintainBuffer(context.Background(), gen) }()
}

// Next delivers seq[cursor+1] and advances the cursor. The fast path pops
// the buffer front; the slow path runs an emergency fetch. Background
// maintenance and eviction are kicked off without waiting either way.
func (c *cache[K, V]) Next(ctx context.Context) (Delivery[K, V], error) {
	var zero Delivery[K, V]
	if c.closed.Load() {
		return zero, ErrClosed
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return zero, ErrNotLoaded
	}
	if c.cursor+1 >= len(c.seq) {
		c.mu.Unlock()
		return zero, ErrEndOfFeed
	}

	c.swipe.record(c.now(), dirForward)
	gen := c.gen
	id := c.seq[c.cursor+1]

	var (
		item V
		hit  bool
	)
	if len(c.buf) > 0 {
		// buf[0] corresponds to seq[cursor+1] by the contiguity invariant.
		if e, ok := c.st.get(c.buf[0]); ok {
			item, hit = e.item, true
		}
		c.buf = c.buf[1:]
	}
	c.cursor++
	idx := c.cursor

	if hit {
		c.cnt.hits++
		c.opt.Metrics.Hit()
		c.mu.Unlock()
		c.background(gen)
		return Delivery[K, V]{ID: id, Index: idx, Item: item, Hit: true}, nil
	}

	// The scheduler fell behind: emergency synchronous fetch.
	c.cnt.misses++
	c.cnt.underruns++
	c.opt.Metrics.Miss()
	c.mu.Unlock()

	c.opt.Logger.Warn("lookahead buffer underrun", "index", idx)
	c.background(gen)

	item, err := c.ensure(ctx, gen, id, true)
	if err != nil {
		return Delivery[K, V]{ID: id, Index: idx, Item: c.placeholder(id), Placeholder: true}, nil
	}
	return Delivery[K, V]{ID: id, Index: idx, Item: item}, nil
}

// Previous steps the cursor back and delivers seq[cursor]. The item just
// stepped away from is pushed back onto the buffer front when still
// resident, keeping the buffer contiguous with the new cursor; if it was
// already evicted the buffer is dropped instead (it would have a gap).
// Backward navigation never fetches ahead.
func (c *cache[K, V]) Previous(ctx context.Context) (Delivery[K, V], error) {
	var zero Delivery[K, V]
	if c.closed.Load() {
		return zero, ErrClosed
	}

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return zero, ErrNotLoaded
	}
	if c.cursor <= 0 {
		c.mu.Unlock()
		return zero, ErrNoPrevious
	}

	c.swipe.record(c.now(), dirBackward)
	gen := c.gen

	undone := c.seq[c.cursor] // the item the cursor is stepping away from
	c.cursor--
	idx := c.cursor
	id := c.seq[idx]

	if c.st.has(undone) {
		c.buf = append([]K{undone}, c.buf...)
		if len(c.buf) > c.opt.BufferSize {
			c.buf = c.buf[:c.opt.BufferSize]
		}
	} else {
		c.buf = nil
	}

	if e, ok := c.st.get(id); ok {
		c.cnt.hits++
		c.opt.Metrics.Hit()
		item := e.item
		c.mu.Unlock()
		return Delivery[K, V]{ID: id, Index: idx, Item: item, Hit: true}, nil
	}

	c.cnt.misses++
	c.opt.Metrics.Miss()
	c.mu.Unlock()

	item, err := c.ensure(ctx, gen, id, true)
	if err != nil {
		return Delivery[K, V]{ID: id, Index: idx, Item: c.placeholder(id), Placeholder: true}, nil
	}
	return Delivery[K, V]{ID: id, Index: idx, Item: item}, nil
}

// QueueTransition hands a presentation task to the sequencer. The returned
// channel closes when the task completes.
func (c *cache[K, V]) QueueTransition(item V, kind TransitionKind, d time.Duration) (<-chan struct{}, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	done, ok := c.seqr.enqueue(item, kind, d)
	if !ok {
		return nil, ErrClosed
	}
	return done, nil
}

// Reset clears all session state and invalidates in-flight fetches of the
// old session. Idempotent.
func (c *cache[K, V]) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.opt.Metrics.Size(0, 0)
}

// Stats returns a snapshot of the session counters without mutating state.
func (c *cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:          c.cnt.hits,
		Misses:        c.cnt.misses,
		Prefetches:    c.cnt.prefetches,
		Evictions:     c.cnt.evictions,
		Underruns:     c.cnt.underruns,
		FetchFailures: c.cnt.fetchFailures,
		CacheSize:     c.st.len(),
		BufferSize:    len(c.buf),
		Cursor:        c.cursor,
		SequenceLen:   len(c.seq),
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
	}
	return s
}

// Close stops the prefetch loop and the sequencer. Safe to call twice.
func (c *cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stop)
	c.seqr.close()
	return nil
}

// ---- helpers ----

// resetLocked bumps the generation and clears session state. Callers hold mu.
func (c *cache[K, V]) resetLocked() {
	c.gen++
	c.seq = nil
	c.index = nil
	c.cursor = -1
	c.buf = nil
	c.st.clear()
	c.swipe.reset()
	c.cnt = counters{}
	c.loaded = false
	// A fresh group: results of old-session flights are never joined again.
	c.sf = &singleflight.Group[K, V]{}
}

// background kicks off post-advance maintenance without blocking the
// caller: buffer top-up and a retention sweep, both tagged with the
// session generation.
func (c *cache[K, V]) background(gen uint64) {
	go func() { _ = c.maintainBuffer(context.Background(), gen) }()
	go c.evictSweep(gen)
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (c *cache[K, V]) placeholder(id K) V {
	if c.opt.Placeholder != nil {
		return c.opt.Placeholder(id)
	}
	var zero V
	return zero
}
