package feed

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/feedcache/internal/singleflight"
)

// run is the prefetch scheduler loop. Buffer top-ups are triggered by every
// advance; this loop adds the periodic speculative pass on top.
func (c *cache[K, V]) run() {
	t := time.NewTicker(c.opt.PrefetchInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.predictiveTick()
		}
	}
}

// predictiveTick runs once per PrefetchInterval: it sizes the speculative
// lookahead from the swipe velocity and issues background fetches for ids
// beyond the buffer that are neither resolved nor already in flight. It
// also publishes the periodic observability snapshot.
func (c *cache[K, V]) predictiveTick() {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	vel := c.swipe.velocity()
	fwd := c.swipe.direction() == dirForward
	look := c.lookaheadFor(vel)

	// Speculation only pays off while the user keeps moving forward.
	var ids []K
	if fwd {
		start := c.cursor + 1 + len(c.buf)
		for i := start; i < start+look && i < len(c.seq); i++ {
			id := c.seq[i]
			if c.st.has(id) || c.sf.InFlight(id) {
				continue
			}
			ids = append(ids, id)
		}
	}

	cacheLen, bufLen := c.st.len(), len(c.buf)
	var hitRatePct float64
	if lookups := c.cnt.hits + c.cnt.misses; lookups > 0 {
		hitRatePct = 100 * float64(c.cnt.hits) / float64(lookups)
	}
	c.mu.Unlock()

	c.opt.Metrics.Size(cacheLen, bufLen)
	c.opt.Logger.Info("prefetch tick",
		"cache_size", cacheLen,
		"buffer_size", bufLen,
		"hit_rate_pct", hitRatePct,
		"velocity", vel,
		"lookahead", look,
	)

	for _, id := range ids {
		go c.prefetchOne(gen, id)
	}
}

// lookaheadFor maps swipe velocity to a speculative lookahead distance:
// widened for fast scanning, narrowed for deliberate viewing, base
// otherwise (including the neutral zero velocity before two advances).
func (c *cache[K, V]) lookaheadFor(velocity float64) int {
	base := c.opt.BaseLookahead
	switch {
	case velocity > c.opt.FastVelocity:
		if w := base * 2; w <= c.opt.MaxLookahead {
			return w
		}
		return c.opt.MaxLookahead
	case velocity > 0 && velocity < c.opt.SlowVelocity:
		if n := int(math.Floor(float64(base) * 0.7)); n >= c.opt.MinLookahead {
			return n
		}
		return c.opt.MinLookahead
	default:
		return base
	}
}

// maintainBuffer tops the lookahead buffer back up to BufferSize. The whole
// deficit batch settles (success or failure, one retry each) before any
// entry is appended, so the buffer stays contiguous even when individual
// fetches finish out of order.
func (c *cache[K, V]) maintainBuffer(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.gen != gen || !c.loaded {
		c.mu.Unlock()
		return nil
	}
	deficit := c.opt.BufferSize - len(c.buf)
	start := c.cursor + 1 + len(c.buf)
	var ids []K
	for i := start; i < len(c.seq) && len(ids) < deficit; i++ {
		ids = append(ids, c.seq[i])
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return ctx.Err()
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			// A failed id stops the contiguous append below and is
			// retried on the next maintenance cycle.
			if _, err := c.ensure(ctx, gen, id, true); err != nil && !errors.Is(err, errStale) && ctx.Err() == nil {
				c.opt.Logger.Warn("buffer fetch failed", "id", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	if c.gen == gen && c.loaded {
		// Append the longest resolved run; recompute the start since the
		// cursor may have advanced while the batch was in flight.
		for i := c.cursor + 1 + len(c.buf); i < len(c.seq) && len(c.buf) < c.opt.BufferSize; i++ {
			id := c.seq[i]
			if !c.st.has(id) {
				break
			}
			c.buf = append(c.buf, id)
		}
	}
	cacheLen, bufLen := c.st.len(), len(c.buf)
	c.mu.Unlock()

	c.opt.Metrics.Size(cacheLen, bufLen)
	return ctx.Err()
}

// prefetchOne speculatively resolves a single id. Failures are logged and
// dropped; the id is picked up again by buffer maintenance once imminent.
func (c *cache[K, V]) prefetchOne(gen uint64, id K) {
	c.mu.Lock()
	if c.gen != gen || c.st.has(id) {
		c.mu.Unlock()
		return
	}
	sf := c.sf
	c.mu.Unlock()

	v, err := c.fetchOnce(context.Background(), sf, id)
	if err != nil {
		c.opt.Logger.Warn("speculative prefetch dropped", "id", id, "err", err)
		return
	}
	if c.commit(gen, id, v) {
		c.mu.Lock()
		c.cnt.prefetches++
		c.mu.Unlock()
		c.opt.Metrics.Prefetch()
	}
}

// ensure resolves id into the store, coalescing with any concurrent fetch
// for the same id and retrying once when retry is set (imminent items).
func (c *cache[K, V]) ensure(ctx context.Context, gen uint64, id K, retry bool) (V, error) {
	var zero V

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return zero, errStale
	}
	if e, ok := c.st.get(id); ok {
		item := e.item
		c.mu.Unlock()
		return item, nil
	}
	sf := c.sf
	c.mu.Unlock()

	v, err := c.fetchOnce(ctx, sf, id)
	if err != nil && retry && ctx.Err() == nil {
		v, err = c.fetchOnce(ctx, sf, id)
	}
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.cnt.fetchFailures++
		}
		c.mu.Unlock()
		return zero, err
	}
	if !c.commit(gen, id, v) {
		return zero, errStale
	}
	return v, nil
}

// fetchOnce performs one provider call for id, bounded by FetchTimeout and
// coalesced per id through the session's singleflight group.
func (c *cache[K, V]) fetchOnce(ctx context.Context, sf *singleflight.Group[K, V], id K) (V, error) {
	fctx, cancel := context.WithTimeout(ctx, c.opt.FetchTimeout)
	defer cancel()
	return sf.Do(fctx, id, func() (V, error) {
		return c.opt.Fetcher(fctx, id)
	})
}

// commit records a resolved item under the session lock. Results from an
// older generation, or for ids no longer in the sequence, are dropped.
func (c *cache[K, V]) commit(gen uint64, id K, item V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	idx, ok := c.index[id]
	if !ok {
		return false
	}
	c.st.put(&entry[K, V]{id: id, item: item, index: idx, fetchedAt: c.now()})
	return true
}

// evictSweep applies the retention policy around the current cursor. It
// runs off the critical path after every successful advance and must never
// delay the value already being returned to the caller.
func (c *cache[K, V]) evictSweep(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.loaded {
		c.mu.Unlock()
		return
	}
	victims := c.opt.Retention.Victims(c.cursor, c.st.slots())
	for _, id := range victims {
		if c.st.remove(id) {
			c.cnt.evictions++
			c.opt.Metrics.Evict()
		}
	}
	cacheLen, bufLen := c.st.len(), len(c.buf)
	c.mu.Unlock()

	if len(victims) > 0 {
		c.opt.Metrics.Size(cacheLen, bufLen)
	}
}
