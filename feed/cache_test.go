package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeClock is a race-safe deterministic time source.
type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

// provider is a scripted data provider that records per-id call counts and
// the maximum number of concurrently outstanding fetches per id.
type provider struct {
	mu          sync.Mutex
	calls       map[string]int
	inflight    map[string]int
	maxInflight map[string]int
	fail        map[string]bool
	delay       time.Duration
}

func newProvider() *provider {
	return &provider{
		calls:       make(map[string]int),
		inflight:    make(map[string]int),
		maxInflight: make(map[string]int),
		fail:        make(map[string]bool),
	}
}

func (p *provider) fetch(ctx context.Context, id string) (string, error) {
	p.mu.Lock()
	p.calls[id]++
	p.inflight[id]++
	if p.inflight[id] > p.maxInflight[id] {
		p.maxInflight[id] = p.inflight[id]
	}
	fail := p.fail[id]
	delay := p.delay
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight[id]--
		p.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", fmt.Errorf("provider: %s unavailable", id)
	}
	return "v:" + id, nil
}

func (p *provider) callCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func (p *provider) requested() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v: %s", d, msg)
}

func seqIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return ids
}

// bufferSnapshot copies the buffer ids under the cache lock.
func bufferSnapshot(c Cache[string, string]) []string {
	impl := c.(*cache[string, string])
	impl.mu.Lock()
	defer impl.mu.Unlock()
	out := make([]string, len(impl.buf))
	copy(out, impl.buf)
	return out
}

// Cold start: LoadInitial resolves the first BufferSize items before
// returning, and the cursor still sits before the first item.
func TestCache_LoadInitial_ColdStart(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       5,
		PrefetchInterval: time.Hour, // keep the periodic tick out of the test
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("i", 10)); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	if got, want := bufferSnapshot(c), []string{"i1", "i2", "i3", "i4", "i5"}; !cmp.Equal(got, want) {
		t.Fatalf("buffer after load: %v", cmp.Diff(want, got))
	}
	s := c.Stats()
	if s.Cursor != -1 {
		t.Fatalf("cursor must stay -1 after load, got %d", s.Cursor)
	}
	if s.Hits != 0 || s.Misses != 0 {
		t.Fatalf("no lookups should be counted during load: %+v", s)
	}
}

// Steady advance: five consecutive Next calls return i1..i5 in order as
// buffer hits, and maintenance refills the buffer to [i6..i10].
func TestCache_Next_SteadyAdvance(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       5,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("i", 10)); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 5; i++ {
		d, err := c.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if want := fmt.Sprintf("v:i%d", i); d.Item != want || !d.Hit {
			t.Fatalf("Next %d: got %q hit=%v, want %q hit", i, d.Item, d.Hit, want)
		}
		if d.Index != i-1 {
			t.Fatalf("Next %d: index %d", i, d.Index)
		}
	}

	s := c.Stats()
	if s.Hits != 5 || s.Misses != 0 {
		t.Fatalf("want 5 hits / 0 misses, got %d/%d", s.Hits, s.Misses)
	}

	waitFor(t, 2*time.Second, func() bool {
		return cmp.Equal(bufferSnapshot(c), []string{"i6", "i7", "i8", "i9", "i10"})
	}, "buffer refill to [i6..i10]")
}

// Provider failure degrades gracefully: the delivery that would return x5
// is a placeholder, misses increments, and no error escapes.
func TestCache_Next_ProviderFailurePlaceholder(t *testing.T) {
	t.Parallel()

	p := newProvider()
	p.fail["x5"] = true
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		Placeholder:      func(id string) string { return "ph:" + id },
		BufferSize:       5,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("x", 10)); err != nil {
		t.Fatal(err)
	}
	// x5 failed during warmup, so the buffer holds only x1..x4.
	if got := bufferSnapshot(c); len(got) != 4 {
		t.Fatalf("warmup buffer: %v", got)
	}

	for i := 1; i <= 4; i++ {
		d, err := c.Next(context.Background())
		if err != nil || d.Placeholder {
			t.Fatalf("Next %d: %v placeholder=%v", i, err, d.Placeholder)
		}
	}

	d, err := c.Next(context.Background())
	if err != nil {
		t.Fatalf("Next over failing id must not error, got %v", err)
	}
	if !d.Placeholder || d.Item != "ph:x5" || d.ID != "x5" {
		t.Fatalf("want placeholder for x5, got %+v", d)
	}
	if s := c.Stats(); s.Misses != 1 || s.Underruns != 1 {
		t.Fatalf("want 1 miss / 1 underrun, got %+v", s)
	}

	// The cursor moved past the dead item; the buffer refills from x6.
	waitFor(t, 2*time.Second, func() bool {
		return c.Stats().BufferSize >= 1
	}, "buffer refill past failing id")
	d, err = c.Next(context.Background())
	if err != nil || d.Item != "v:x6" {
		t.Fatalf("after failure: got %+v err=%v, want v:x6", d, err)
	}
}

// Underrun on a healthy id: the emergency fetch returns the real item.
func TestCache_Next_EmergencyFetch(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       2,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}

	// Force an underrun by draining the buffer from under the cursor.
	impl := c.(*cache[string, string])
	impl.mu.Lock()
	impl.buf = nil
	impl.st.clear()
	impl.mu.Unlock()

	d, err := c.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.Hit || d.Placeholder || d.Item != "v:a" {
		t.Fatalf("emergency fetch: %+v", d)
	}
	if s := c.Stats(); s.Misses != 1 {
		t.Fatalf("want 1 miss, got %+v", s)
	}
}

// Previous walks back through retained history without touching the
// provider, and reports the start boundary.
func TestCache_Previous(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       3,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("i", 6)); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Previous(context.Background()); !errors.Is(err, ErrNoPrevious) {
		t.Fatalf("Previous before any delivery: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// Let background maintenance finish so its fetches cannot be mistaken
	// for backward-navigation fetches below.
	waitFor(t, 2*time.Second, func() bool { return p.requested() == 6 }, "all ids resolved")
	fetched := p.requested()

	d, err := c.Previous(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "i2" || !d.Hit || d.Index != 1 {
		t.Fatalf("Previous: %+v", d)
	}
	if p.requested() != fetched {
		t.Fatal("backward navigation must not fetch")
	}

	// Forward again re-delivers the item we stepped back from, as a hit.
	d, err = c.Next(context.Background())
	if err != nil || d.ID != "i3" || !d.Hit {
		t.Fatalf("Next after Previous: %+v err=%v", d, err)
	}

	// Walk back to the boundary.
	if _, err := c.Previous(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Previous(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Previous(context.Background()); !errors.Is(err, ErrNoPrevious) {
		t.Fatalf("Previous at start: %v", err)
	}
}

// Stats is a pure snapshot, and Reset is idempotent.
func TestCache_StatsIdempotentAndDoubleReset(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("i", 8)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	s1 := c.Stats()
	s2 := c.Stats()
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Fatalf("Stats mutated state:\n%s", diff)
	}
	if s1.HitRate != 1.0 {
		t.Fatalf("hit rate: %v", s1.HitRate)
	}

	c.Reset()
	after1 := c.Stats()
	c.Reset()
	after2 := c.Stats()
	if diff := cmp.Diff(after1, after2); diff != "" {
		t.Fatalf("double reset differs from single:\n%s", diff)
	}
	want := Stats{Cursor: -1}
	if diff := cmp.Diff(want, after1); diff != "" {
		t.Fatalf("reset state:\n%s", diff)
	}

	if _, err := c.Next(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Next after Reset: %v", err)
	}
}

// Misuse and boundary errors.
func TestCache_Preconditions(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		PrefetchInterval: time.Hour,
	})

	if _, err := c.Next(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Next before load: %v", err)
	}
	if _, err := c.Previous(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Previous before load: %v", err)
	}

	if err := c.LoadInitial(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrEndOfFeed) {
		t.Fatalf("Next past end: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err) // Close is idempotent
	}
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Next after close: %v", err)
	}
	if _, err := c.QueueTransition("x", "swipe", 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("QueueTransition after close: %v", err)
	}
}

// Extend grows the sequence past ErrEndOfFeed and gets buffered.
func TestCache_Extend(t *testing.T) {
	t.Parallel()

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       3,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Extend("ignored") // before LoadInitial: no-op

	if err := c.LoadInitial(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrEndOfFeed) {
		t.Fatalf("want end of feed, got %v", err)
	}

	c.Extend("c", "d", "b" /* duplicate, ignored */)
	if got := c.Stats().SequenceLen; got != 4 {
		t.Fatalf("sequence length after extend: %d", got)
	}

	waitFor(t, 2*time.Second, func() bool {
		return c.Stats().BufferSize == 2
	}, "tail items buffered after Extend")

	d, err := c.Next(context.Background())
	if err != nil || d.ID != "c" || !d.Hit {
		t.Fatalf("Next after Extend: %+v err=%v", d, err)
	}
}

// Entries record the injected clock's resolution time.
func TestCache_FetchedAtUsesClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	clk.add(42 * time.Second)

	p := newProvider()
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		PrefetchInterval: time.Hour,
		Clock:            clk,
	})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}

	impl := c.(*cache[string, string])
	impl.mu.Lock()
	e, ok := impl.st.get("a")
	impl.mu.Unlock()
	if !ok || e.fetchedAt != int64(42*time.Second) {
		t.Fatalf("fetchedAt: %+v ok=%v", e, ok)
	}
}

// Reset invalidates in-flight fetches: a slow fetch started before Reset
// must not leak its result into the new session.
func TestCache_ResetDiscardsStaleResults(t *testing.T) {
	t.Parallel()

	p := newProvider()
	p.delay = 50 * time.Millisecond
	c := New[string, string](Options[string, string]{
		Fetcher:          p.fetch,
		BufferSize:       2,
		PrefetchInterval: time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })

	loadDone := make(chan error, 1)
	go func() {
		loadDone <- c.LoadInitial(context.Background(), []string{"a", "b"})
	}()

	// Reset while the warmup fetches are still in flight.
	waitFor(t, time.Second, func() bool { return p.requested() >= 1 }, "warmup started")
	c.Reset()
	<-loadDone

	// Give the stale results time to land; none may be committed.
	time.Sleep(100 * time.Millisecond)
	s := c.Stats()
	if s.CacheSize != 0 || s.BufferSize != 0 {
		t.Fatalf("stale results leaked into new session: %+v", s)
	}
}
