package feed

import (
	"context"
	"strconv"
	"testing"
	"time"
)

// BenchmarkNext_Hit measures the fast path: every advance is served from a
// warm lookahead buffer while maintenance keeps pace in the background.
// The instant fetcher removes provider noise and exposes the cache hot path.
func BenchmarkNext_Hit(b *testing.B) {
	c := New[string, string](Options[string, string]{
		Fetcher: func(_ context.Context, id string) (string, error) {
			return id, nil
		},
		BufferSize:       16,
		MaxCacheSize:     64,
		PrefetchInterval: time.Hour,
	})
	b.Cleanup(func() { _ = c.Close() })

	ids := make([]string, b.N+32)
	for i := range ids {
		ids[i] = "i:" + strconv.Itoa(i)
	}
	if err := c.LoadInitial(context.Background(), ids); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStats measures the snapshot cost callers pay when polling the
// counters for observability.
func BenchmarkStats(b *testing.B) {
	c := New[string, string](Options[string, string]{
		Fetcher: func(_ context.Context, id string) (string, error) {
			return id, nil
		},
		PrefetchInterval: time.Hour,
	})
	b.Cleanup(func() { _ = c.Close() })

	if err := c.LoadInitial(context.Background(), seqIDs("i", 32)); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Stats()
	}
}
