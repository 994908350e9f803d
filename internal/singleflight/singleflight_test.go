package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// One hundred goroutines call Do on the same key concurrently.
// The function should run at most once (flight coalescing).
func TestGroup_Coalesces(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	var calls int64

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := g.Do(context.Background(), "k", func() (string, error) {
				atomic.AddInt64(&calls, 1)
				time.Sleep(2 * time.Millisecond) // simulate I/O
				return "v", nil
			})
			if err != nil || v != "v" {
				t.Errorf("Do: v=%q err=%v", v, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("fn must run exactly once, got %d", got)
	}
	if g.Len() != 0 {
		t.Fatalf("flights must be cleared, got %d", g.Len())
	}
}

// InFlight is true exactly while the leader's fn runs.
func TestGroup_InFlight(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = g.Do(context.Background(), "k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()

	<-started
	if !g.InFlight("k") {
		t.Fatal("flight must be visible while fn runs")
	}
	if g.InFlight("other") {
		t.Fatal("unrelated key reported in flight")
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for g.InFlight("k") {
		if time.Now().After(deadline) {
			t.Fatal("flight never cleared")
		}
		time.Sleep(time.Millisecond)
	}
}

// A follower's context cancellation unblocks only that follower; the
// leader's result still lands for later callers.
func TestGroup_FollowerCancellation(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	release := make(chan struct{})
	started := make(chan struct{})

	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		v, err := g.Do(context.Background(), "k", func() (string, error) {
			close(started)
			<-release
			return "slow", nil
		})
		if err != nil || v != "slow" {
			t.Errorf("leader: v=%q err=%v", v, err)
		}
	}()

	<-started
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Do(ctx, "k", func() (string, error) { return "", nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled follower: %v", err)
	}

	close(release)
	<-leaderDone
}

// Sequential calls after a failure run fn again (failures are not cached).
func TestGroup_FailureNotCached(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	var calls int

	boom := errors.New("boom")
	if _, err := g.Do(context.Background(), "k", func() (string, error) {
		calls++
		return "", boom
	}); !errors.Is(err, boom) {
		t.Fatalf("first call: %v", err)
	}
	if v, err := g.Do(context.Background(), "k", func() (string, error) {
		calls++
		return "ok", nil
	}); err != nil || v != "ok" {
		t.Fatalf("second call: v=%q err=%v", v, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}
