// Command simulate drives a synthetic swipe session against the feed cache
// and exposes optional pprof/Prometheus endpoints. Useful for eyeballing
// hit rates and buffer behavior under different provider latencies,
// failure rates, and swipe cadences.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/feedcache/feed"
	"github.com/IvanBrykalov/feedcache/logging/zlog"
	pmet "github.com/IvanBrykalov/feedcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		items    = flag.Int("items", 500, "sequence length (item count)")
		buffer   = flag.Int("buffer", 5, "lookahead buffer size")
		back     = flag.Int("back", 5, "retention window behind the cursor")
		maxCache = flag.Int("max_cache", 20, "retention window ahead of the cursor")

		cadence    = flag.Duration("cadence", 400*time.Millisecond, "time between swipes")
		jitter     = flag.Duration("jitter", 100*time.Millisecond, "swipe cadence jitter (+/-)")
		backPct    = flag.Int("back_pct", 5, "percentage of swipes that go backward [0..100]")
		transition = flag.Duration("transition", 250*time.Millisecond, "transition playback duration")

		latency = flag.Duration("latency", 120*time.Millisecond, "simulated provider latency")
		failPct = flag.Int("fail", 2, "provider failure percentage [0..100]")

		duration = flag.Duration("duration", 30*time.Second, "simulation duration")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		metricsAddr = flag.String("http", "", "serve Prometheus metrics at addr (e.g. :8080); empty = disabled")
		verbose     = flag.Bool("v", false, "log cache warnings and prefetch ticks")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.ErrorLevel)
	}

	// ---- Metrics endpoint ----
	var metrics feed.Metrics = feed.NoopMetrics{}
	if *metricsAddr != "" {
		metrics = pmet.New(nil, "feedcache", "simulate", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info().Str("addr", *metricsAddr).Msg("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	// ---- Simulated provider ----
	// The fetcher runs on the cache's background goroutines, so the RNG
	// needs a lock.
	rng := rand.New(rand.NewSource(*seed))
	var rngMu sync.Mutex
	intn := func(n int) int {
		rngMu.Lock()
		defer rngMu.Unlock()
		return rng.Intn(n)
	}
	int63n := func(n int64) int64 {
		rngMu.Lock()
		defer rngMu.Unlock()
		return rng.Int63n(n)
	}

	fetcher := func(ctx context.Context, id string) (string, error) {
		select {
		case <-time.After(*latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if intn(100) < *failPct {
			return "", fmt.Errorf("provider: transient failure for %s", id)
		}
		return "payload:" + id, nil
	}

	c := feed.New[string, string](feed.Options[string, string]{
		Fetcher:      fetcher,
		Placeholder:  func(id string) string { return "placeholder:" + id },
		BufferSize:   *buffer,
		BackWindow:   *back,
		MaxCacheSize: *maxCache,
		Metrics:      metrics,
		Logger:       zlog.New(logger),
	})
	defer c.Close()

	ids := make([]string, *items)
	for i := range ids {
		ids[i] = fmt.Sprintf("item-%04d", i)
	}

	ctx := context.Background()
	start := time.Now()
	if err := c.LoadInitial(ctx, ids); err != nil {
		logger.Fatal().Err(err).Msg("load initial")
	}
	fmt.Printf("loaded: %d items, buffer warm in %v\n", *items, time.Since(start).Round(time.Millisecond))

	// ---- Swipe loop ----
	deadline := time.Now().Add(*duration)
	var placeholders int
	for time.Now().Before(deadline) {
		var (
			d   feed.Delivery[string, string]
			err error
		)
		if intn(100) < *backPct {
			d, err = c.Previous(ctx)
			if errors.Is(err, feed.ErrNoPrevious) {
				continue
			}
		} else {
			d, err = c.Next(ctx)
			if errors.Is(err, feed.ErrEndOfFeed) {
				break
			}
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("advance")
		}
		if d.Placeholder {
			placeholders++
		}

		done, err := c.QueueTransition(d.Item, "swipe-left", *transition)
		if err != nil {
			logger.Fatal().Err(err).Msg("queue transition")
		}
		<-done

		pause := *cadence
		if *jitter > 0 {
			pause += time.Duration(int63n(int64(2 * *jitter))) - *jitter
		}
		if pause > 0 {
			time.Sleep(pause)
		}
	}

	// ---- Report ----
	s := c.Stats()
	fmt.Printf("delivered:    %d (cursor %d / %d)\n", s.Hits+s.Misses, s.Cursor, s.SequenceLen)
	fmt.Printf("hit rate:     %.1f%% (%d hits, %d misses, %d underruns)\n",
		100*s.HitRate, s.Hits, s.Misses, s.Underruns)
	fmt.Printf("prefetches:   %d\n", s.Prefetches)
	fmt.Printf("evictions:    %d (store %d entries, buffer %d)\n", s.Evictions, s.CacheSize, s.BufferSize)
	fmt.Printf("degraded:     %d placeholders, %d fetch failures\n", placeholders, s.FetchFailures)
}
