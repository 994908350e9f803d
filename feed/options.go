package feed

import (
	"context"
	"time"

	"github.com/IvanBrykalov/feedcache/policy"
)

// TransitionKind names a presentation transition ("swipe-left", "fade", …).
// The cache is agnostic to what a kind renders as; it is passed through to
// the Presenter untouched.
type TransitionKind string

// Fetcher resolves an item payload by id. It may be slow or fail; the cache
// bounds every call with Options.FetchTimeout and coalesces concurrent
// calls for the same id.
type Fetcher[K comparable, V any] func(ctx context.Context, id K) (V, error)

// Presenter is the presentation-layer hook invoked by the transition
// sequencer, one task at a time. If Present returns a non-nil channel the
// task completes when that channel closes; a nil channel means the task
// completes after its duration elapses.
type Presenter[V any] interface {
	Present(item V, kind TransitionKind, d time.Duration) <-chan struct{}
}

// Logger matches the leveled logging signature of log/slog.
// DiscardLogger is used when none is configured; logging/zlog provides a
// zerolog-backed adapter.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// DiscardLogger is the default Logger and compiles to a no-op.
type DiscardLogger struct{}

func (DiscardLogger) Error(string, ...any) {}
func (DiscardLogger) Warn(string, ...any)  {}
func (DiscardLogger) Info(string, ...any)  {}

var _ Logger = DiscardLogger{}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultBufferSize       = 5
	DefaultBaseLookahead    = 3
	DefaultMinLookahead     = 2
	DefaultMaxLookahead     = 8
	DefaultBackWindow       = 5
	DefaultMaxCacheSize     = 20
	DefaultPrefetchInterval = time.Second
	DefaultFetchTimeout     = 10 * time.Second
)

// Velocity thresholds (advance events per second) at which the speculative
// lookahead widens or narrows.
const (
	DefaultFastVelocity = 1.0
	DefaultSlowVelocity = 0.3
)

// Options configures the cache. Zero values are safe; defaults are applied
// in New():
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => DiscardLogger
//   - nil Retention => window.New(BackWindow, MaxCacheSize)
//   - numeric/duration fields <= 0 => the Default* constants above
//
// Fetcher is the only required field.
type Options[K comparable, V any] struct {
	// Fetcher resolves items from the data provider. Required.
	Fetcher Fetcher[K, V]

	// Placeholder synthesizes a degraded stand-in item when a fetch fails
	// even after a retry. Nil means the zero value of V.
	Placeholder func(id K) V

	// Presenter receives transition tasks from the sequencer. Nil means
	// tasks complete purely on their duration timer.
	Presenter Presenter[V]

	// BufferSize is the number of ready-to-deliver items kept directly
	// ahead of the cursor. Must not exceed MaxCacheSize.
	BufferSize int

	// BaseLookahead is the speculative prefetch distance beyond the
	// buffer at neutral velocity. MinLookahead and MaxLookahead clamp the
	// narrowed (slow viewing) and widened (fast scanning) distances.
	BaseLookahead int
	MinLookahead  int
	MaxLookahead  int

	// BackWindow and MaxCacheSize bound retention around the cursor:
	// entries outside [cursor-BackWindow, cursor+MaxCacheSize] are
	// evicted after every advance.
	BackWindow   int
	MaxCacheSize int

	// PrefetchInterval is the period of the speculative prefetch tick.
	PrefetchInterval time.Duration

	// FetchTimeout bounds every provider call, imminent or speculative.
	FetchTimeout time.Duration

	// FastVelocity and SlowVelocity are the advance-rate thresholds
	// (events/second) for widening and narrowing the lookahead.
	FastVelocity float64
	SlowVelocity float64

	// Retention decides which resident entries to drop as the cursor
	// moves. Nil => sliding window from policy/window.
	Retention policy.Retention[K]

	// Observability.
	Metrics Metrics
	Logger  Logger

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}
