// Package zlog adapts a zerolog.Logger to the feed.Logger interface so
// programs that already log through zerolog can receive the cache's
// underrun and prefetch warnings on their normal output.
package zlog

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/feedcache/feed"
)

// Adapter implements feed.Logger on top of a zerolog.Logger.
type Adapter struct {
	l zerolog.Logger
}

// New wraps l. The zero zerolog.Logger writes nowhere; pass a configured
// logger (e.g. zerolog.New(os.Stderr).With().Timestamp().Logger()).
func New(l zerolog.Logger) *Adapter {
	return &Adapter{l: l}
}

func (a *Adapter) Error(msg string, args ...any) { a.l.Error().Fields(fields(args)).Msg(msg) }
func (a *Adapter) Warn(msg string, args ...any)  { a.l.Warn().Fields(fields(args)).Msg(msg) }
func (a *Adapter) Info(msg string, args ...any)  { a.l.Info().Fields(fields(args)).Msg(msg) }

// fields converts slog-style alternating key/value args into a zerolog
// fields map. Non-string keys and a trailing unpaired value are stringified
// rather than dropped.
func fields(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	f := make(map[string]any, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		k, ok := args[i].(string)
		if !ok {
			k = fmt.Sprint(args[i])
		}
		if i+1 < len(args) {
			f[k] = args[i+1]
		} else {
			f[k] = "(missing)"
		}
	}
	return f
}

// Compile-time check: ensure Adapter implements feed.Logger.
var _ feed.Logger = (*Adapter)(nil)
