package feed

import "errors"

var (
	// ErrNotLoaded is returned by Next and Previous before LoadInitial has
	// established a sequence. This is the only programmer-misuse error the
	// delivery path can produce.
	ErrNotLoaded = errors.New("feed: LoadInitial has not been called")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("feed: cache is closed")

	// ErrNoPrevious is returned by Previous at the start boundary. It is a
	// boundary signal, not a failure.
	ErrNoPrevious = errors.New("feed: cursor is at the start of the sequence")

	// ErrEndOfFeed is returned by Next when the cursor has reached the end
	// of the sequence. Extend may make further items available later.
	ErrEndOfFeed = errors.New("feed: sequence exhausted")
)

// errStale marks a fetch result that landed after its session ended.
// Stale results are discarded silently; the sentinel never escapes the
// public API.
var errStale = errors.New("feed: stale result after reset")
