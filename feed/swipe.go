package feed

import "time"

// swipeWindow is the number of inter-advance gaps kept for the velocity
// estimate.
const swipeWindow = 10

type direction int8

const (
	dirForward direction = iota
	dirBackward
)

// tracker keeps a ring of the last swipeWindow inter-advance gaps plus the
// direction of the most recent navigation call. It is pure state, consulted
// only by the prefetch tick, and is guarded by the cache lock.
type tracker struct {
	gaps [swipeWindow]int64 // milliseconds
	n    int                // filled slots
	pos  int                // next write position
	last int64              // previous advance, UnixNano; 0 = none yet
	dir  direction
}

// record notes a navigation event at the given clock time.
func (t *tracker) record(now int64, d direction) {
	t.dir = d
	if t.last != 0 {
		gap := (now - t.last) / int64(time.Millisecond)
		if gap < 1 {
			gap = 1 // sub-millisecond advances still count as motion
		}
		t.gaps[t.pos] = gap
		t.pos = (t.pos + 1) % swipeWindow
		if t.n < swipeWindow {
			t.n++
		}
	}
	t.last = now
}

// velocity returns the smoothed advance rate in events per second:
// 1000 / mean(gaps). With fewer than two recorded events it returns 0,
// which callers treat as neutral.
func (t *tracker) velocity() float64 {
	if t.n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < t.n; i++ {
		sum += t.gaps[i]
	}
	mean := float64(sum) / float64(t.n)
	if mean <= 0 {
		return 0
	}
	return 1000 / mean
}

func (t *tracker) direction() direction { return t.dir }

func (t *tracker) reset() {
	*t = tracker{}
}
