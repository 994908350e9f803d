// Package window implements the default sliding-window retention: entries
// stay resident only while their sequence index lies within
// [cursor-back, cursor+ahead]. This bounds memory to a window around the
// cursor regardless of how long the feed grows.
package window

import "github.com/IvanBrykalov/feedcache/policy"

// Retention is a sliding-window retention policy.
type Retention[K comparable] struct {
	back  int
	ahead int
}

// New returns a window retention keeping [cursor-back, cursor+ahead].
// Negative bounds are clamped to zero.
func New[K comparable](back, ahead int) *Retention[K] {
	if back < 0 {
		back = 0
	}
	if ahead < 0 {
		ahead = 0
	}
	return &Retention[K]{back: back, ahead: ahead}
}

// Victims returns the ids of every resident slot whose index falls outside
// [cursor-back, cursor+ahead].
func (r *Retention[K]) Victims(cursor int, resident []policy.Slot[K]) []K {
	lo := cursor - r.back
	hi := cursor + r.ahead

	var out []K
	for _, s := range resident {
		if s.Index < lo || s.Index > hi {
			out = append(out, s.ID)
		}
	}
	return out
}

var _ policy.Retention[string] = (*Retention[string])(nil)
