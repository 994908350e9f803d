package feed

import "github.com/IvanBrykalov/feedcache/policy"

// entry is a resolved item pinned in the session store.
// Entries are immutable once created; they leave the store only through
// eviction or Reset.
type entry[K comparable, V any] struct {
	id        K
	item      V
	index     int   // position in the delivery sequence
	fetchedAt int64 // resolution time, UnixNano
}

// store maps ids to resolved entries for the current session.
// All access happens under the cache lock; the store itself is not
// goroutine-safe.
type store[K comparable, V any] struct {
	m map[K]*entry[K, V]
}

func newStore[K comparable, V any]() *store[K, V] {
	return &store[K, V]{m: make(map[K]*entry[K, V])}
}

func (s *store[K, V]) get(id K) (*entry[K, V], bool) {
	e, ok := s.m[id]
	return e, ok
}

func (s *store[K, V]) has(id K) bool {
	_, ok := s.m[id]
	return ok
}

// put inserts e only if id is absent; a resolved entry is never replaced.
func (s *store[K, V]) put(e *entry[K, V]) {
	if _, ok := s.m[e.id]; ok {
		return
	}
	s.m[e.id] = e
}

func (s *store[K, V]) remove(id K) bool {
	if _, ok := s.m[id]; !ok {
		return false
	}
	delete(s.m, id)
	return true
}

func (s *store[K, V]) len() int { return len(s.m) }

func (s *store[K, V]) clear() {
	s.m = make(map[K]*entry[K, V])
}

// slots returns the resident entries as (id, index) pairs for the
// retention policy.
func (s *store[K, V]) slots() []policy.Slot[K] {
	out := make([]policy.Slot[K], 0, len(s.m))
	for _, e := range s.m {
		out = append(out, policy.Slot[K]{ID: e.id, Index: e.index})
	}
	return out
}
