package feed

import (
	"sync"
	"time"
)

// transition is one queued presentation task.
type transition[V any] struct {
	item V
	kind TransitionKind
	d    time.Duration
	done chan struct{} // closed when the task completes
}

// sequencer plays presentation tasks strictly in submission order, exactly
// one at a time. Tasks are handed to a dedicated worker goroutine, so the
// next task never starts synchronously inside an enqueue call and the
// caller always gets a chance to run between transitions.
//
// The queue is unbounded: very fast advancing can queue transitions behind
// real-time playback.
type sequencer[V any] struct {
	presenter Presenter[V]

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*transition[V]
	closed bool
}

func newSequencer[V any](p Presenter[V]) *sequencer[V] {
	s := &sequencer[V]{presenter: p}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// enqueue appends a task and returns its completion channel.
// Returns false if the sequencer is closed.
func (s *sequencer[V]) enqueue(item V, kind TransitionKind, d time.Duration) (<-chan struct{}, bool) {
	t := &transition[V]{item: item, kind: kind, d: d, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	s.cond.Signal()
	return t.done, true
}

// close stops the worker. Queued tasks that have not started are resolved
// without playing, so no waiter is left hanging.
func (s *sequencer[V]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *sequencer[V]) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			rest := s.queue
			s.queue = nil
			s.mu.Unlock()
			for _, t := range rest {
				close(t.done)
			}
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.play(t)
		close(t.done)
	}
}

// play starts the presentation hook and waits for the task to finish:
// on the presenter's completion signal when it returns one, otherwise on
// the task's duration timer.
func (s *sequencer[V]) play(t *transition[V]) {
	var sig <-chan struct{}
	if s.presenter != nil {
		sig = s.presenter.Present(t.item, t.kind, t.d)
	}
	if sig != nil {
		<-sig
		return
	}
	if t.d > 0 {
		timer := time.NewTimer(t.d)
		defer timer.Stop()
		<-timer.C
	}
}
