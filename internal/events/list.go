// Package events implements the deferred-action FIFO that lets the player
// core delay client-visible signals until the pipeline has actually caught
// up with a state or position change.
package events

import "sync"

// Fn is a deferred action. tick is true when invoked from a frame boundary
// in a player worker, false when invoked as a load-completion flush. It
// returns true when the event is consumed (and should be removed) or false
// to keep it at the head of the queue for the next call.
type Fn func(tick bool) bool

// List is an ordered, mutex-protected FIFO of deferred events.
type List struct {
	mu  sync.Mutex
	fns []Fn
}

// New returns an empty event list.
func New() *List {
	return &List{}
}

// Push appends a deferred event.
func (l *List) Push(fn Fn) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

// Process drains events strictly FIFO. isSeeking is consulted once, before
// the drain starts; if it reports true, processing is skipped entirely for
// this call so a seek in flight cannot race a played/paused/stopped signal
// past it. An event returning false halts the drain, leaving it and its
// successors in place for the next call.
func (l *List) Process(tick bool, isSeeking func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.fns) == 0 || isSeeking() {
		return
	}

	for len(l.fns) > 0 {
		fn := l.fns[0]
		l.mu.Unlock()
		consumed := fn(tick)
		l.mu.Lock()

		if !consumed {
			return
		}
		l.fns = l.fns[1:]
	}
}

// Len reports the number of pending events. Intended for tests/diagnostics.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
