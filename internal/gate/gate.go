// Package gate implements the suspension latch that holds worker
// goroutines idle while the pipeline is not playing.
package gate

import "sync"

// Waker is notified when the gate releases, so blocked consumers other
// than direct gate waiters (packet queues) can unstick promptly.
type Waker interface {
	WakeAll()
}

// Gate is a binary latch: armed suspends callers of WaitIfSet, Set(false)
// releases them all at once. It is safe for concurrent use.
type Gate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	armed bool

	wakers []Waker
}

// New returns a released (not armed) gate.
func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Attach registers a Waker to be woken whenever the gate releases. Used to
// unstick packet queue callers blocked in Dequeue/WaitForEmpty.
func (g *Gate) Attach(w Waker) {
	g.mu.Lock()
	g.wakers = append(g.wakers, w)
	g.mu.Unlock()
}

// WaitIfSet blocks the caller while the gate is armed.
func (g *Gate) WaitIfSet() {
	g.mu.Lock()
	for g.armed {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Armed reports whether the gate currently suspends callers.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Set arms or releases the gate. Releasing broadcasts to every waiter and
// every attached Waker.
func (g *Gate) Set(armed bool) {
	g.mu.Lock()
	g.armed = armed
	wakers := g.wakers
	g.mu.Unlock()

	if !armed {
		g.cond.Broadcast()
		for _, w := range wakers {
			w.WakeAll()
		}
	}
}
