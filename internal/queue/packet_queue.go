// Package queue implements the bounded packet queue that doubles as a
// pacing clock: one instance per elementary stream, holding packets
// between the demuxer worker (producer) and a video/audio player worker
// (consumer).
package queue

import (
	"sync"
	"time"

	"github.com/orioncore/playerengine/internal/demux"
)

// minPackets is the "enough" floor used when no frame rate hint is known
// yet — roughly the depth ffplay-style players keep before throttling the
// demuxer.
const minPackets = 25

// syncSlack is the cross-stream alignment tolerance: video frames within
// this many seconds of the audio master clock are presented as-is.
const syncSlack = 40 * time.Millisecond

// Queue is a single-producer/single-consumer FIFO of demux.Packet with
// byte accounting, EOF/abort flags, and a pacing helper (Sync). Waiters
// block on a channel that every mutating call replaces (closing the old
// one), the standard broadcast-via-close idiom — this avoids sync.Cond's
// lack of a timed wait.
type Queue struct {
	mu sync.Mutex

	items     []demux.Packet
	byteCount int
	finished  bool
	aborted   bool
	frameRate float64
	lastPTS   float64

	changed chan struct{}

	// pacing reference: wall-clock instant paired with the pts it
	// corresponds to, reset whenever the queue's clock needs to restart
	// (Clear/Reset) so pacing doesn't jump after a seek.
	clockSet  bool
	clockWall time.Time
	clockPTS  float64
}

// New returns an empty, non-aborted, non-finished queue.
func New() *Queue {
	return &Queue{changed: make(chan struct{})}
}

// broadcast wakes every waiter blocked in waitChanged. Must be called with
// q.mu held.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// waitChanged blocks until the next broadcast or timeout elapses,
// whichever comes first. Called with q.mu held; re-acquires it before
// returning. A zero or negative timeout waits indefinitely.
func (q *Queue) waitChanged(timeout time.Duration) {
	ch := q.changed
	q.mu.Unlock()
	defer q.mu.Lock()

	if timeout <= 0 {
		<-ch
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	}
}

// SetFrameRate records the stream's nominal frame rate, which Enough uses
// to size its roughly-one-second threshold. Sync does not read it: it
// paces on packet pts.
func (q *Queue) SetFrameRate(fps float64) {
	q.mu.Lock()
	q.frameRate = fps
	q.mu.Unlock()
}

// Enqueue appends a packet, updates byte accounting, and wakes any
// waiting consumer. A no-op after Abort or once Finish has been called for
// this generation.
func (q *Queue) Enqueue(p demux.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.aborted || q.finished {
		return
	}
	q.items = append(q.items, p)
	q.byteCount += p.Size()
	q.broadcast()
}

// Bytes returns the current aggregate byte size of queued packets.
func (q *Queue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.byteCount
}

// Enough reports whether the queue holds enough content that the demuxer
// should back off: roughly one second of stream when a frame rate is
// known, else a flat packet-count floor.
func (q *Queue) Enough() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	need := minPackets
	if q.frameRate > 0 && int(q.frameRate) > need {
		need = int(q.frameRate)
	}
	return len(q.items) >= need
}

// Dequeue blocks until a packet is available, the queue is aborted, or
// timeout elapses, then removes and returns it (or nil).
func (q *Queue) Dequeue(timeout time.Duration) demux.Packet {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.aborted {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		q.waitChanged(remaining)
	}
	if q.aborted || len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	q.byteCount -= p.Size()
	if len(q.items) == 0 {
		q.broadcast() // wake WaitForEmpty
	}
	return p
}

// Peek returns the front packet without removing it, or nil if empty.
func (q *Queue) Peek() demux.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Pop removes the front packet (the one most recently returned by Sync or
// Peek) and advances the last-emitted pts.
func (q *Queue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	p := q.items[0]
	q.items = q.items[1:]
	q.byteCount -= p.Size()
	q.lastPTS = p.PTS()
	q.broadcast()
}

// Clear drops all queued packets and resets byte accounting and the
// pacing clock. Flags (finished/aborted) are left untouched.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.byteCount = 0
	q.clockSet = false
	q.broadcast()
}

// WaitForEmpty blocks the caller (the demuxer, after issuing a seek) until
// the consumer has drained the queue to empty, or the queue is aborted.
func (q *Queue) WaitForEmpty() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) != 0 && !q.aborted {
		q.waitChanged(0)
	}
}

// Finish marks the queue terminal: no further Enqueue will succeed, and
// consumers should drain what remains and then observe EOF.
func (q *Queue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finished = true
	q.broadcast()
}

// Finished reports whether Finish has been called for this generation.
func (q *Queue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// IsEmpty reports whether the queue currently holds no packets.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Abort unblocks every waiter immediately. Subsequent operations are
// effectively no-ops until Reset starts a new generation.
func (q *Queue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.broadcast()
}

// WakeAll implements gate.Waker: a gate release must unstick any caller
// blocked in Dequeue/WaitForEmpty even though the queue itself did not
// change. (Sync never blocks.)
func (q *Queue) WakeAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.broadcast()
}

// Reset prepares the queue for a fresh generation: clears packets, byte
// count, finished/aborted flags, and the pacing clock.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.byteCount = 0
	q.finished = false
	q.aborted = false
	q.lastPTS = 0
	q.clockSet = false
	q.broadcast()
}

// PTS returns the presentation timestamp, in seconds, of the last packet
// popped from the queue.
func (q *Queue) PTS() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastPTS
}

// Sync returns the front packet if it is ready to present, or nil if the
// caller should wait. Pacing is against wall clock scaled by speed; when
// masterPTS is supplied (audio driving video), the front packet is held
// back while it runs more than syncSlack ahead of the master clock. Sync
// never removes the packet — callers that present it must call Pop.
func (q *Queue) Sync(speed float64, masterPTS ...float64) demux.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.aborted || len(q.items) == 0 {
		return nil
	}
	if speed <= 0 {
		speed = 1
	}
	pkt := q.items[0]

	if len(masterPTS) > 0 {
		drift := pkt.PTS() - masterPTS[0]
		if drift > syncSlack.Seconds() {
			return nil // ahead of the master clock: wait
		}
		return pkt
	}

	if !q.clockSet {
		q.clockWall = time.Now()
		q.clockPTS = pkt.PTS()
		q.clockSet = true
	}

	target := pkt.PTS() - q.clockPTS
	elapsed := time.Since(q.clockWall).Seconds() * speed
	if elapsed+syncSlack.Seconds() < target {
		return nil // not yet time to present
	}
	return pkt
}
