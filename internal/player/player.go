// Package player implements the playback engine core: the state machine
// and the four long-lived workers (loader, demuxer, video, audio) that
// pull packets through internal/demux, pace them through internal/queue,
// and honor play/pause/stop/seek/set_speed/set_source from any goroutine.
package player

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orioncore/playerengine/internal/demux"
	"github.com/orioncore/playerengine/internal/events"
	"github.com/orioncore/playerengine/internal/gate"
	"github.com/orioncore/playerengine/internal/queue"
)

// DefaultMaxQueueBytes and DefaultBackpressureSleep are the constants
// spec's external interfaces section fixes for the demuxer worker's
// backpressure check.
const (
	DefaultMaxQueueBytes     = 15 * 1024 * 1024
	DefaultBackpressureSleep = 10 * time.Millisecond
)

// Options configures a Core.
type Options struct {
	// DemuxFactory builds a fresh Demuxer for each pipeline generation.
	// Required.
	DemuxFactory func() demux.Demuxer

	Signals Signals

	MaxQueueBytes     int
	BackpressureSleep time.Duration
}

// Core owns every field of the playback pipeline and mediates client
// calls. Distinct mutexes partition concerns per the spec's ordering
// rule: stateMu, positionMu, and speedMu are never held nested with one
// another.
type Core struct {
	demuxFactory func() demux.Demuxer
	signals      Signals

	maxQueueBytes     int
	backpressureSleep time.Duration

	stateMu        sync.Mutex
	url            string
	mediaStatus    MediaStatus
	state          State
	seekable       bool
	duration       float64 // seconds
	videoFrameRate float64
	hasVideoFlag   bool
	hasAudioFlag   bool
	errKind        ErrorKind
	errString      string
	generation     uint64

	positionMu      sync.Mutex
	pendingPosition float64 // seconds; -1 == none

	speedMu sync.Mutex
	speed   float64

	events *events.List
	gate   *gate.Gate

	videoQueue *queue.Queue
	audioQueue *queue.Queue

	demuxMu sync.Mutex
	demuxer demux.Demuxer

	quit atomic.Bool
	wg   sync.WaitGroup

	videoFrames chan Frame
	audioFrames chan Frame

	dispatchCh   chan func()
	dispatchDone chan struct{}
	dispatchWg   sync.WaitGroup

	heartbeatMu sync.Mutex
	heartbeats  map[string]time.Time
}

// New constructs a Core in the Stopped/NoMedia state, gate armed, and
// starts the dispatch loop.
func New(opts Options) *Core {
	if opts.DemuxFactory == nil {
		panic("player: Options.DemuxFactory is required")
	}

	maxBytes := opts.MaxQueueBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxQueueBytes
	}
	sleep := opts.BackpressureSleep
	if sleep <= 0 {
		sleep = DefaultBackpressureSleep
	}

	c := &Core{
		demuxFactory:      opts.DemuxFactory,
		signals:           opts.Signals,
		maxQueueBytes:     maxBytes,
		backpressureSleep: sleep,
		events:            events.New(),
		gate:              gate.New(),
		videoQueue:        queue.New(),
		audioQueue:        queue.New(),
		videoFrames:       make(chan Frame, 4),
		audioFrames:       make(chan Frame, 16),
		dispatchCh:        make(chan func(), 32),
		dispatchDone:      make(chan struct{}),
		speed:             1.0,
		pendingPosition:   -1,
		heartbeats:        make(map[string]time.Time),
	}

	c.gate.Attach(c.videoQueue)
	c.gate.Attach(c.audioQueue)
	c.gate.Set(true) // Stopped: workers idle as soon as they're spawned

	c.startDispatchLoop()
	return c
}

// VideoFrames returns the channel video frames (and the stop/shutdown
// sentinel) are delivered on.
func (c *Core) VideoFrames() <-chan Frame { return c.videoFrames }

// AudioFrames returns the channel audio frames are delivered on.
func (c *Core) AudioFrames() <-chan Frame { return c.audioFrames }

// --- accessors ---

func (c *Core) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Core) MediaStatus() MediaStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.mediaStatus
}

func (c *Core) HasVideo() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.hasVideoFlag
}

func (c *Core) HasAudio() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.hasAudioFlag
}

func (c *Core) IsSeekable() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.seekable
}

// Duration reports the source duration in milliseconds, 0 if unknown.
func (c *Core) Duration() int64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return int64(c.duration * 1000)
}

func (c *Core) Speed() float64 {
	c.speedMu.Lock()
	defer c.speedMu.Unlock()
	return c.speed
}

func (c *Core) VideoFrameRate() float64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.videoFrameRate
}

func (c *Core) Error() ErrorKind {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.errKind
}

func (c *Core) ErrorString() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.errString
}

func (c *Core) Generation() uint64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.generation
}

// VideoQueueBytes and AudioQueueBytes report current queue occupancy, used
// by the health surface to report backpressure without exposing the
// queues themselves.
func (c *Core) VideoQueueBytes() int { return c.videoQueue.Bytes() }
func (c *Core) AudioQueueBytes() int { return c.audioQueue.Bytes() }

// heartbeat records that the named worker completed a loop iteration just
// now. Called from loaderWorker/demuxWorker/videoWorker/audioWorker.
func (c *Core) heartbeat(worker string) {
	c.heartbeatMu.Lock()
	c.heartbeats[worker] = time.Now()
	c.heartbeatMu.Unlock()
}

// Heartbeats returns a snapshot of each worker's last-seen timestamp, for
// a health surface to compare against a watchdog timeout.
func (c *Core) Heartbeats() map[string]time.Time {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	out := make(map[string]time.Time, len(c.heartbeats))
	for k, v := range c.heartbeats {
		out[k] = v
	}
	return out
}

// Position reports current position in milliseconds, following the data
// model's invariant: EndOfMedia reports duration; a seek in flight reports
// its target; otherwise the video (or audio, if no video) stream's last
// emitted pts.
func (c *Core) Position() int64 {
	c.stateMu.Lock()
	status := c.mediaStatus
	duration := c.duration
	hasVideo := c.hasVideoFlag
	c.stateMu.Unlock()

	if status == EndOfMedia {
		return int64(duration * 1000)
	}

	c.positionMu.Lock()
	pending := c.pendingPosition
	c.positionMu.Unlock()
	if pending >= 0 {
		return int64(pending * 1000)
	}

	if hasVideo {
		return int64(c.videoQueue.PTS() * 1000)
	}
	return int64(c.audioQueue.PTS() * 1000)
}

func (c *Core) isSeeking() bool {
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	return c.pendingPosition >= 0
}

// --- signal emission helpers (nil-safe) ---

func (c *Core) emitSourceChanged(url string) {
	if c.signals.SourceChanged != nil {
		c.signals.SourceChanged(url)
	}
}

func (c *Core) emitMediaStatusChanged(s MediaStatus) {
	if c.signals.MediaStatusChanged != nil {
		c.signals.MediaStatusChanged(s)
	}
}

func (c *Core) emitStateChanged(s State) {
	if c.signals.StateChanged != nil {
		c.signals.StateChanged(s)
	}
}

func (c *Core) emitSeekableChanged(v bool) {
	if c.signals.SeekableChanged != nil {
		c.signals.SeekableChanged(v)
	}
}

func (c *Core) emitDurationChanged(sec float64) {
	if c.signals.DurationChanged != nil {
		c.signals.DurationChanged(int64(sec * 1000))
	}
}

func (c *Core) emitVideoFrameRateChanged(fps float64) {
	if c.signals.VideoFrameRateChanged != nil {
		c.signals.VideoFrameRateChanged(fps)
	}
}

func (c *Core) emitErrorOccurred(kind ErrorKind, msg string) {
	if c.signals.ErrorOccurred != nil {
		c.signals.ErrorOccurred(kind, msg)
	}
}

func (c *Core) emitPlayed(ms int64) {
	if c.signals.Played != nil {
		c.signals.Played(ms)
	}
}

func (c *Core) emitPaused(ms int64) {
	if c.signals.Paused != nil {
		c.signals.Paused(ms)
	}
}

func (c *Core) emitStopped(ms int64) {
	if c.signals.Stopped != nil {
		c.signals.Stopped(ms)
	}
}

func (c *Core) emitSeeked(ms int64) {
	if c.signals.Seeked != nil {
		c.signals.Seeked(ms)
	}
}

func (c *Core) emitSpeedChanged(speed float64) {
	if c.signals.SpeedChanged != nil {
		c.signals.SpeedChanged(speed)
	}
}

// setError applies a Resource-class error atomically with InvalidMedia.
// Redundant errors of the same kind are suppressed. Must be called from
// the dispatch loop.
func (c *Core) setError(kind ErrorKind, msg string) {
	c.stateMu.Lock()
	if c.errKind == kind {
		c.stateMu.Unlock()
		return
	}
	c.errKind = kind
	c.errString = msg
	c.mediaStatus = InvalidMedia
	c.stateMu.Unlock()

	slog.Error("player: error", "kind", kind, "message", msg)
	c.emitErrorOccurred(kind, msg)
	c.emitMediaStatusChanged(InvalidMedia)
}

func (c *Core) setMediaStatus(status MediaStatus) {
	c.stateMu.Lock()
	if c.mediaStatus == status {
		c.stateMu.Unlock()
		return
	}
	c.mediaStatus = status
	c.stateMu.Unlock()
	c.emitMediaStatusChanged(status)
}

func (c *Core) nextGeneration() uint64 {
	c.stateMu.Lock()
	c.generation++
	g := c.generation
	c.stateMu.Unlock()
	return g
}

// setState applies a state transition and emits stateChanged, returning
// whether it actually changed anything — the signal used throughout
// Play/Pause/Stop to distinguish a real transition from a no-op repeat.
func (c *Core) setState(s State) bool {
	c.stateMu.Lock()
	if c.state == s {
		c.stateMu.Unlock()
		return false
	}
	c.state = s
	c.stateMu.Unlock()
	c.emitStateChanged(s)
	return true
}

// --- public operations ---

// SetSource tears down the current generation (if any) and, for a
// non-empty url different from the current one, starts a new one.
func (c *Core) SetSource(url string) {
	c.stateMu.Lock()
	same := c.url == url
	c.stateMu.Unlock()
	if same {
		return
	}

	c.terminate()

	c.stateMu.Lock()
	c.url = url
	c.errKind = ErrorNone
	c.errString = ""
	c.stateMu.Unlock()
	c.emitSourceChanged(url)

	if url == "" {
		c.stateMu.Lock()
		c.mediaStatus = NoMedia
		c.duration = 0
		c.stateMu.Unlock()
		return
	}

	c.gate.Set(true)
	c.quit.Store(false)
	gen := c.nextGeneration()

	c.wg.Add(1)
	go c.loaderWorker(gen, url)
}

// Play transitions LoadedMedia/EndOfMedia to Playing and releases the
// gate. Called while still loading, it defers itself to the event list.
func (c *Core) Play() {
	c.stateMu.Lock()
	url := c.url
	status := c.mediaStatus
	c.stateMu.Unlock()
	if url == "" || status == InvalidMedia {
		return
	}

	if status == LoadedMedia || status == EndOfMedia {
		if c.setState(Playing) {
			if status == EndOfMedia {
				c.Seek(0)
			}
			c.events.Push(func(tick bool) bool {
				c.gate.Set(false)
				if !tick && c.MediaStatus() != EndOfMedia {
					return false
				}
				c.emitPlayed(c.Position())
				return true
			})
		}
		c.gate.Set(false)
		return
	}

	c.events.Push(func(tick bool) bool {
		c.Play()
		return true
	})
}

// Pause transitions LoadedMedia/EndOfMedia to Paused, releases the gate
// long enough for one frame to be delivered, then re-arms it once that
// frame ticks the event drain.
func (c *Core) Pause() {
	c.stateMu.Lock()
	url := c.url
	status := c.mediaStatus
	c.stateMu.Unlock()
	if url == "" || status == InvalidMedia {
		return
	}

	if status == LoadedMedia || status == EndOfMedia {
		if status == EndOfMedia {
			c.Seek(0)
		}
		if c.setState(Paused) {
			c.gate.Set(false)
			c.events.Push(func(tick bool) bool {
				if !tick && c.MediaStatus() != EndOfMedia {
					return false
				}
				c.emitPaused(c.Position())
				c.gate.Set(true)
				return true
			})
		} else {
			c.gate.Set(true)
		}
		return
	}

	c.events.Push(func(tick bool) bool {
		c.Pause()
		return true
	})
}

// Stop transitions LoadedMedia/EndOfMedia to Stopped, releases the gate
// long enough to flush a stopped(position) signal and an empty video
// sentinel (when video is present), then re-arms.
func (c *Core) Stop() {
	c.stateMu.Lock()
	status := c.mediaStatus
	c.stateMu.Unlock()
	if status != LoadedMedia && status != EndOfMedia {
		return
	}

	if c.setState(Stopped) {
		c.gate.Set(false)
		c.events.Push(func(tick bool) bool {
			c.emitStopped(c.Position())
			if c.HasVideo() {
				c.videoFrames <- Frame{Empty: true}
			}
			c.gate.Set(true)
			return true
		})
		return
	}
	c.gate.Set(true)
}

// Seek requests a position change. Coalesces with any seek already in
// flight: only the first call in a burst pushes the seeked signal; later
// calls just move the target, so a later seek during the same window
// wins and exactly one seeked signal fires.
func (c *Core) Seek(posMs int64) {
	if posMs < 0 {
		return
	}
	c.stateMu.Lock()
	duration := c.duration
	status := c.mediaStatus
	c.stateMu.Unlock()

	posSec := float64(posMs) / 1000
	if duration > 0 && posSec > duration {
		return
	}

	if status != LoadedMedia && status != EndOfMedia {
		c.events.Push(func(tick bool) bool {
			c.Seek(posMs)
			return true
		})
		return
	}

	c.positionMu.Lock()
	alreadyPending := c.pendingPosition >= 0
	c.pendingPosition = posSec
	c.positionMu.Unlock()

	if status == EndOfMedia {
		c.setMediaStatus(LoadedMedia)
	}

	if !alreadyPending {
		c.events.Push(func(tick bool) bool {
			if !tick || c.isSeeking() {
				return false
			}
			c.emitSeeked(c.Position())
			if s := c.State(); s == Paused || s == Stopped {
				c.gate.Set(true)
			}
			return true
		})
	}

	c.gate.Set(false)
}

// SetSpeed atomically writes the playback speed, ignored if non-positive,
// suppressed if unchanged.
func (c *Core) SetSpeed(r float64) {
	if r <= 0 {
		return
	}
	c.speedMu.Lock()
	if c.speed == r {
		c.speedMu.Unlock()
		return
	}
	c.speed = r
	c.speedMu.Unlock()
	c.emitSpeedChanged(r)
}

// terminate ends the current generation: aborts the demuxer, releases the
// gate and aborts both queues so every waiter unblocks, joins all worker
// goroutines, and resets per-generation state. Safe to call with no
// generation active.
func (c *Core) terminate() {
	c.setState(Stopped)
	c.setMediaStatus(NoMedia)

	c.demuxMu.Lock()
	d := c.demuxer
	c.demuxer = nil
	c.demuxMu.Unlock()
	if d != nil {
		d.Abort(false)
	}

	c.quit.Store(true)
	c.gate.Set(false)

	c.stateMu.Lock()
	c.videoFrameRate = 0
	c.stateMu.Unlock()

	c.videoQueue.Clear()
	c.videoQueue.Abort()
	c.audioQueue.Clear()
	c.audioQueue.Abort()

	c.wg.Wait()

	// A fresh generation must find both queues unaborted; Clear/Abort
	// above only unstick this generation's waiters.
	c.videoQueue.Reset()
	c.audioQueue.Reset()

	c.positionMu.Lock()
	c.pendingPosition = -1
	c.positionMu.Unlock()
}

// Terminate ends the current generation and returns the core to
// Stopped/NoMedia. Exposed for callers (e.g. the demo daemon) that need
// to tear the pipeline down without closing the Core entirely.
func (c *Core) Terminate() {
	c.terminate()
	c.stateMu.Lock()
	c.url = ""
	c.stateMu.Unlock()
}

// Close terminates the current generation and stops the dispatch loop.
// The Core must not be used after Close returns.
func (c *Core) Close() {
	c.terminate()
	c.stopDispatchLoop()
}
