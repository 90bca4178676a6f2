package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/orioncore/playerengine/internal/demux"
)

// syncPollInterval is how long a video/audio worker sleeps after Sync
// reports "not yet" before retrying; it is not a spec constant, just a
// busy-loop guard.
const syncPollInterval = 2 * time.Millisecond

// loaderWorker runs once per generation: opens the source, publishes
// stream metadata to the client thread via dispatch, then spawns the
// demuxer and (if present) video/audio workers.
func (c *Core) loaderWorker(gen uint64, url string) {
	defer c.wg.Done()

	c.heartbeat("loader")
	if c.quit.Load() {
		return
	}

	d := c.demuxFactory()
	c.demuxMu.Lock()
	c.demuxer = d
	c.demuxMu.Unlock()

	code := d.Load(context.Background(), url)
	if code < 0 {
		msg := d.Strerror(code)
		slog.Error("player: load failed", "generation", gen, "url", url, "code", code, "message", msg)
		c.dispatch(func() { c.setError(ErrorResource, msg) })
		return
	}

	videoIdx := d.VideoStream()
	audioIdx := d.AudioStream()
	if videoIdx < 0 && audioIdx < 0 {
		slog.Error("player: no codecs found", "generation", gen, "url", url)
		c.dispatch(func() { c.setError(ErrorResource, "no codecs found") })
		return
	}

	duration := d.Duration()
	seekable := d.Seekable()
	frameRate := d.FrameRate()

	c.dispatch(func() {
		c.stateMu.Lock()
		c.hasVideoFlag = videoIdx >= 0
		c.hasAudioFlag = audioIdx >= 0
		c.seekable = seekable
		c.duration = duration
		c.videoFrameRate = frameRate
		c.mediaStatus = LoadedMedia
		c.stateMu.Unlock()

		c.emitSeekableChanged(seekable)
		c.emitDurationChanged(duration)
		c.emitVideoFrameRateChanged(frameRate)
		c.emitMediaStatusChanged(LoadedMedia)

		c.events.Process(true, c.isSeeking)
	})

	if videoIdx >= 0 {
		c.videoQueue.SetFrameRate(frameRate)
		c.wg.Add(1)
		go c.videoWorker(gen, videoIdx)
	}
	if audioIdx >= 0 {
		c.wg.Add(1)
		go c.audioWorker(gen, audioIdx)
	}

	c.wg.Add(1)
	go c.demuxWorker(gen, d, videoIdx, audioIdx)
}

// demuxWorker reads packets in container order, applies backpressure,
// services pending seeks, and routes packets to the matching stream
// queue. It detects EOF once both present queues have drained.
func (c *Core) demuxWorker(gen uint64, d demux.Demuxer, videoIdx, audioIdx int) {
	defer c.wg.Done()

	videoQ, audioQ := c.videoQueue, c.audioQueue

	for {
		c.heartbeat("demux")
		c.gate.WaitIfSet()
		if c.quit.Load() {
			return
		}

		videoBytes, audioBytes := 0, 0
		enoughAll := true
		if videoIdx >= 0 {
			videoBytes = videoQ.Bytes()
			if !videoQ.Enough() {
				enoughAll = false
			}
		}
		if audioIdx >= 0 {
			audioBytes = audioQ.Bytes()
			if !audioQ.Enough() {
				enoughAll = false
			}
		}
		if videoBytes+audioBytes > c.maxQueueBytes || enoughAll {
			time.Sleep(c.backpressureSleep)
			continue
		}

		c.positionMu.Lock()
		pending := c.pendingPosition
		c.positionMu.Unlock()

		if pending >= 0 {
			if code := d.Seek(pending); code >= 0 {
				videoQ.Clear()
				audioQ.Clear()
				videoQ.WaitForEmpty()
				audioQ.WaitForEmpty()
			} else {
				slog.Warn("player: seek failed", "generation", gen, "position", pending, "code", code)
			}

			c.positionMu.Lock()
			if c.pendingPosition == pending {
				c.pendingPosition = -1
			}
			c.positionMu.Unlock()
		}

		pkt := d.Read()
		if pkt == nil {
			drained := (videoIdx < 0 || videoQ.IsEmpty()) && (audioIdx < 0 || audioQ.IsEmpty())
			finished := (videoIdx < 0 || videoQ.Finished()) && (audioIdx < 0 || audioQ.Finished())
			if d.EOF() && drained && !finished {
				if videoIdx >= 0 {
					videoQ.Finish()
				}
				if audioIdx >= 0 {
					audioQ.Finish()
				}
				c.dispatch(func() {
					c.setMediaStatus(EndOfMedia)
					c.Stop()
				})
			}
			time.Sleep(c.backpressureSleep)
			continue
		}

		switch pkt.StreamIndex() {
		case videoIdx:
			videoQ.Enqueue(pkt)
		case audioIdx:
			audioQ.Enqueue(pkt)
		}
	}
}

// videoWorker paces the video queue against the audio queue's pts (when
// audio is present) or wall clock, emits frames, and drains events at
// each frame boundary. On exit it flushes a sentinel frame and clears the
// queue for the next generation.
func (c *Core) videoWorker(gen uint64, videoIdx int) {
	defer c.wg.Done()

	for {
		c.heartbeat("video")
		c.gate.WaitIfSet()
		if c.quit.Load() {
			break
		}

		c.speedMu.Lock()
		speed := c.speed
		c.speedMu.Unlock()

		var pkt demux.Packet
		if c.HasAudio() {
			pkt = c.videoQueue.Sync(speed, c.audioQueue.PTS())
		} else {
			pkt = c.videoQueue.Sync(speed)
		}

		if pkt != nil {
			c.videoFrames <- Frame{PTS: pkt.PTS(), Payload: pkt.Payload()}
			c.videoQueue.Pop()
		}

		c.events.Process(pkt != nil, c.isSeeking)

		if pkt == nil {
			time.Sleep(syncPollInterval)
		}
	}

	c.videoFrames <- Frame{Empty: true}
	c.videoQueue.Clear()
}

// audioWorker paces the audio queue against wall clock scaled by speed,
// scaling each emitted frame's sample rate the same way. When no video
// stream exists, it also owns event draining.
func (c *Core) audioWorker(gen uint64, audioIdx int) {
	defer c.wg.Done()

	for {
		c.heartbeat("audio")
		c.gate.WaitIfSet()
		if c.quit.Load() {
			break
		}

		c.speedMu.Lock()
		speed := c.speed
		c.speedMu.Unlock()

		pkt := c.audioQueue.Sync(speed)
		if pkt != nil {
			c.audioFrames <- Frame{PTS: pkt.PTS(), Payload: pkt.Payload(), SampleRateScale: speed}
			c.audioQueue.Pop()
		}

		if !c.HasVideo() {
			c.events.Process(pkt != nil, c.isSeeking)
		}

		if pkt == nil {
			time.Sleep(syncPollInterval)
		}
	}

	c.audioQueue.Clear()
}
