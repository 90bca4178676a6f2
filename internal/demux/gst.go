package demux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// gstPacket wraps a pulled GStreamer sample; StreamIndex distinguishes the
// video and audio appsinks the way a demuxed container would tag packets
// by stream.
type gstPacket struct {
	streamIndex int
	pts         float64
	payload     []byte
}

func (p gstPacket) StreamIndex() int { return p.streamIndex }
func (p gstPacket) PTS() float64     { return p.pts }
func (p gstPacket) Size() int        { return len(p.payload) }
func (p gstPacket) Payload() []byte  { return p.payload }

const (
	gstVideoStreamIndex = 0
	gstAudioStreamIndex = 1
)

// GstDemuxer implements Demuxer over a GStreamer pipeline built from
// uridecodebin feeding a video and an audio appsink, the way
// stream-capture's rtsp.go builds a capture pipeline around appsink pull.
// Unlike stream-capture's push-callback pattern, packets here are pulled
// on demand from Read, matching the demuxer worker's pull loop.
type GstDemuxer struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	videoSink *app.Sink
	audioSink *app.Sink

	videoIdx int
	audioIdx int
	duration float64
	frameRate float64
	seekable  bool

	eofFlag     atomic.Bool
	abortedFlag atomic.Bool
	loaded      bool
}

// NewGstDemuxer returns an unloaded GStreamer-backed demuxer.
func NewGstDemuxer() *GstDemuxer {
	return &GstDemuxer{videoIdx: -1, audioIdx: -1}
}

// Load builds and prerolls a pipeline for url:
//
//	uridecodebin uri=<url> name=dec
//	  dec. ! queue ! videoconvert ! appsink name=vsink
//	  dec. ! queue ! audioconvert ! appsink name=asink
//
// Prerolling to PAUSED is what makes duration/seekable queryable before
// any packet is read, matching the teacher's habit of building the full
// pipeline before flipping to PLAYING.
func (g *GstDemuxer) Load(ctx context.Context, url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	gst.Init(nil)

	desc := fmt.Sprintf(
		`uridecodebin uri="%s" name=dec `+
			`dec. ! queue ! videoconvert ! appsink name=vsink emit-signals=false sync=false `+
			`dec. ! queue ! audioconvert ! appsink name=asink emit-signals=false sync=false`,
		url,
	)

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		slog.Error("demux: failed to build pipeline", "error", err, "url", url)
		return -1
	}

	if elem, err := pipeline.GetElementByName("vsink"); err == nil && elem != nil {
		g.videoSink = app.SinkFromElement(elem)
	}
	if elem, err := pipeline.GetElementByName("asink"); err == nil && elem != nil {
		g.audioSink = app.SinkFromElement(elem)
	}

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		slog.Error("demux: failed to preroll pipeline", "error", err, "url", url)
		return -2
	}

	// Wait for ASYNC_DONE / ERROR on the bus so duration/seekable queries
	// are meaningful, the way MonitorPipelineBus polls with a short
	// timeout for responsive cancellation.
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			pipeline.SetState(gst.StateNull)
			return -3
		default:
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageAsyncDone:
			// Preroll has made the metadata queryable; appsink only hands
			// out samples in PLAYING, so start the flow Read pulls from.
			if err := pipeline.SetState(gst.StatePlaying); err != nil {
				slog.Error("demux: failed to start pipeline", "error", err, "url", url)
				pipeline.SetState(gst.StateNull)
				return -6
			}
			g.finishLoad(pipeline)
			return 0
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("demux: pipeline error while loading", "error", gerr.Error(), "url", url)
			pipeline.SetState(gst.StateNull)
			return -4
		}
	}

	slog.Error("demux: preroll timed out", "url", url)
	pipeline.SetState(gst.StateNull)
	return -5
}

func (g *GstDemuxer) finishLoad(pipeline *gst.Pipeline) {
	g.pipeline = pipeline

	// uridecodebin only links a "dec. ! ..." branch if the source actually
	// contains that stream type; an appsink on an unused branch never
	// negotiates caps and stays idle forever. Report a stream present only
	// once its sink pad has actually negotiated caps at preroll, the way
	// mock.go only reports a stream index when it was truly configured in.
	if g.videoSink != nil && sinkHasNegotiatedCaps(g.videoSink) {
		g.videoIdx = gstVideoStreamIndex
	}
	if g.audioSink != nil && sinkHasNegotiatedCaps(g.audioSink) {
		g.audioIdx = gstAudioStreamIndex
	}

	if dur, ok := pipeline.QueryDuration(gst.FormatTime); ok {
		g.duration = time.Duration(dur).Seconds()
	}

	q := gst.NewSeekingQuery(gst.FormatTime)
	if pipeline.Query(q) {
		seekable, _, _ := q.ParseSeeking()
		g.seekable = seekable
	}

	// A nominal video frame rate isn't exposed by a generic decodebin
	// caps query without walking pad caps, and this demuxer does not walk
	// them: FrameRate() always reports 0 (unknown). Callers relying on
	// FrameRate() for pacing fall back to wall-clock pts pacing, which is
	// always available.
	g.loaded = true
}

// sinkHasNegotiatedCaps reports whether an appsink's sink pad has received
// caps, meaning its "dec. ! ..." branch actually carries a live stream
// rather than sitting unlinked because the source lacks that stream type.
func sinkHasNegotiatedCaps(sink *app.Sink) bool {
	pad := sink.GetStaticPad("sink")
	if pad == nil {
		return false
	}
	return pad.GetCurrentCaps() != nil
}

func (g *GstDemuxer) Strerror(code int) string {
	switch code {
	case -1:
		return "demux: failed to construct pipeline"
	case -2:
		return "demux: failed to preroll pipeline"
	case -3:
		return "demux: load aborted"
	case -4:
		return "demux: pipeline reported an error while loading"
	case -5:
		return "demux: preroll timed out"
	case -6:
		return "demux: failed to start pipeline"
	default:
		return fmt.Sprintf("demux: error %d", code)
	}
}

func (g *GstDemuxer) Unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline != nil {
		g.pipeline.SetState(gst.StateNull)
		g.pipeline = nil
	}
	g.loaded = false
	g.videoIdx, g.audioIdx = -1, -1
}

func (g *GstDemuxer) Abort(soft bool) {
	g.abortedFlag.Store(true)
	g.mu.Lock()
	pipeline := g.pipeline
	g.mu.Unlock()
	if pipeline != nil && !soft {
		pipeline.SetState(gst.StateNull)
	}
}

func (g *GstDemuxer) VideoStream() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.videoIdx
}

func (g *GstDemuxer) AudioStream() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.audioIdx
}

func (g *GstDemuxer) Duration() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.duration
}

func (g *GstDemuxer) FrameRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frameRate
}

func (g *GstDemuxer) Seekable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seekable
}

func (g *GstDemuxer) Seek(pos float64) int {
	g.mu.Lock()
	pipeline := g.pipeline
	g.mu.Unlock()
	if pipeline == nil {
		return -1
	}

	ok := pipeline.SeekSimple(
		gst.FormatTime,
		gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		int64(pos*float64(time.Second)),
	)
	if !ok {
		return -1
	}
	g.eofFlag.Store(false)
	return 0
}

// Read pulls one sample from whichever appsink has one ready, preferring
// video when both are, and returns nil on a transient empty pull (the
// demuxer worker retries after its backpressure sleep).
func (g *GstDemuxer) Read() Packet {
	if g.abortedFlag.Load() {
		return nil
	}

	g.mu.Lock()
	videoSink, audioSink := g.videoSink, g.audioSink
	g.mu.Unlock()

	if videoSink != nil {
		if sample := videoSink.TryPullSample(5 * time.Millisecond); sample != nil {
			return g.samplePacket(sample, gstVideoStreamIndex)
		}
		if videoSink.IsEOS() {
			g.eofFlag.Store(true)
		}
	}
	if audioSink != nil {
		if sample := audioSink.TryPullSample(5 * time.Millisecond); sample != nil {
			return g.samplePacket(sample, gstAudioStreamIndex)
		}
		if audioSink.IsEOS() {
			g.eofFlag.Store(true)
		}
	}
	return nil
}

func (g *GstDemuxer) samplePacket(sample *gst.Sample, streamIndex int) Packet {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}
	defer buffer.Unref()

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()
	payload := make([]byte, len(data))
	copy(payload, data)

	pts := time.Duration(buffer.PresentationTimestamp()).Seconds()

	return gstPacket{streamIndex: streamIndex, pts: pts, payload: payload}
}

func (g *GstDemuxer) EOF() bool {
	return g.eofFlag.Load()
}
