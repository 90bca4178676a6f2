package demux

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

// mockPacket is a synthetic Packet used by MockDemuxer and by tests.
type mockPacket struct {
	streamIndex int
	pts         float64
	size        int
}

func (p mockPacket) StreamIndex() int  { return p.streamIndex }
func (p mockPacket) PTS() float64      { return p.pts }
func (p mockPacket) Size() int         { return p.size }
func (p mockPacket) Payload() []byte   { return make([]byte, p.size) }

// keyframeSlack models the granularity a real container's seek index
// would round to; MockDemuxer snaps Seek targets down to the nearest
// multiple of this so tests can exercise the "pts >= pos - slack"
// invariant honestly.
const keyframeSlack = 0.04

// MockConfig configures a MockDemuxer.
type MockConfig struct {
	// HasVideo / HasAudio select which streams are exposed. At least one
	// must be true or Load reports "no codecs" the way a real demuxer
	// would for a source with no playable streams.
	HasVideo bool
	HasAudio bool

	VideoFPS       float64 // default 30
	AudioRateHz    float64 // packets/sec, default 50 (~20ms audio frames)
	DurationSec    float64 // default 10
	SeekableFlag   bool
	PacketSize     int // default 4096

	// FailLoadURLPrefix, when non-empty, makes Load fail for any URL
	// with this prefix — used to exercise the invalid-source scenario.
	FailLoadURLPrefix string
	// FailSeek makes every Seek call return an error without moving the
	// read cursor, exercising the "seek failure is logged and cleared,
	// pipeline continues" contract.
	FailSeek bool
}

// MockDemuxer is a deterministic, in-memory Demuxer used by tests and the
// demo binary in place of a real media source.
type MockDemuxer struct {
	cfg MockConfig

	mu       sync.Mutex
	loaded   bool
	aborted  bool
	pos      float64 // seconds, next packet to emit is >= pos
	eof      bool
	videoIdx int
	audioIdx int
}

// NewMockDemuxer returns an unloaded mock demuxer.
func NewMockDemuxer(cfg MockConfig) *MockDemuxer {
	if cfg.VideoFPS == 0 {
		cfg.VideoFPS = 30
	}
	if cfg.AudioRateHz == 0 {
		cfg.AudioRateHz = 50
	}
	if cfg.DurationSec == 0 {
		cfg.DurationSec = 10
	}
	if cfg.PacketSize == 0 {
		cfg.PacketSize = 4096
	}
	return &MockDemuxer{cfg: cfg, videoIdx: -1, audioIdx: -1}
}

func (m *MockDemuxer) Load(_ context.Context, url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.FailLoadURLPrefix != "" && strings.HasPrefix(url, m.cfg.FailLoadURLPrefix) {
		return -1
	}
	if !m.cfg.HasVideo && !m.cfg.HasAudio {
		return -2
	}

	m.loaded = true
	m.aborted = false
	m.pos = 0
	m.eof = false
	if m.cfg.HasVideo {
		m.videoIdx = 0
	} else {
		m.videoIdx = -1
	}
	if m.cfg.HasAudio {
		m.audioIdx = 1
	} else {
		m.audioIdx = -1
	}
	return 0
}

func (m *MockDemuxer) Strerror(code int) string {
	switch code {
	case -1:
		return "mock: source not found"
	case -2:
		return "mock: no codecs found"
	default:
		return fmt.Sprintf("mock: error %d", code)
	}
}

func (m *MockDemuxer) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
}

func (m *MockDemuxer) Abort(soft bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
}

func (m *MockDemuxer) VideoStream() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoIdx
}

func (m *MockDemuxer) AudioStream() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioIdx
}

func (m *MockDemuxer) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.DurationSec
}

func (m *MockDemuxer) FrameRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videoIdx < 0 {
		return 0
	}
	return m.cfg.VideoFPS
}

func (m *MockDemuxer) Seekable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.SeekableFlag
}

func (m *MockDemuxer) Seek(pos float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.FailSeek {
		return -1
	}
	if pos < 0 || pos > m.cfg.DurationSec {
		return -1
	}

	snapped := math.Floor(pos/keyframeSlack) * keyframeSlack
	m.pos = snapped
	m.eof = false
	return 0
}

// Read returns the next packet in ascending pts order, interleaving the
// video and audio streams the way a muxed container would. Once pos
// exceeds the configured duration it reports EOF and returns nil forever.
func (m *MockDemuxer) Read() Packet {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.aborted || !m.loaded {
		return nil
	}
	if m.pos >= m.cfg.DurationSec {
		m.eof = true
		return nil
	}

	videoInterval := math.MaxFloat64
	if m.videoIdx >= 0 {
		videoInterval = 1.0 / m.cfg.VideoFPS
	}
	audioInterval := math.MaxFloat64
	if m.audioIdx >= 0 {
		audioInterval = 1.0 / m.cfg.AudioRateHz
	}

	var pkt mockPacket
	if videoInterval <= audioInterval {
		pkt = mockPacket{streamIndex: m.videoIdx, pts: m.pos, size: m.cfg.PacketSize}
		m.pos += videoInterval
	} else {
		pkt = mockPacket{streamIndex: m.audioIdx, pts: m.pos, size: m.cfg.PacketSize / 4}
		m.pos += audioInterval
	}
	return pkt
}

func (m *MockDemuxer) EOF() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eof
}
