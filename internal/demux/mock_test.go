package demux

import (
	"context"
	"testing"
)

// Seeking to a position that isn't already a multiple of keyframeSlack must
// snap down to the nearest one, exercising spec's "v >= pos - keyframe_slack"
// invariant against a genuinely unaligned target rather than one that
// happens to already sit on a slack boundary.
func TestMockDemuxerSeekSnapsDownToKeyframeSlack(t *testing.T) {
	m := NewMockDemuxer(MockConfig{HasVideo: true, DurationSec: 10, VideoFPS: 30, SeekableFlag: true})
	if code := m.Load(context.Background(), "mock://clip"); code != 0 {
		t.Fatalf("Load failed: %d", code)
	}

	// 2.013s is not a multiple of the 0.04s slack; floor(2.013/0.04)*0.04
	// snaps to 2.0s exactly.
	if code := m.Seek(2.013); code != 0 {
		t.Fatalf("Seek failed: %d", code)
	}

	pkt := m.Read()
	if pkt == nil {
		t.Fatal("Read returned nil immediately after a successful seek")
	}
	const want = 2.0
	if pkt.PTS() != want {
		t.Fatalf("PTS() after seek to 2.013s = %v, want %v (snapped down)", pkt.PTS(), want)
	}
	if pkt.PTS() > 2.013 {
		t.Fatalf("PTS() = %v must never exceed the requested seek target 2.013", pkt.PTS())
	}
}

// A seek that already lands exactly on a slack boundary is a no-op for the
// snap: it should read back unchanged.
func TestMockDemuxerSeekAlreadyAlignedIsUnchanged(t *testing.T) {
	m := NewMockDemuxer(MockConfig{HasVideo: true, DurationSec: 10, VideoFPS: 30, SeekableFlag: true})
	if code := m.Load(context.Background(), "mock://clip"); code != 0 {
		t.Fatalf("Load failed: %d", code)
	}

	if code := m.Seek(2.0); code != 0 {
		t.Fatalf("Seek failed: %d", code)
	}
	pkt := m.Read()
	if pkt == nil {
		t.Fatal("Read returned nil immediately after a successful seek")
	}
	if pkt.PTS() != 2.0 {
		t.Fatalf("PTS() after seek to an already-aligned 2.0s = %v, want 2.0", pkt.PTS())
	}
}

// VideoStream/AudioStream must report -1 for a stream type the source
// wasn't configured with, matching the Demuxer contract's "negative if
// absent" — the property gst.go's presence detection has to uphold too.
func TestMockDemuxerReportsAbsentStreamsNegative(t *testing.T) {
	m := NewMockDemuxer(MockConfig{HasVideo: true, HasAudio: false, DurationSec: 10, SeekableFlag: true})
	if code := m.Load(context.Background(), "mock://video-only"); code != 0 {
		t.Fatalf("Load failed: %d", code)
	}
	if got := m.VideoStream(); got < 0 {
		t.Fatalf("VideoStream() = %d, want a non-negative index for a configured stream", got)
	}
	if got := m.AudioStream(); got != -1 {
		t.Fatalf("AudioStream() = %d, want -1 for a source with no audio", got)
	}
}
