// Package demux defines the facade the player core consumes to pull
// container packets, and the concrete implementations that back it: a
// GStreamer-based demuxer for real sources and a synthetic one for tests
// and local demos.
//
// Decoding is not the core's concern (see the doc on Packet.PTS), so
// everything the pipeline needs to pace and route frames — stream index,
// byte size, presentation timestamp — is already resolved by the time
// Read returns.
package demux

import "context"

// Packet is the unit the demuxer hands to the core. Its Payload is opaque
// to the pipeline; only the sink that eventually receives it over a
// player.Frame channel interprets the bytes.
type Packet interface {
	// StreamIndex identifies which elementary stream this packet belongs
	// to; compared against Demuxer.VideoStream()/AudioStream().
	StreamIndex() int
	// PTS is the presentation timestamp in seconds, relative to stream
	// start. Known without a separate decode step (container/codec
	// headers carry it), which is why PacketQueue can pace on it.
	PTS() float64
	// Size is the packet's byte size, used for queue backpressure
	// accounting.
	Size() int
	// Payload is the opaque frame content delivered to sinks.
	Payload() []byte
}

// Demuxer is the external collaborator the player core drives. It owns
// opening a URL, probing streams, reading packets in container order, and
// seeking. Errors are represented as negative return codes the way an
// FFmpeg-backed demuxer would report them, translated to a message via
// Strerror.
type Demuxer interface {
	// Load opens url and probes its streams. Returns >= 0 on success, or
	// a negative error code.
	Load(ctx context.Context, url string) int
	// Strerror translates a negative code from Load/Seek into a
	// human-readable message.
	Strerror(code int) string
	// Unload releases resources held by the current source.
	Unload()
	// Abort unblocks any in-flight Read/Seek immediately. soft, when
	// true, aborts without tearing down decoder state; the zero-value
	// (false) is a hard abort, and the only kind the player core issues.
	Abort(soft bool)

	// VideoStream returns the selected video stream index, or -1 if
	// absent.
	VideoStream() int
	// AudioStream returns the selected audio stream index, or -1 if
	// absent.
	AudioStream() int

	// Duration reports the container duration in seconds, 0 if unknown.
	Duration() float64
	// FrameRate reports the nominal video frame rate, 0 if unknown or
	// there is no video stream.
	FrameRate() float64
	// Seekable reports whether Seek is supported on this source.
	Seekable() bool

	// Seek moves the read position to pos seconds. Returns >= 0 on
	// success, or a negative error code.
	Seek(pos float64) int
	// Read returns the next packet in container order, or nil at EOF or
	// on a transient empty read.
	Read() Packet
	// EOF reports whether the underlying source has been fully read.
	EOF() bool
}
