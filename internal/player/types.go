package player

// MediaStatus reports the lifecycle of the currently configured source.
type MediaStatus int

const (
	NoMedia MediaStatus = iota
	LoadedMedia
	EndOfMedia
	InvalidMedia
)

func (s MediaStatus) String() string {
	switch s {
	case NoMedia:
		return "NoMedia"
	case LoadedMedia:
		return "LoadedMedia"
	case EndOfMedia:
		return "EndOfMedia"
	case InvalidMedia:
		return "InvalidMedia"
	default:
		return "Unknown"
	}
}

// State is the playback transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies a player-level error.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorResource
)

func (e ErrorKind) String() string {
	switch e {
	case ErrorNone:
		return "None"
	case ErrorResource:
		return "Resource"
	default:
		return "Unknown"
	}
}

// Frame is the envelope the core hands to sinks over VideoFrames/AudioFrames.
// Payload is opaque; interpreting it is a sink's concern, not the core's.
type Frame struct {
	PTS float64
	Payload []byte

	// SampleRateScale is set on audio frames to the current playback speed,
	// a rational resample request downstream must honor.
	SampleRateScale float64

	// Empty marks a sentinel frame: a video sink flush after stop or the
	// final frame of a generation shutting down.
	Empty bool
}

// Signals is the client-facing callback surface (spec's signal set, minus
// the two frame channels which are typed channels instead). Any field left
// nil is simply not invoked. Handlers are called from whichever goroutine
// triggers them: dispatch-originated signals (load results, errors, EOF)
// run on the dispatch loop goroutine; sourceChanged, stateChanged and
// speedChanged from SetSource/Play/Pause/Stop/SetSpeed run synchronously
// on the calling goroutine; played/paused/stopped/seeked are deferred
// events and run on whichever goroutine drains the event list (a video or
// audio worker, or the dispatch loop on load completion).
type Signals struct {
	SourceChanged         func(url string)
	MediaStatusChanged    func(status MediaStatus)
	StateChanged          func(state State)
	SeekableChanged       func(seekable bool)
	DurationChanged       func(ms int64)
	VideoFrameRateChanged func(fps float64)
	ErrorOccurred         func(kind ErrorKind, msg string)
	Played                func(ms int64)
	Paused                func(ms int64)
	Stopped               func(ms int64)
	Seeked                func(ms int64)
	SpeedChanged          func(speed float64)
}
