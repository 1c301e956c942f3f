// Package capture models hardware media streams and the sinks that consume them.
//
// A Handle bundles one acquired stream, its primary track, and its sink (a frame
// sink for video, a spectrum analyser for audio). Handles are created by an
// Acquirer and owned through a Lease: outside callers only ever see guarded views
// whose Stop and Pause are converted into a forced resume while the lease is held.
package capture

import (
	"context"
	"image"

	"github.com/teslashibe/go-proctor/pkg/audioio"
)

// Kind is the media kind of a stream.
type Kind string

const (
	Video Kind = "video"
	Audio Kind = "audio"
)

// TrackState mirrors the ready state of a media track.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is a single hardware media track.
type Track interface {
	ID() string
	Kind() Kind
	State() TrackState
	Enabled() bool
	SetEnabled(enabled bool)

	// Stop ends the track and releases the device. Ended tracks never restart.
	Stop()

	// OnEnded registers fn to run once when the track ends for any reason.
	OnEnded(fn func())
}

// Stream is an acquired hardware stream.
type Stream interface {
	// Active reports whether the stream still has a live track.
	Active() bool

	// Track returns the primary track, or nil if it was removed.
	Track() Track

	// Close stops every track and frees the device.
	Close() error
}

// VideoStream is a stream that yields decoded frames.
type VideoStream interface {
	Stream

	// ReadFrame blocks until the next frame. It returns an error once the
	// stream is closed or its track has ended.
	ReadFrame() (image.Image, error)
}

// AudioStream is a stream that yields PCM chunks.
type AudioStream interface {
	Stream

	// ReadChunk blocks until the next chunk or ctx is done.
	ReadChunk(ctx context.Context) (audioio.AudioChunk, error)

	SampleRate() int
}

// Sink renders (video) or analyses (audio) a stream.
type Sink interface {
	Attached() bool
	Paused() bool
	Ended() bool

	// Playing reports whether the sink is actively producing frames or samples.
	Playing() bool

	// Resume restarts a paused sink and waits until it produces data again.
	Resume(ctx context.Context) error

	Pause()
	Close() error
}

// Device opens hardware streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
	Name() string
}

// Constraints describe the requested capture format.
type Constraints struct {
	// Video
	Width      int
	Height     int
	FrameRate  int
	FacingMode string // "user" for the front camera

	// Audio
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// VideoConstraints returns the ideal proctoring camera request: 640x480 from the
// front-facing camera.
func VideoConstraints() Constraints {
	return Constraints{
		Width:      640,
		Height:     480,
		FrameRate:  15,
		FacingMode: "user",
	}
}

// AudioConstraints returns a mono microphone request with echo cancellation and
// noise suppression enabled.
func AudioConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// FrameSource is implemented by sinks that hold a current video frame.
type FrameSource interface {
	Playing() bool
	Snapshot() (*image.RGBA, error)
}

// SpectrumSource is implemented by sinks that expose a frequency snapshot.
type SpectrumSource interface {
	Playing() bool
	Spectrum() (Spectrum, error)
	State() AnalyserState
	Resume(ctx context.Context) error
}
