package capture

import (
	"context"
	"fmt"
	"time"
)

// DefaultPlayTimeout bounds how long an acquirer waits for a fresh sink to
// produce its first frame or chunk.
const DefaultPlayTimeout = 5 * time.Second

// Acquirer obtains a playing capture handle for one media kind.
type Acquirer interface {
	Kind() Kind
	Acquire(ctx context.Context) (*Handle, *Lease, error)
}

// VideoAcquirer opens a camera and attaches a FrameSink to it.
type VideoAcquirer struct {
	Device      Device
	Constraints Constraints
	PlayTimeout time.Duration
}

// NewVideoAcquirer returns an acquirer with the default camera request.
func NewVideoAcquirer(dev Device) *VideoAcquirer {
	return &VideoAcquirer{
		Device:      dev,
		Constraints: VideoConstraints(),
		PlayTimeout: DefaultPlayTimeout,
	}
}

// Kind returns Video.
func (a *VideoAcquirer) Kind() Kind { return Video }

// Acquire opens the device, attaches a frame sink and waits for the first frame.
func (a *VideoAcquirer) Acquire(ctx context.Context) (*Handle, *Lease, error) {
	if a.Device == nil {
		return nil, nil, a.fail("open", ErrDeviceUnavailable)
	}
	stream, err := a.Device.Open(ctx, a.Constraints)
	if err != nil {
		return nil, nil, a.fail("open", err)
	}
	vs, ok := stream.(VideoStream)
	if !ok {
		stream.Close()
		return nil, nil, a.fail("attach", fmt.Errorf("device returned %T, not a video stream", stream))
	}

	sink := NewFrameSink(vs)
	if err := waitPlaying(ctx, a.PlayTimeout, sink.WaitPlaying); err != nil {
		sink.Close()
		vs.Close()
		return nil, nil, a.fail("play", err)
	}

	h, lease := NewHandle(Video, a.Device.Name(), vs, sink)
	return h, lease, nil
}

func (a *VideoAcquirer) fail(op string, err error) error {
	return &AcquisitionError{Kind: Video, Device: deviceName(a.Device), Op: op, Err: err}
}

// AudioAcquirer opens a microphone and attaches a spectrum analyser to it.
type AudioAcquirer struct {
	Device      Device
	Constraints Constraints
	Analyser    AnalyserConfig
	PlayTimeout time.Duration
}

// NewAudioAcquirer returns an acquirer with the default microphone request.
func NewAudioAcquirer(dev Device) *AudioAcquirer {
	return &AudioAcquirer{
		Device:      dev,
		Constraints: AudioConstraints(),
		Analyser:    DefaultAnalyserConfig(),
		PlayTimeout: DefaultPlayTimeout,
	}
}

// Kind returns Audio.
func (a *AudioAcquirer) Kind() Kind { return Audio }

// Acquire opens the device, builds the analyser graph and waits for samples.
func (a *AudioAcquirer) Acquire(ctx context.Context) (*Handle, *Lease, error) {
	if a.Device == nil {
		return nil, nil, a.fail("open", ErrDeviceUnavailable)
	}
	stream, err := a.Device.Open(ctx, a.Constraints)
	if err != nil {
		return nil, nil, a.fail("open", err)
	}
	as, ok := stream.(AudioStream)
	if !ok {
		stream.Close()
		return nil, nil, a.fail("attach", fmt.Errorf("device returned %T, not an audio stream", stream))
	}

	analyser := NewAnalyser(as, a.Analyser)
	if err := waitPlaying(ctx, a.PlayTimeout, analyser.WaitPlaying); err != nil {
		analyser.Close()
		as.Close()
		return nil, nil, a.fail("play", err)
	}

	h, lease := NewHandle(Audio, a.Device.Name(), as, analyser)
	return h, lease, nil
}

func (a *AudioAcquirer) fail(op string, err error) error {
	return &AcquisitionError{Kind: Audio, Device: deviceName(a.Device), Op: op, Err: err}
}

func waitPlaying(ctx context.Context, timeout time.Duration, wait func(context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultPlayTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wait(ctx)
}

func deviceName(d Device) string {
	if d == nil {
		return "none"
	}
	return d.Name()
}
