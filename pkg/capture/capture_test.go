package capture

import (
	"context"
	"errors"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/audioio"
)

func acquireVideo(t *testing.T, cam *MockCamera) (*Handle, *Lease) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, lease, err := NewVideoAcquirer(cam).Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { lease.Release() })
	return h, lease
}

func testMicConfig() audioio.Config {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 20 * time.Millisecond
	return cfg
}

func TestVideoAcquirer_Acquire(t *testing.T) {
	cam := NewMockCamera(SolidFrames(320, 240, color.White), 5*time.Millisecond)
	h, _ := acquireVideo(t, cam)

	if h.Kind() != Video {
		t.Errorf("Kind() = %s, want video", h.Kind())
	}
	if h.Device() != "mock-camera" {
		t.Errorf("Device() = %q", h.Device())
	}
	if !h.Sink().Playing() {
		t.Error("sink should be playing after acquire")
	}
	frame, err := h.Frames().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b := frame.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("snapshot size = %v, want 320x240", b)
	}
	if r, _, _, _ := frame.At(10, 10).RGBA(); r != 0xffff {
		t.Errorf("snapshot pixel red = %x, want ffff", r)
	}
	if h.Spectrum() != nil {
		t.Error("video handle should not expose a spectrum")
	}
}

func TestVideoAcquirer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"permission", ErrPermission, ErrPermission},
		{"unavailable", ErrDeviceUnavailable, ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewMockCamera(nil, 0)
			cam.SetError(tt.err)

			_, _, err := NewVideoAcquirer(cam).Acquire(context.Background())
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
			var acqErr *AcquisitionError
			if !errors.As(err, &acqErr) {
				t.Fatalf("err %T is not *AcquisitionError", err)
			}
			if acqErr.Kind != Video || acqErr.Op != "open" {
				t.Errorf("AcquisitionError = %+v", acqErr)
			}
		})
	}
}

func TestVideoAcquirer_NoDevice(t *testing.T) {
	_, _, err := (&VideoAcquirer{}).Acquire(context.Background())
	if !IsUnavailable(err) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestVideoAcquirer_NeverPlays(t *testing.T) {
	cam := NewMockCamera(nil, time.Hour)
	acq := NewVideoAcquirer(cam)
	acq.PlayTimeout = 30 * time.Millisecond

	_, _, err := acq.Acquire(context.Background())
	if !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("err = %v, want ErrNotPlaying", err)
	}
	if cam.LastStream().Active() {
		t.Error("stream should be closed after failed acquisition")
	}
}

func TestLease_GuardInterceptsStop(t *testing.T) {
	cam := NewMockCamera(nil, 5*time.Millisecond)
	h, lease := acquireVideo(t, cam)

	var blocked atomic.Int64
	lease.Guard(func(string) { blocked.Add(1) })

	h.Track().Stop()
	h.Track().SetEnabled(false)
	h.Sink().Pause()
	h.Stream().Close()

	if got := cam.LastStream().Track().State(); got != TrackLive {
		t.Fatalf("track state = %s after guarded stop, want live", got)
	}
	if !cam.LastStream().Track().Enabled() {
		t.Error("guarded track should stay enabled")
	}
	if h.Sink().Paused() {
		t.Error("guarded sink should not stay paused")
	}
	if n := lease.Blocked(); n != 4 {
		t.Errorf("Blocked() = %d, want 4", n)
	}
	if n := blocked.Load(); n != 4 {
		t.Errorf("onBlocked calls = %d, want 4", n)
	}
}

func TestLease_UnguardedPassesThrough(t *testing.T) {
	cam := NewMockCamera(nil, 5*time.Millisecond)
	h, lease := acquireVideo(t, cam)

	if lease.Guarded() {
		t.Fatal("lease should not guard before Guard()")
	}
	h.Track().Stop()
	if cam.LastStream().Track().State() != TrackEnded {
		t.Error("unguarded stop should end the track")
	}
}

func TestLease_ReleaseIdempotent(t *testing.T) {
	cam := NewMockCamera(nil, 5*time.Millisecond)
	h, lease := acquireVideo(t, cam)
	lease.Guard(nil)

	if err := lease.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if !lease.Released() || lease.Guarded() {
		t.Error("released lease should report released and unguarded")
	}
	if h.Stream().Active() {
		t.Error("stream should be inactive after release")
	}
	if h.Sink().Attached() {
		t.Error("sink should be detached after release")
	}
}

func TestMockTrack_EndFiresOnEnded(t *testing.T) {
	cam := NewMockCamera(nil, 5*time.Millisecond)
	h, _ := acquireVideo(t, cam)

	fired := make(chan struct{}, 1)
	h.Track().OnEnded(func() { fired <- struct{}{} })
	cam.LastStream().MockTrack().End()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnEnded not fired")
	}
	if h.Stream().Active() {
		t.Error("stream should be inactive once its track ended")
	}

	deadline := time.Now().Add(time.Second)
	for !h.Sink().Ended() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.Sink().Ended() {
		t.Error("sink should report ended")
	}
	if err := h.Sink().Resume(context.Background()); !errors.Is(err, ErrSinkEnded) {
		t.Errorf("Resume on ended sink = %v, want ErrSinkEnded", err)
	}
}

func TestFrameSink_PauseResume(t *testing.T) {
	cam := NewMockCamera(nil, 5*time.Millisecond)
	_, lease := acquireVideo(t, cam)
	sink := lease.Handle().sink.(*FrameSink)

	sink.Pause()
	if sink.Playing() {
		t.Error("paused sink should not be playing")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	before := sink.Frames()
	if err := sink.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if sink.Frames() <= before {
		t.Error("expected a new frame after resume")
	}
	if !sink.Playing() {
		t.Error("resumed sink should be playing")
	}
}

func TestFrameSink_DisabledTrackIsBlack(t *testing.T) {
	cam := NewMockCamera(SolidFrames(64, 48, color.White), 5*time.Millisecond)
	h, lease := acquireVideo(t, cam)
	sink := lease.Handle().sink.(*FrameSink)

	cam.LastStream().Track().SetEnabled(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.waitFrames(ctx, 2); err != nil {
		t.Fatalf("waitFrames: %v", err)
	}
	frame, err := h.Frames().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if r, g, b, _ := frame.At(5, 5).RGBA(); r|g|b != 0 {
		t.Errorf("disabled track pixel = %x/%x/%x, want black", r, g, b)
	}
}

func TestAudioAcquirer_Spectrum(t *testing.T) {
	mic := NewMicrophone(testMicConfig(), nil, audioio.WithTone(1000, 0.5))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, lease, err := NewAudioAcquirer(mic).Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	an := lease.Handle().sink.(*Analyser)
	if err := an.waitChunks(ctx, 2); err != nil {
		t.Fatalf("waitChunks: %v", err)
	}

	spec, err := h.Spectrum().Spectrum()
	if err != nil {
		t.Fatalf("Spectrum: %v", err)
	}
	if len(spec.Magnitudes) != 1024 {
		t.Fatalf("bins = %d, want 1024", len(spec.Magnitudes))
	}
	peak := 0
	for i, v := range spec.Magnitudes {
		if v > spec.Magnitudes[peak] {
			peak = i
		}
	}
	if hz := spec.BinHz(peak); hz < 980 || hz > 1020 {
		t.Errorf("peak at %.1f Hz, want ~1000", hz)
	}
	for _, v := range spec.Magnitudes {
		if v < 0 || v > 255 {
			t.Fatalf("magnitude %v out of byte range", v)
		}
	}
}

func TestAnalyser_SilenceAndSuspend(t *testing.T) {
	mic := NewMicrophone(testMicConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, lease, err := NewAudioAcquirer(mic).Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	spec, err := h.Spectrum().Spectrum()
	if err != nil {
		t.Fatalf("Spectrum: %v", err)
	}
	for i, v := range spec.Magnitudes {
		if v != 0 {
			t.Fatalf("silence bin %d = %v, want 0", i, v)
		}
	}

	an := lease.Handle().sink.(*Analyser)
	an.Suspend()
	if h.Spectrum().State() != AnalyserSuspended {
		t.Fatalf("State() = %s, want suspended", h.Spectrum().State())
	}
	if err := h.Spectrum().Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if h.Spectrum().State() != AnalyserRunning {
		t.Errorf("State() = %s, want running", h.Spectrum().State())
	}

	an.Close()
	if _, err := an.Spectrum(); !errors.Is(err, ErrClosed) {
		t.Errorf("Spectrum after close = %v, want ErrClosed", err)
	}
}

func TestMicrophone_StopEndsTrack(t *testing.T) {
	mic := NewMicrophone(testMicConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, lease, err := NewAudioAcquirer(mic).Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	ended := make(chan struct{})
	h.Track().OnEnded(func() { close(ended) })
	lease.Handle().stream.Track().Stop()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("track did not end")
	}
	deadline := time.Now().Add(time.Second)
	for !h.Sink().Ended() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.Sink().Ended() {
		t.Error("analyser should end when the microphone stops")
	}
}

func TestAcquisitionError_Message(t *testing.T) {
	err := &AcquisitionError{Kind: Audio, Device: "mic", Op: "open", Err: ErrPermission}
	if got, want := err.Error(), "capture [audio/mic]: open: capture: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsPermission(err) {
		t.Error("IsPermission should see through AcquisitionError")
	}
}
