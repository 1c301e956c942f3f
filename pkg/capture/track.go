package capture

import (
	"sync"

	"github.com/google/uuid"
)

// LocalTrack is a Track backed by an in-process device. Devices embed it and
// call End when the hardware goes away.
type LocalTrack struct {
	id     string
	kind   Kind
	onStop func()

	mu      sync.Mutex
	state   TrackState
	enabled bool
	ended   []func()
}

// NewTrack returns a live, enabled track. onStop, if non-nil, runs once when
// the consumer stops the track.
func NewTrack(kind Kind, onStop func()) *LocalTrack {
	return &LocalTrack{
		id:      uuid.NewString(),
		kind:    kind,
		onStop:  onStop,
		state:   TrackLive,
		enabled: true,
	}
}

func (t *LocalTrack) ID() string { return t.id }
func (t *LocalTrack) Kind() Kind { return t.kind }

func (t *LocalTrack) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop ends the track and releases the device.
func (t *LocalTrack) Stop() {
	if t.finish() && t.onStop != nil {
		t.onStop()
	}
}

// End marks the track ended from the device side (unplug, revoked access).
func (t *LocalTrack) End() { t.finish() }

// OnEnded registers fn. If the track already ended, fn runs right away on its
// own goroutine.
func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.state == TrackEnded {
		t.mu.Unlock()
		go fn()
		return
	}
	t.ended = append(t.ended, fn)
	t.mu.Unlock()
}

// finish transitions to ended once and fires the callbacks outside the lock.
func (t *LocalTrack) finish() bool {
	t.mu.Lock()
	if t.state == TrackEnded {
		t.mu.Unlock()
		return false
	}
	t.state = TrackEnded
	fns := t.ended
	t.ended = nil
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true
}

var _ Track = (*LocalTrack)(nil)
