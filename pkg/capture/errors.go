package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrPermission is returned when the user or platform denied device access.
	ErrPermission = errors.New("capture: permission denied")

	// ErrDeviceUnavailable is returned when no matching device exists.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrNotPlaying is returned when a sink never started producing data.
	ErrNotPlaying = errors.New("capture: sink did not start playing")

	// ErrClosed is returned when reading from a closed stream or sink.
	ErrClosed = errors.New("capture: closed")

	// ErrTrackEnded is returned when reading from an ended track.
	ErrTrackEnded = errors.New("capture: track ended")

	// ErrSinkEnded is returned when resuming a sink whose stream has ended.
	ErrSinkEnded = errors.New("capture: sink ended")

	// ErrNoData is returned when a sink has not produced any data yet.
	ErrNoData = errors.New("capture: no data yet")
)

// AcquisitionError reports a failed attempt to obtain a playing capture handle.
type AcquisitionError struct {
	Kind   Kind
	Device string
	Op     string // "open", "attach" or "play"
	Err    error
}

// Error implements the error interface.
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("capture [%s/%s]: %s: %v", e.Kind, e.Device, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// IsPermission reports whether err stems from denied access.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermission)
}

// IsUnavailable reports whether err stems from a missing device.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}
