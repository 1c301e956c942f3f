// Package activity defines the suspicious activity events reported to the host.
package activity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies what kind of behavior was detected.
type Type string

const (
	TabSwitch       Type = "tab_switch"
	WindowBlur      Type = "window_blur"
	CopyPaste       Type = "copy_paste"
	RightClick      Type = "right_click"
	MultipleFaces   Type = "multiple_faces"
	FaceNotDetected Type = "face_not_detected"
	AudioDetected   Type = "audio_detected"
	PersonLeftSeat  Type = "person_left_seat"
	LookingAway     Type = "looking_away"
)

// Types returns every known activity type.
func Types() []Type {
	return []Type{
		TabSwitch, WindowBlur, CopyPaste, RightClick,
		MultipleFaces, FaceNotDetected, AudioDetected,
		PersonLeftSeat, LookingAway,
	}
}

// Valid reports whether t is a known activity type.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Severity ranks how serious an activity is.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == Low || s == Medium || s == High
}

// Activity is one recorded suspicious event. Values are never mutated after New.
type Activity struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Source      string    `json:"source,omitempty"` // detector that raised it
}

// New creates an activity stamped with the current time.
func New(t Type, sev Severity, source, description string) Activity {
	return NewAt(time.Now(), t, sev, source, description)
}

// NewAt creates an activity stamped with the given time.
func NewAt(at time.Time, t Type, sev Severity, source, description string) Activity {
	return Activity{
		ID:          uuid.NewString(),
		Type:        t,
		Timestamp:   at,
		Severity:    sev,
		Description: description,
		Source:      source,
	}
}

// String implements fmt.Stringer.
func (a Activity) String() string {
	return fmt.Sprintf("[%s] %s (%s): %s", a.Timestamp.Format(time.RFC3339), a.Type, a.Severity, a.Description)
}

// Reporter receives activities from detectors.
type Reporter interface {
	Record(a Activity)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(a Activity)

// Record calls f(a).
func (f ReporterFunc) Record(a Activity) { f(a) }
