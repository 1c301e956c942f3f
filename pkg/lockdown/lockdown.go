// Package lockdown maps browser UI events (context menu, clipboard and
// devtools shortcuts, visibility and focus changes) to suspicious activities.
package lockdown

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/activity"
)

// Source is the name stamped on emitted activities.
const Source = "lockdown"

// EventKind identifies a UI event.
type EventKind string

const (
	ContextMenu EventKind = "contextmenu"
	KeyDown     EventKind = "keydown"
	Visibility  EventKind = "visibilitychange"
	Blur        EventKind = "blur"
	Focus       EventKind = "focus"
)

// Event is one UI event posted by the host page.
type Event struct {
	Kind  EventKind `json:"kind"`
	Key   string    `json:"key,omitempty"` // KeyboardEvent.key, e.g. "c" or "F12"
	Ctrl  bool      `json:"ctrl,omitempty"`
	Meta  bool      `json:"meta,omitempty"`
	Shift bool      `json:"shift,omitempty"`
	Alt   bool      `json:"alt,omitempty"`

	// Hidden is the document visibility for visibilitychange events.
	Hidden bool `json:"hidden,omitempty"`

	At time.Time `json:"at,omitempty"`
}

// Guard routes events to a reporter.
type Guard struct {
	reporter activity.Reporter
	now      func() time.Time

	mu        sync.Mutex
	lastFocus time.Time
}

// New creates a guard reporting to r.
func New(r activity.Reporter) *Guard {
	return &Guard{reporter: r, now: time.Now}
}

// Handle records the activity for e, if any, and reports whether the host
// should prevent the event's default action.
func (g *Guard) Handle(e Event) (prevent bool) {
	at := e.At
	if at.IsZero() {
		at = g.now()
	}

	switch e.Kind {
	case ContextMenu:
		g.record(at, activity.RightClick, activity.Low, "Right-click context menu blocked")
		return true

	case KeyDown:
		combo, blocked := blockedShortcut(e)
		if !blocked {
			return false
		}
		g.record(at, activity.CopyPaste, activity.Medium, fmt.Sprintf("Blocked shortcut %s", combo))
		return true

	case Visibility:
		if e.Hidden {
			g.record(at, activity.TabSwitch, activity.High, "Exam tab hidden (tab switch or minimize)")
		}
		return false

	case Blur:
		g.record(at, activity.WindowBlur, activity.Medium, "Exam window lost focus")
		return false

	case Focus:
		g.mu.Lock()
		g.lastFocus = at
		g.mu.Unlock()
		return false
	}
	return false
}

// LastFocus returns when the window last regained focus.
func (g *Guard) LastFocus() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFocus
}

func (g *Guard) record(at time.Time, t activity.Type, sev activity.Severity, desc string) {
	if g.reporter == nil {
		return
	}
	g.reporter.Record(activity.NewAt(at, t, sev, Source, desc))
}

// blockedShortcut matches clipboard (Ctrl/Meta+C/V/X), devtools
// (Ctrl/Meta+Shift+I/J/C, F12) and view-source (Ctrl/Meta+U) keys.
func blockedShortcut(e Event) (string, bool) {
	key := strings.ToLower(e.Key)
	if key == "f12" {
		return "F12", true
	}
	if !e.Ctrl && !e.Meta {
		return "", false
	}

	mod := "Ctrl"
	if e.Meta && !e.Ctrl {
		mod = "Meta"
	}
	if e.Shift {
		switch key {
		case "i", "j", "c":
			return mod + "+Shift+" + strings.ToUpper(key), true
		}
		return "", false
	}
	switch key {
	case "c", "v", "x", "u":
		return mod + "+" + strings.ToUpper(key), true
	}
	return "", false
}
