package activity

import (
	"strings"
	"testing"
	"time"
)

func TestNewAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewAt(at, MultipleFaces, High, "visual", "2 faces")

	if a.ID == "" {
		t.Error("NewAt: ID should be set")
	}
	if !a.Timestamp.Equal(at) {
		t.Errorf("Timestamp: got %v, want %v", a.Timestamp, at)
	}
	if a.Type != MultipleFaces || a.Severity != High {
		t.Errorf("unexpected type/severity: %s/%s", a.Type, a.Severity)
	}
	if !strings.Contains(a.String(), "multiple_faces") {
		t.Errorf("String: %q should mention type", a.String())
	}
}

func TestNewUniqueIDs(t *testing.T) {
	a := New(TabSwitch, High, "lockdown", "x")
	b := New(TabSwitch, High, "lockdown", "x")
	if a.ID == b.ID {
		t.Error("expected distinct IDs")
	}
}

func TestTypeValid(t *testing.T) {
	for _, typ := range Types() {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if Type("screen_share").Valid() {
		t.Error("unknown type should be invalid")
	}
}

func TestSeverityValid(t *testing.T) {
	tests := []struct {
		sev  Severity
		want bool
	}{
		{Low, true},
		{Medium, true},
		{High, true},
		{Severity("critical"), false},
	}
	for _, tc := range tests {
		t.Run(string(tc.sev), func(t *testing.T) {
			if got := tc.sev.Valid(); got != tc.want {
				t.Errorf("Valid: got %v, want %v", got, tc.want)
			}
		})
	}
}
