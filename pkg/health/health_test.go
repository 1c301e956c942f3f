package health

import (
	"errors"
	"sync"
	"testing"
)

func TestOverall(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]Status
		want    Status
	}{
		{"empty", nil, Unknown},
		{"all healthy", map[string]Status{"a": Healthy, "b": Healthy}, Healthy},
		{"one degraded", map[string]Status{"a": Healthy, "b": Degraded}, Degraded},
		{"unhealthy beats degraded", map[string]Status{"a": Degraded, "b": Unhealthy}, Unhealthy},
		{"unknown is worst", map[string]Status{"a": Unhealthy, "b": Unknown}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil)
			for name, s := range tt.updates {
				m.Update(name, s, "")
			}
			if got := m.Overall(); got != tt.want {
				t.Errorf("Overall() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Healthy, Degraded, Unhealthy, Unknown} {
		if !s.IsValid() {
			t.Errorf("IsValid(%q) = false", s)
		}
	}
	for _, s := range []Status{"", "ok", "garbage"} {
		if s.IsValid() {
			t.Errorf("IsValid(%q) = true", s)
		}
	}
}

func TestUpdateCoercesInvalidStatus(t *testing.T) {
	m := NewMonitor(nil)
	m.Update(Visual, Status("bogus"), "bad value")
	c, ok := m.Get(Visual)
	if !ok || c.Status != Unhealthy {
		t.Fatalf("Get = %+v, %v", c, ok)
	}
}

func TestReportAndRemove(t *testing.T) {
	m := NewMonitor(nil)
	m.Report(Audio, errors.New("permission denied"))
	c, _ := m.Get(Audio)
	if c.Status != Degraded || c.Message != "permission denied" {
		t.Errorf("after error: %+v", c)
	}

	m.Report(Audio, nil)
	c, _ = m.Get(Audio)
	if c.Status != Healthy || c.Message != "" {
		t.Errorf("after recovery: %+v", c)
	}

	m.Remove(Audio)
	if _, ok := m.Get(Audio); ok {
		t.Error("Remove left the check in place")
	}
}

func TestSummary(t *testing.T) {
	m := NewMonitor(nil)
	m.Update(Visual, Healthy, "")
	m.Update(Audio, Degraded, "no microphone")

	s := m.Summary()
	if s.Status != Degraded {
		t.Errorf("Status = %q", s.Status)
	}
	if s.Components[Audio] != Degraded || s.Components[Visual] != Healthy {
		t.Errorf("Components = %v", s.Components)
	}
	if len(s.Checks) != 2 || s.Checks[0].Name != Audio {
		t.Errorf("Checks not sorted: %+v", s.Checks)
	}
}

func TestSummaryConsistentUnderUpdates(t *testing.T) {
	m := NewMonitor(nil)
	m.Update("comp", Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("comp", Degraded, "flapping")
			} else {
				m.Update("comp", Healthy, "")
			}
		}(i)
		go func() {
			defer wg.Done()
			s := m.Summary()
			if s.Status != s.Components["comp"] {
				t.Errorf("overall %q != component %q", s.Status, s.Components["comp"])
			}
		}()
	}
	wg.Wait()
}
