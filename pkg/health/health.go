// Package health tracks the advisory status of each proctoring subsystem.
// A degraded subsystem never stops the session; the status is surfaced to
// the host through the web API and the engine's subsystem callback.
package health

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
)

// Status is the health of one subsystem.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Subsystem names used by the engine.
const (
	Visual   = "visual"
	Audio    = "audio"
	Lockdown = "lockdown"
	Remote   = "remote"
	Session  = "session"
)

// Check is the latest result for a subsystem.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Monitor holds checks for several subsystems.
type Monitor struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates an empty monitor. A nil logger uses the global one.
func NewMonitor(logger *slog.Logger) *Monitor {
	return &Monitor{
		logger: log.Component(logger, "health"),
		now:    time.Now,
		checks: make(map[string]Check),
	}
}

// Update records the status of a subsystem. Invalid statuses are stored as
// Unhealthy.
func (m *Monitor) Update(name string, status Status, message string) {
	if !status.IsValid() {
		status = Unhealthy
	}

	m.mu.Lock()
	prev, had := m.checks[name]
	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: m.now(),
	}
	m.mu.Unlock()

	if had && prev.Status == status {
		return
	}
	if status != Healthy {
		m.logger.Warn("subsystem degraded", "subsystem", name, "status", string(status), "message", message)
	} else if had {
		m.logger.Info("subsystem recovered", "subsystem", name)
	}
}

// Report maps an error onto Healthy (nil) or Degraded.
func (m *Monitor) Report(name string, err error) {
	if err == nil {
		m.Update(name, Healthy, "")
		return
	}
	m.Update(name, Degraded, err.Error())
}

// Remove forgets a subsystem, e.g. one disabled by configuration.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.checks, name)
	m.mu.Unlock()
}

// Get returns the check for name.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all checks, or Unknown when none
// are registered.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return overallLocked(m.checks)
}

func overallLocked(checks map[string]Check) Status {
	if len(checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range checks {
		if rank(c.Status) > rank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns the checks sorted by name.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	out := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Summary is the JSON body of the health endpoint.
type Summary struct {
	Status     Status            `json:"status"`
	Components map[string]Status `json:"components"`
	Checks     []Check           `json:"checks"`
}

// Summary returns the overall status and every check, read under one lock.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	s := Summary{
		Status:     overallLocked(m.checks),
		Components: make(map[string]Status, len(m.checks)),
		Checks:     make([]Check, 0, len(m.checks)),
	}
	for name, c := range m.checks {
		s.Components[name] = c.Status
		s.Checks = append(s.Checks, c)
	}
	m.mu.RUnlock()

	sort.Slice(s.Checks, func(i, j int) bool { return s.Checks[i].Name < s.Checks[j].Name })
	return s
}

func rank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	case Unknown:
		return 3
	}
	return 0
}
