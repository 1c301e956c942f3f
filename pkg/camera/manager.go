package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Update is a partial camera change, as sent to PUT /api/camera. A preset is
// applied first, then the individual fields. The selected device is kept
// across preset changes unless the update names a new one.
type Update struct {
	Preset     *string `json:"preset,omitempty"`
	DeviceID   *int    `json:"device_id,omitempty"`
	DevicePath *string `json:"device_path,omitempty"`
	Width      *int    `json:"width,omitempty"`
	Height     *int    `json:"height,omitempty"`
	Framerate  *int    `json:"framerate,omitempty"`
	Mirror     *bool   `json:"mirror,omitempty"`
}

// ErrUnknownPreset is returned by Apply for a preset name not in PresetNames.
var ErrUnknownPreset = errors.New("camera: unknown preset")

// Manager holds the live camera configuration. Device reads it on every
// Open, so a change reaches the stream on the next reacquisition.
type Manager struct {
	mu     sync.RWMutex
	config Config

	onChange []func(Config)
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers fn to run after every successful Set or Apply.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Set validates and stores cfg.
func (m *Manager) Set(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}
	m.mu.Lock()
	m.config = cfg
	hooks := m.onChange
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Apply merges u into the current configuration and stores the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.Config()

	if u.Preset != nil {
		p, ok := Preset(*u.Preset)
		if !ok {
			return cfg, fmt.Errorf("%w: %q", ErrUnknownPreset, *u.Preset)
		}
		p.DeviceID, p.DevicePath = cfg.DeviceID, cfg.DevicePath
		p.MaxReadFailures = cfg.MaxReadFailures
		cfg = p
	}
	setInt(&cfg.DeviceID, u.DeviceID)
	setInt(&cfg.Width, u.Width)
	setInt(&cfg.Height, u.Height)
	setInt(&cfg.Framerate, u.Framerate)
	if u.DevicePath != nil {
		cfg.DevicePath = *u.DevicePath
	}
	if u.Mirror != nil {
		cfg.Mirror = *u.Mirror
	}

	if err := m.Set(cfg); err != nil {
		return m.Config(), err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
