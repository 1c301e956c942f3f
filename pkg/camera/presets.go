package camera

import (
	"maps"
	"slices"
)

// Preset names accepted by Manager.Apply.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	PresetMirror  = "mirror"
)

var presets = map[string]func(Config) Config{
	PresetDefault: func(c Config) Config { return c },
	// Detection thresholds are scaled to the 640x480 reference frame, so the
	// low preset only costs accuracy.
	PresetLow: func(c Config) Config {
		c.Width, c.Height, c.Framerate = 320, 240, 10
		return c
	},
	Preset720p: func(c Config) Config {
		c.Width, c.Height = 1280, 720
		return c
	},
	PresetMirror: func(c Config) Config {
		c.Mirror = true
		return c
	},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	return slices.Sorted(maps.Keys(presets))
}

// Preset returns the named preset built on the defaults.
func Preset(name string) (Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, false
	}
	return fn(DefaultConfig()), true
}
