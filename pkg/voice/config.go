package voice

import (
	"fmt"
	"time"
)

// Band is an inclusive loudness range.
type Band struct {
	Lo float64 `yaml:"lo" mapstructure:"lo"`
	Hi float64 `yaml:"hi" mapstructure:"hi"`
}

// Contains reports whether v lies inside the band.
func (b Band) Contains(v float64) bool { return v >= b.Lo && v <= b.Hi }

// Config holds the tunable parameters of the audio detector. Loudness values
// are in byte-scaled spectrum units (0-255), frequencies in Hz.
type Config struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Baseline
	BaselineSamples int     `yaml:"baseline_samples" mapstructure:"baseline_samples"`
	QuietThreshold  float64 `yaml:"quiet_threshold" mapstructure:"quiet_threshold"`
	RangeMargin     float64 `yaml:"range_margin" mapstructure:"range_margin"` // Fraction added around learned range

	// Adaptation
	SpeechBand         Band    `yaml:"speech_band" mapstructure:"speech_band"`
	SpeechBandActive   Band    `yaml:"speech_band_active" mapstructure:"speech_band_active"` // While speech-to-text runs
	LearningRate       float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	LearningRateActive float64 `yaml:"learning_rate_active" mapstructure:"learning_rate_active"`

	// External voice rule
	ExternalMargin    float64 `yaml:"external_margin" mapstructure:"external_margin"`       // Above baseline
	JumpThreshold     float64 `yaml:"jump_threshold" mapstructure:"jump_threshold"`         // Above recent average
	CentroidDeviation float64 `yaml:"centroid_deviation" mapstructure:"centroid_deviation"` // Hz outside the range

	// Sustained and complex rules
	Window          int     `yaml:"window" mapstructure:"window"`                     // Recent samples considered
	SustainedFloor  float64 `yaml:"sustained_floor" mapstructure:"sustained_floor"`   // Every recent sample above this
	SustainedMargin float64 `yaml:"sustained_margin" mapstructure:"sustained_margin"` // Recent average above baseline
	VeryLoud        float64 `yaml:"very_loud" mapstructure:"very_loud"`               // Fires regardless of range
	ComplexStdDev   float64 `yaml:"complex_stddev" mapstructure:"complex_stddev"`
	ComplexAverage  float64 `yaml:"complex_average" mapstructure:"complex_average"`

	// Cooldown is shared by every audio rule.
	Cooldown time.Duration `yaml:"cooldown" mapstructure:"cooldown"`

	// StallFactor marks the loop stalled after this many missed intervals.
	StallFactor int `yaml:"stall_factor" mapstructure:"stall_factor"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,

		BaselineSamples: 10,
		QuietThreshold:  30,
		RangeMargin:     0.2,

		SpeechBand:         Band{Lo: 15, Hi: 80},
		SpeechBandActive:   Band{Lo: 10, Hi: 120},
		LearningRate:       0.05,
		LearningRateActive: 0.10,

		ExternalMargin:    25,
		JumpThreshold:     15,
		CentroidDeviation: 150,

		Window:          5,
		SustainedFloor:  35,
		SustainedMargin: 20,
		VeryLoud:        90,
		ComplexStdDev:   12,
		ComplexAverage:  40,

		Cooldown:    10 * time.Second,
		StallFactor: 3,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("voice: interval must be positive")
	case c.BaselineSamples < 1:
		return fmt.Errorf("voice: baseline_samples must be at least 1")
	case c.RangeMargin < 0 || c.RangeMargin >= 1:
		return fmt.Errorf("voice: range_margin must be in [0, 1), got %.2f", c.RangeMargin)
	case c.SpeechBand.Lo > c.SpeechBand.Hi || c.SpeechBandActive.Lo > c.SpeechBandActive.Hi:
		return fmt.Errorf("voice: inverted speech band")
	case c.LearningRate < 0 || c.LearningRate > 1 || c.LearningRateActive < 0 || c.LearningRateActive > 1:
		return fmt.Errorf("voice: learning rates must be in [0, 1]")
	case c.Window < 2:
		return fmt.Errorf("voice: window must be at least 2")
	case c.Cooldown < 0:
		return fmt.Errorf("voice: cooldown must not be negative")
	case c.StallFactor < 1:
		return fmt.Errorf("voice: stall_factor must be at least 1")
	}
	return nil
}
