package visual

import (
	"fmt"
	"time"
)

// Config holds the tunable parameters of the visual detector
type Config struct {
	// Timing
	Interval time.Duration `yaml:"interval" mapstructure:"interval"` // How often a frame is analysed

	// Streaks (in cycles)
	NoFaceStreak        int `yaml:"no_face_streak" mapstructure:"no_face_streak"`             // Empty cycles before face_not_detected
	StabilizationCycles int `yaml:"stabilization_cycles" mapstructure:"stabilization_cycles"` // Face cycles before displacement is judged
	LookingAwayStreak   int `yaml:"looking_away_streak" mapstructure:"looking_away_streak"`   // Away cycles before looking_away

	// Displacement, in pixels of the reference frame
	HeadMoveDistance float64 `yaml:"head_move_distance" mapstructure:"head_move_distance"` // Medium severity above this
	LeftSeatDistance float64 `yaml:"left_seat_distance" mapstructure:"left_seat_distance"` // High severity above this
	ReferenceWidth   int     `yaml:"reference_width" mapstructure:"reference_width"`
	ReferenceHeight  int     `yaml:"reference_height" mapstructure:"reference_height"`

	// Gaze, as fractions of the face box
	GazeThreshold      float64 `yaml:"gaze_threshold" mapstructure:"gaze_threshold"`             // Horizontal eye offset
	GazeNeutralY       float64 `yaml:"gaze_neutral_y" mapstructure:"gaze_neutral_y"`             // Eye line of a frontal face
	GazePitchThreshold float64 `yaml:"gaze_pitch_threshold" mapstructure:"gaze_pitch_threshold"` // Vertical deviation from neutral
}

// DefaultConfig returns the calibrated defaults for a 640x480 capture.
func DefaultConfig() Config {
	return Config{
		Interval: 500 * time.Millisecond,

		NoFaceStreak:        6, // 3s with no face
		StabilizationCycles: 3,
		LookingAwayStreak:   4, // 2s looking away

		HeadMoveDistance: 80,
		LeftSeatDistance: 200,
		ReferenceWidth:   640,
		ReferenceHeight:  480,

		GazeThreshold:      0.1,
		GazeNeutralY:       -0.12,
		GazePitchThreshold: 0.12,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("visual: interval must be positive")
	case c.NoFaceStreak < 1 || c.LookingAwayStreak < 1:
		return fmt.Errorf("visual: streak thresholds must be at least 1")
	case c.StabilizationCycles < 0:
		return fmt.Errorf("visual: stabilization cycles must not be negative")
	case c.HeadMoveDistance <= 0 || c.LeftSeatDistance <= c.HeadMoveDistance:
		return fmt.Errorf("visual: need 0 < head_move_distance < left_seat_distance (got %.0f, %.0f)",
			c.HeadMoveDistance, c.LeftSeatDistance)
	case c.ReferenceWidth <= 0 || c.ReferenceHeight <= 0:
		return fmt.Errorf("visual: invalid reference frame %dx%d", c.ReferenceWidth, c.ReferenceHeight)
	case c.GazeThreshold <= 0 || c.GazePitchThreshold <= 0:
		return fmt.Errorf("visual: gaze thresholds must be positive")
	}
	return nil
}
