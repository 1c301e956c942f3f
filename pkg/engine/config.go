package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/supervisor"
	"github.com/teslashibe/go-proctor/pkg/vision"
	"github.com/teslashibe/go-proctor/pkg/visual"
	"github.com/teslashibe/go-proctor/pkg/voice"
)

// RemoteConfig points at the optional face-analysis service.
type RemoteConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Config is fixed for the life of a session.
type Config struct {
	EnableLockdown         bool `yaml:"enable_lockdown" mapstructure:"enable_lockdown"`
	EnableVisualMonitoring bool `yaml:"enable_visual_monitoring" mapstructure:"enable_visual_monitoring"`
	EnableAudioMonitoring  bool `yaml:"enable_audio_monitoring" mapstructure:"enable_audio_monitoring"`
	RecordSessions         bool `yaml:"record_sessions" mapstructure:"record_sessions"`

	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// ModelPath is the YuNet ONNX model for local face detection. An empty
	// or missing path leaves the skin heuristic as the local fallback.
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`

	Visual          visual.Config     `yaml:"visual" mapstructure:"visual"`
	Voice           voice.Config      `yaml:"voice" mapstructure:"voice"`
	VideoSupervisor supervisor.Config `yaml:"video_supervisor" mapstructure:"video_supervisor"`
	AudioSupervisor supervisor.Config `yaml:"audio_supervisor" mapstructure:"audio_supervisor"`
	Skin            vision.SkinConfig `yaml:"skin" mapstructure:"skin"`
	Session         session.Config    `yaml:"session" mapstructure:"session"`
}

// DefaultConfig enables every subsystem except session recording.
func DefaultConfig() Config {
	return Config{
		EnableLockdown:         true,
		EnableVisualMonitoring: true,
		EnableAudioMonitoring:  true,
		Remote:                 RemoteConfig{Timeout: 3 * time.Second},
		ModelPath:              "models/face_detection_yunet_2023mar.onnx",
		Visual:                 visual.DefaultConfig(),
		Voice:                  voice.DefaultConfig(),
		VideoSupervisor:        supervisor.DefaultConfig(),
		AudioSupervisor:        supervisor.DefaultConfig(),
		Skin:                   vision.DefaultSkinConfig(),
		Session:                session.DefaultConfig(),
	}
}

// Validate checks the detector tunables.
func (c Config) Validate() error {
	var errs []error
	if err := c.Visual.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("visual: %w", err))
	}
	if err := c.Voice.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("voice: %w", err))
	}
	if c.Remote.URL != "" && c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote: timeout must be positive"))
	}
	return errors.Join(errs...)
}
