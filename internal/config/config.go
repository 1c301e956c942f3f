// Package config loads the proctor configuration from proctor.yaml and
// PROCTOR_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-proctor/pkg/audioio"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/web"
)

// EnvPrefix prefixes every environment override, e.g.
// PROCTOR_ENGINE_REMOTE_URL or PROCTOR_WEB_ADDR.
const EnvPrefix = "PROCTOR"

// Session store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// StoreConfig selects where recorded sessions go.
type StoreConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`           // "file" or "postgres"
	Dir         string `yaml:"dir" mapstructure:"dir"`                   // JSONL directory for the file backend
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // pgx connection string
}

// Config is the full proctor configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" mapstructure:"log_level"`
	Engine   engine.Config  `yaml:"engine" mapstructure:"engine"`
	Camera   camera.Config  `yaml:"camera" mapstructure:"camera"`
	Audio    audioio.Config `yaml:"audio" mapstructure:"audio"`
	Web      web.Config     `yaml:"web" mapstructure:"web"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Engine:   engine.DefaultConfig(),
		Camera:   camera.DefaultConfig(),
		Audio:    audioio.DefaultConfig(),
		Web:      web.DefaultConfig(),
		Store:    StoreConfig{Backend: StoreFile, Dir: "sessions"},
	}
}

// Load reads cfgFile, or proctor.yaml from the working directory or
// /etc/proctor when cfgFile is empty, then applies environment overrides.
// A missing search-path file is not an error; defaults are used.
func Load(cfgFile string) (*Config, string, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seeding every key from the defaults lets AutomaticEnv override keys
	// the file does not mention.
	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, "", err
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, "", err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("proctor")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/proctor")
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	return cfg, v.ConfigFileUsed(), nil
}

// YAML renders cfg as it would be written to proctor.yaml.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
