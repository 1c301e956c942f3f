package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBestBackend(cfg)
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger, opts...), nil
	case BackendCommand:
		return newCommandSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend prefers a real capture tool and falls back to mock.
func detectBestBackend(cfg Config) Backend {
	if cfg.Command != "" || lookupCaptureTool() != "" {
		return BackendCommand
	}
	return BackendMock
}

// AvailableBackends returns the list of backends usable on this machine.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if lookupCaptureTool() != "" {
		backends = append(backends, BackendCommand)
	}
	return backends
}
