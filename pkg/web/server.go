// Package web is the host-facing HTTP and websocket API of a proctoring
// session. A browser page posts its UI events here and follows activities on
// /ws/activities.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/health"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/lockdown"
)

// Engine is the part of the proctoring engine the API exposes.
type Engine interface {
	State() engine.State
	Activities() []activity.Activity
	SetSpeechRecognitionActive(active bool)
	HandleLockdownEvent(e lockdown.Event) bool
}

// Config holds server settings.
type Config struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`             // Listen address, e.g. ":8080"
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"` // Optional host page directory
}

// DefaultConfig listens on :8080 without static files.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// Server serves the proctoring API.
type Server struct {
	cfg    Config
	app    *fiber.App
	engine Engine
	health *health.Monitor
	hub    *hub.Hub
	camera *camera.Manager
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCamera exposes GET and PUT /api/camera for the live camera settings.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) { s.camera = m }
}

// NewServer builds the routes. The hub must be running for websocket
// clients to receive broadcasts; Start runs it.
func NewServer(cfg Config, eng Engine, mon *health.Monitor, h *hub.Hub, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		health: mon,
		hub:    h,
		logger: log.Component(logger, "web"),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-proctor",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/activities", s.handleActivities)
	api.Get("/health", s.handleHealth)
	api.Post("/speech", s.handleSpeech)
	api.Post("/lockdown", s.handleLockdown)
	if s.camera != nil {
		api.Get("/camera", s.handleCamera)
		api.Put("/camera", s.handleCameraUpdate)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/activities", websocket.New(s.handleActivitiesWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Start runs the hub and listens until ctx is cancelled or Listen fails.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("proctor API listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// PublishState broadcasts the engine state to websocket clients.
func (s *Server) PublishState() {
	if err := s.hub.BroadcastEvent(hub.KindState, s.engine.State()); err != nil {
		s.logger.Warn("encode state", "error", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
