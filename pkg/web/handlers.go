package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/lockdown"
)

// Snapshot is the first websocket frame a client receives.
type Snapshot struct {
	State      engine.State        `json:"state"`
	Activities []activity.Activity `json:"activities"`
}

// SpeechRequest is the body of POST /api/speech.
type SpeechRequest struct {
	Active bool `json:"active"`
}

// LockdownResponse tells the page whether to call preventDefault.
type LockdownResponse struct {
	Prevent bool `json:"prevent"`
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.engine.State())
}

func (s *Server) handleActivities(c *fiber.Ctx) error {
	acts := s.engine.Activities()
	if acts == nil {
		acts = []activity.Activity{}
	}
	return c.JSON(acts)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.health == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "health monitor not configured"})
	}
	return c.JSON(s.health.Summary())
}

func (s *Server) handleSpeech(c *fiber.Ctx) error {
	var req SpeechRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
	}
	s.engine.SetSpeechRecognitionActive(req.Active)
	return c.JSON(fiber.Map{"active": req.Active})
}

func (s *Server) handleLockdown(c *fiber.Ctx) error {
	var ev lockdown.Event
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
	}
	if ev.Kind == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing event kind"})
	}
	return c.JSON(LockdownResponse{Prevent: s.engine.HandleLockdownEvent(ev)})
}

// CameraResponse is the body of GET and PUT /api/camera.
type CameraResponse struct {
	Config  camera.Config `json:"config"`
	Presets []string      `json:"presets"`
}

func (s *Server) handleCamera(c *fiber.Ctx) error {
	return c.JSON(CameraResponse{Config: s.camera.Config(), Presets: camera.PresetNames()})
}

// handleCameraUpdate applies a partial change. The new settings reach the
// stream when the video supervisor reacquires it.
func (s *Server) handleCameraUpdate(c *fiber.Ctx) error {
	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
	}
	cfg, err := s.camera.Apply(u)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("camera settings changed", "device", cfg.Name(), "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c.JSON(CameraResponse{Config: cfg, Presets: camera.PresetNames()})
}

// handleActivitiesWS sends a snapshot, then every broadcast activity and
// state frame until the client disconnects. ?kinds=activity,state narrows
// the stream.
func (s *Server) handleActivitiesWS(c *websocket.Conn) {
	hello, err := hub.Encode(hub.KindHello, Snapshot{
		State:      s.engine.State(),
		Activities: s.engine.Activities(),
	})
	if err != nil {
		s.logger.Warn("encode snapshot", "error", err)
		c.Close()
		return
	}
	opts := []hub.ClientOption{hub.Initial(hello)}
	if kinds := c.Query("kinds"); kinds != "" {
		opts = append(opts, hub.Subscribe(strings.Split(kinds, ",")...))
	}
	hub.NewClient(s.hub, c, opts...).Run()
}
