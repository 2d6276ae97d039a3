package control

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/framegrab/pkg/hub"
)

// SeekRequest is the body of POST /api/seek
type SeekRequest struct {
	Increment *int64 `json:"increment"`
}

// PauseRequest is the body of POST /api/pause
type PauseRequest struct {
	Paused *bool `json:"paused"`
}

// handleStatus returns the producer and seek state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleSeek queues a relative seek
func (s *Server) handleSeek(c *fiber.Ctx) error {
	if s.seek == nil {
		return seekDisabled(c)
	}

	var req SeekRequest
	if err := c.BodyParser(&req); err != nil || req.Increment == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"increment\": <int>}",
		})
	}

	s.seek.Add(*req.Increment)
	s.logger.Debug("seek queued", "increment", *req.Increment)
	return c.JSON(s.seek.Snapshot())
}

// handlePause sets the pause flag
func (s *Server) handlePause(c *fiber.Ctx) error {
	if s.seek == nil {
		return seekDisabled(c)
	}

	var req PauseRequest
	if err := c.BodyParser(&req); err != nil || req.Paused == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"paused\": <bool>}",
		})
	}

	s.seek.SetPaused(*req.Paused)
	s.logger.Info("pause set", "paused", *req.Paused)
	return c.JSON(s.seek.Snapshot())
}

// handleToggle flips the pause flag
func (s *Server) handleToggle(c *fiber.Ctx) error {
	if s.seek == nil {
		return seekDisabled(c)
	}
	paused := s.seek.TogglePause()
	s.logger.Info("pause toggled", "paused", paused)
	return c.JSON(s.seek.Snapshot())
}

func seekDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"error": "seeking is disabled",
	})
}

// handleStatusWS sends the current status, then streams pushes
func (s *Server) handleStatusWS(c *websocket.Conn) {
	data, err := json.Marshal(StatusMessage{Event: "hello", Status: s.status()})
	if err == nil {
		c.WriteMessage(websocket.TextMessage, data)
	}
	s.serveClient(s.statusHub, c)
}

// handleFramesWS streams JPEG preview frames
func (s *Server) handleFramesWS(c *websocket.Conn) {
	s.serveClient(s.framesHub, c)
}

func (s *Server) serveClient(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
