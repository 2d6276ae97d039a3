// Package control serves the HTTP and websocket API used to steer a
// running producer: status, seek and pause commands, live status and
// preview frame streams, and Prometheus metrics.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/events"
	"github.com/teslashibe/framegrab/pkg/hub"
	"github.com/teslashibe/framegrab/pkg/producer"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// StatsSource reports producer progress. *producer.Producer implements it.
type StatsSource interface {
	Stats() producer.Stats
}

// Status is the body of GET /api/status and of every status push.
type Status struct {
	Producer producer.Stats `json:"producer"`
	Seek     *seek.Snapshot `json:"seek,omitempty"`
	Clients  int            `json:"clients"`
	Time     time.Time      `json:"time"`
}

// StatusMessage is pushed to /ws/status clients when a producer event fires.
type StatusMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Status  Status `json:"status"`
}

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Stats provides the status payload. Required.
	Stats StatsSource

	// Seek receives seek and pause commands. nil rejects them.
	Seek *seek.State

	// Events is subscribed to for status pushes. Optional.
	Events *events.Bus

	Logger *slog.Logger
}

// Server is the control server
type Server struct {
	app    *fiber.App
	addr   string
	stats  StatsSource
	seek   *seek.State
	logger *slog.Logger

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	framesHub *hub.Hub

	unsubscribe []func()
}

// ErrNoStats is returned by NewServer when Config.Stats is nil.
var ErrNoStats = errors.New("control: stats source is required")

// NewServer creates a control server. It does not listen until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Stats == nil {
		return nil, ErrNoStats
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("control")
	}

	s := &Server{
		addr:      cfg.Addr,
		stats:     cfg.Stats,
		seek:      cfg.Seek,
		logger:    cfg.Logger,
		statusHub: hub.New("status"),
		framesHub: hub.New("frames"),
	}
	s.statusHub.SetLogger(cfg.Logger)
	s.framesHub.SetLogger(cfg.Logger)

	app := fiber.New(fiber.Config{
		AppName:               "framegrab",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/seek", s.handleSeek)
	api.Post("/pause", s.handlePause)
	api.Post("/toggle", s.handleToggle)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	s.app = app
	s.subscribe(cfg.Events)
	return s, nil
}

// subscribe pushes a status message for every producer event.
func (s *Server) subscribe(bus *events.Bus) {
	if bus == nil {
		return
	}
	s.unsubscribe = append(s.unsubscribe,
		events.Subscribe(bus, func(e events.BatchDelivered) { s.pushStatus("batch", e) }),
		events.Subscribe(bus, func(e events.SourceReleased) { s.pushStatus("released", e) }),
		events.Subscribe(bus, func(e events.ProducerFailed) { s.pushStatus("failed", e) }),
		events.Subscribe(bus, func(e events.SeekApplied) { s.pushStatus("seek", e) }),
	)
}

func (s *Server) pushStatus(event string, payload any) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	msg := StatusMessage{Event: event, Payload: payload, Status: s.status()}
	if err := s.statusHub.BroadcastJSON(msg); err != nil {
		s.logger.Warn("status push failed", "error", err)
	}
}

func (s *Server) status() Status {
	st := Status{
		Producer: s.stats.Stats(),
		Clients:  s.statusHub.ClientCount() + s.framesHub.ClientCount(),
		Time:     time.Now(),
	}
	if s.seek != nil {
		snap := s.seek.Snapshot()
		st.Seek = &snap
	}
	return st
}

// Start runs the hubs and listens until ctx is cancelled or the listener
// fails. A clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.framesHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("control server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// FramesHub returns the hub preview frames are broadcast on.
func (s *Server) FramesHub() *hub.Hub {
	return s.framesHub
}

// StatusHub returns the hub status pushes are broadcast on.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Close drops the event subscriptions.
func (s *Server) Close() {
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
}
