package producer

import (
	"log/slog"

	"github.com/teslashibe/framegrab/pkg/events"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// Config holds producer configuration.
type Config struct {
	// Window bounds production. Defaults to [0, Unbounded].
	Window Window

	// Seek is the shared seek/pause signal. nil disables seeking.
	Seek *seek.State

	// EmptyFrameThreshold overrides DefaultEmptyFrameThreshold when non-zero.
	EmptyFrameThreshold uint32

	// Events receives lifecycle events. nil disables publishing.
	Events *events.Bus

	// Logger receives poll diagnostics.
	Logger *slog.Logger

	// NewID returns the ID stamped on each batch.
	NewID func() string
}

// Option is a functional option for configuring a producer.
type Option func(*Config)

// WithWindow sets the inclusive frame window. Pass Unbounded as last for
// no upper bound.
func WithWindow(first, last uint64) Option {
	return func(c *Config) { c.Window = Window{First: first, Last: last} }
}

// WithSeek enables interactive seeking through s.
func WithSeek(s *seek.State) Option {
	return func(c *Config) { c.Seek = s }
}

// WithEmptyFrameThreshold overrides the watchdog threshold.
func WithEmptyFrameThreshold(n uint32) Option {
	return func(c *Config) { c.EmptyFrameThreshold = n }
}

// WithEvents publishes lifecycle events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(c *Config) { c.Events = bus }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithIDFunc replaces the batch ID generator.
func WithIDFunc(fn func() string) Option {
	return func(c *Config) { c.NewID = fn }
}

// DefaultConfig returns an unbounded, non-seeking configuration.
func DefaultConfig() Config {
	return Config{
		Window: Window{First: 0, Last: Unbounded},
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return c.Window.Validate()
}
