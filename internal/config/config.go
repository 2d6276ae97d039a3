// Package config loads framegrab configuration from a YAML or TOML file
// with FRAMEGRAB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/framegrab/pkg/capture"
	"github.com/teslashibe/framegrab/pkg/producer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRAMEGRAB_"

// Default values.
const (
	DefaultListen         = ":8080"
	DefaultLogLevel       = "info"
	DefaultPreviewQuality = 80
)

// Config is the full runtime configuration.
type Config struct {
	Source   capture.Spec   `yaml:"source" toml:"source" envPrefix:"SOURCE_"`
	Window   WindowConfig   `yaml:"window" toml:"window" envPrefix:"WINDOW_"`
	Seek     SeekConfig     `yaml:"seek" toml:"seek" envPrefix:"SEEK_"`
	Control  ControlConfig  `yaml:"control" toml:"control" envPrefix:"CONTROL_"`
	Output   OutputConfig   `yaml:"output" toml:"output" envPrefix:"OUTPUT_"`
	Log      LogConfig      `yaml:"log" toml:"log" envPrefix:"LOG_"`
	Watchdog WatchdogConfig `yaml:"watchdog" toml:"watchdog" envPrefix:"WATCHDOG_"`
}

// WindowConfig bounds production. A nil Last means unbounded.
type WindowConfig struct {
	First uint64  `yaml:"first" toml:"first" env:"FIRST"`
	Last  *uint64 `yaml:"last" toml:"last" env:"LAST"`
}

// Bounds returns the inclusive window, mapping a missing Last to
// producer.Unbounded.
func (w WindowConfig) Bounds() (first, last uint64) {
	if w.Last == nil {
		return w.First, producer.Unbounded
	}
	return w.First, *w.Last
}

// SeekConfig enables interactive seeking.
type SeekConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
}

// ControlConfig configures the HTTP control server.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Listen  string `yaml:"listen" toml:"listen" env:"LISTEN"`
}

// OutputConfig configures the pipeline consumers.
type OutputConfig struct {
	// Dir receives saved frames. Empty disables saving.
	Dir   string `yaml:"dir" toml:"dir" env:"DIR"`
	Every uint64 `yaml:"every" toml:"every" env:"EVERY"`
	Ext   string `yaml:"ext" toml:"ext" env:"EXT"`

	// PreviewQuality is the JPEG quality of /ws/frames previews.
	PreviewQuality int `yaml:"preview_quality" toml:"preview_quality" env:"PREVIEW_QUALITY"`

	// IdleBackoffMS sleeps after polls that produced nothing.
	IdleBackoffMS int `yaml:"idle_backoff_ms" toml:"idle_backoff_ms" env:"IDLE_BACKOFF_MS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" env:"LEVEL"`
}

// WatchdogConfig overrides the empty-frame threshold. Zero keeps the default.
type WatchdogConfig struct {
	Threshold uint32 `yaml:"threshold" toml:"threshold" env:"THRESHOLD"`
}

// ErrUnknownFormat is returned for config files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// DefaultConfig returns the defaults applied before the file and env.
func DefaultConfig() Config {
	return Config{
		Source:  capture.Spec{Kind: "device", Device: "0"},
		Control: ControlConfig{Enabled: true, Listen: DefaultListen},
		Output:  OutputConfig{Every: 1, Ext: ".png", PreviewQuality: DefaultPreviewQuality},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(data, filepath.Ext(path), &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode parses data into cfg according to the file extension.
func Decode(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: parse toml: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return nil
}

// ApplyEnv overrides cfg from FRAMEGRAB_* variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	first, last := c.Window.Bounds()
	if _, err := producer.NewWindow(first, last); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Control.Enabled && c.Control.Listen == "" {
		return errors.New("config: control.listen is required when control is enabled")
	}
	if c.Output.PreviewQuality < 0 || c.Output.PreviewQuality > 100 {
		return fmt.Errorf("config: output.preview_quality %d out of range", c.Output.PreviewQuality)
	}
	if c.Output.IdleBackoffMS < 0 {
		return errors.New("config: output.idle_backoff_ms must not be negative")
	}
	return nil
}
