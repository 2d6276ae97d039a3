package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/framegrab/internal/config"
	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/capture"
	"github.com/teslashibe/framegrab/pkg/control"
	"github.com/teslashibe/framegrab/pkg/events"
	"github.com/teslashibe/framegrab/pkg/pipeline"
	"github.com/teslashibe/framegrab/pkg/producer"
	"github.com/teslashibe/framegrab/pkg/seek"
)

type runFlags struct {
	config   string
	source   string
	first    uint64
	last     uint64
	listen   string
	output   string
	every    uint64
	seek     bool
	logLevel string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the producer and control server",
		Long: `Opens the configured source and delivers frames until the source ends,
the frame window is used up or the process is interrupted.

Precedence: flags > FRAMEGRAB_* environment > config file > defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.Flags().StringVarP(&f.source, "source", "s", "", "Camera index, stream URL, video file or image directory")
	cmd.Flags().Uint64Var(&f.first, "first", 0, "First frame of the window")
	cmd.Flags().Uint64Var(&f.last, "last", 0, "Last frame of the window (inclusive); unbounded when unset")
	cmd.Flags().StringVar(&f.listen, "listen", "", "Control server address; empty string disables it")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Directory to save frames into")
	cmd.Flags().Uint64Var(&f.every, "every", 1, "Save every Nth batch")
	cmd.Flags().BoolVar(&f.seek, "seek", false, "Enable interactive seeking")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

// loadConfig applies flags the user actually set on top of the loaded config.
func loadConfig(cmd *cobra.Command, f runFlags) (config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Source = sourceFromArg(f.source)
	}
	if changed("first") {
		cfg.Window.First = f.first
	}
	if changed("last") {
		last := f.last
		cfg.Window.Last = &last
	}
	if changed("listen") {
		cfg.Control.Listen = f.listen
		cfg.Control.Enabled = f.listen != ""
	}
	if changed("output") {
		cfg.Output.Dir = f.output
	}
	if changed("every") {
		cfg.Output.Every = f.every
	}
	if changed("seek") {
		cfg.Seek.Enabled = f.seek
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

// sourceFromArg guesses the source kind: a directory is an image
// directory, an existing file is a video, anything else is a device.
func sourceFromArg(arg string) capture.Spec {
	info, err := os.Stat(arg)
	switch {
	case err == nil && info.IsDir():
		return capture.Spec{Kind: "images", Path: arg}
	case err == nil:
		return capture.Spec{Kind: "file", Path: arg}
	default:
		return capture.Spec{Kind: "device", Device: arg}
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log.Init(cfg.Log.Level)
	logger := log.Component("run")

	src, err := capture.Open(cfg.Source)
	if err != nil {
		return err
	}

	bus := events.New()
	defer bus.Close()

	var st *seek.State
	if cfg.Seek.Enabled {
		st = seek.New()
	}

	first, last := cfg.Window.Bounds()
	prod, err := producer.New(src,
		producer.WithWindow(first, last),
		producer.WithSeek(st),
		producer.WithEmptyFrameThreshold(cfg.Watchdog.Threshold),
		producer.WithEvents(bus),
	)
	if err != nil {
		src.Release()
		return err
	}
	defer prod.Close()

	var consumers []pipeline.Consumer
	if cfg.Output.Dir != "" {
		saver, err := pipeline.NewFrameSaver(cfg.Output.Dir, cfg.Output.Every, cfg.Output.Ext)
		if err != nil {
			return err
		}
		consumers = append(consumers, saver)
	}

	if cfg.Control.Enabled {
		srv, err := control.NewServer(control.Config{
			Addr:   cfg.Control.Listen,
			Stats:  prod,
			Seek:   st,
			Events: bus,
		})
		if err != nil {
			return err
		}
		defer srv.Close()

		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("control server stopped", "error", err)
			}
		}()
		consumers = append(consumers, pipeline.NewBroadcaster(srv.FramesHub(), cfg.Output.PreviewQuality))
	}

	runner := pipeline.NewRunner(prod,
		pipeline.WithConsumers(consumers...),
		pipeline.WithIdleBackoff(time.Duration(cfg.Output.IdleBackoffMS)*time.Millisecond),
	)

	err = runner.Run(ctx)
	stats := prod.Stats()
	logger.Info("done", "delivered", stats.Delivered, "failed", stats.Failed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
