// Package producer pulls frames from a capture source, normalizes them into
// batches of per-sensor records and enforces the configured frame window.
//
// A Producer is driven by a single worker calling Poll in a loop. It is not
// safe for concurrent Poll calls; Stats may be read from any goroutine.
package producer

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/capture"
	"github.com/teslashibe/framegrab/pkg/events"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// Producer turns a capture source into a stream of batches.
type Producer struct {
	source    capture.Source
	window    Window
	seek      *seek.State
	seekable  bool
	watchdog  *Watchdog
	assembler *Assembler
	events    *events.Bus
	logger    *slog.Logger
	newID     func() string

	delivered uint64
	released  bool
	failed    bool
	last      *Record
	outbox    []func()

	stats atomic.Pointer[Stats]
}

// Stats is a snapshot of producer progress.
type Stats struct {
	Delivered       uint64 `json:"delivered"`
	EmptyStreak     uint32 `json:"empty_streak"`
	EmptyThreshold  uint32 `json:"empty_threshold"`
	GreyConversions uint64 `json:"grey_conversions"`
	First           uint64 `json:"first"`
	Last            uint64 `json:"last"`
	Bounded         bool   `json:"bounded"`
	Open            bool   `json:"open"`
	Failed          bool   `json:"failed"`
	SourceType      string `json:"source_type"`
	LastName        string `json:"last_name,omitempty"`
	LastFrameNumber uint64 `json:"last_frame_number"`
}

// New creates a producer reading from src. Unless src is a live device it
// is positioned at the first frame of the window.
func New(src capture.Source, opts ...Option) (*Producer, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("producer")
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	p := &Producer{
		source:    src,
		window:    cfg.Window,
		seek:      cfg.Seek,
		seekable:  src.Type().Seekable(),
		watchdog:  NewWatchdog(cfg.EmptyFrameThreshold),
		assembler: NewAssembler(cfg.Logger),
		events:    cfg.Events,
		logger:    cfg.Logger.With("source", src.Type().String()),
		newID:     cfg.NewID,
	}

	if p.seekable {
		if err := src.SetPosition(float64(cfg.Window.First)); err != nil {
			return nil, &FaultError{Op: "initial seek", Err: err}
		}
	}

	p.logger.Info("producer ready",
		"first", cfg.Window.First,
		"bounded", cfg.Window.Bounded(),
		"last", cfg.Window.Last,
		"seek", cfg.Seek != nil)
	p.publishStats(src.IsOpen())
	return p, nil
}

// Poll runs one acquisition cycle.
//
// It returns whether the source is still open and, when a frame was read,
// the batch. A nil batch with a nil error means no data this cycle. A
// non-nil error is fatal: open is false and later polls return
// ErrProducerFailed without touching the source.
func (p *Producer) Poll() (open bool, batch Batch, err error) {
	if p.failed {
		return false, nil, ErrProducerFailed
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			open, batch = false, nil
			err = &FaultError{Op: "poll", Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			p.fail(err)
		}
		pollDuration.Observe(time.Since(start).Seconds())
		p.publishStats(open)
		p.flush()
	}()

	return p.poll()
}

func (p *Producer) poll() (bool, Batch, error) {
	if p.window.Exhausted(p.delivered) {
		if err := p.releaseWindow(); err != nil {
			return false, nil, err
		}
	}

	if !p.source.IsOpen() {
		return false, nil, nil
	}

	if err := p.applySeek(); err != nil {
		return false, nil, err
	}

	name := p.source.NextFrameName()
	pos, err := p.source.Position()
	if err != nil {
		return false, nil, &FaultError{Op: "position", Err: err}
	}
	frames, err := p.source.Frames()
	if err != nil {
		closeFrames(frames)
		return false, nil, &FaultError{Op: "frames", Err: err}
	}

	empty := len(frames) == 0 || frames[0].Empty()
	if err := p.watchdog.Observe(empty); err != nil {
		closeFrames(frames)
		return false, nil, err
	}
	if empty {
		emptyPulls.Inc()
		p.logger.Debug("empty pull", "streak", p.watchdog.Count())
		closeFrames(frames)
		return true, nil, nil
	}

	calib := Calibration{
		Matrices:   p.source.CameraMatrices(),
		Extrinsics: p.source.CameraExtrinsics(),
		Intrinsics: p.source.CameraIntrinsics(),
	}
	conversions := p.assembler.Conversions()
	batch, err := p.assembler.Assemble(frames, calib, name, frameNumber(pos), p.newID())
	if err != nil {
		return false, nil, err
	}
	if p.assembler.Conversions() != conversions {
		greyConversions.Inc()
	}
	if batch == nil {
		return true, nil, nil
	}

	p.delivered++
	p.last = &Record{Name: batch[0].Name, FrameNumber: batch[0].FrameNumber}
	batchesDelivered.Inc()
	delivered := events.BatchDelivered{
		ID:          batch[0].ID,
		Name:        batch[0].Name,
		FrameNumber: batch[0].FrameNumber,
		Sensors:     len(batch),
		Delivered:   p.delivered,
		Time:        time.Now(),
	}
	p.queue(func() { events.Publish(p.events, delivered) })
	return true, batch, nil
}

// releaseWindow closes the source once the window is used up. Repeated
// calls only touch the source while it still reports open.
func (p *Producer) releaseWindow() error {
	if !p.source.IsOpen() {
		return nil
	}
	if err := p.source.Release(); err != nil {
		return &FaultError{Op: "release", Err: err}
	}
	if !p.released {
		p.released = true
		sourceReleases.Inc()
		p.logger.Info("frame window exhausted, source released", "delivered", p.delivered)
		released := events.SourceReleased{Delivered: p.delivered, Time: time.Now()}
		p.queue(func() { events.Publish(p.events, released) })
	}
	return nil
}

func (p *Producer) applySeek() error {
	var sk seek.Seeker
	if p.seekable {
		sk = p.source
	}
	increment, err := seek.Apply(p.seek, sk)
	if err != nil {
		return &FaultError{Op: "seek", Err: err}
	}
	if increment != 0 {
		seeksApplied.Inc()
		p.logger.Debug("seek applied", "increment", increment)
		applied := events.SeekApplied{Increment: increment, Time: time.Now()}
		p.queue(func() { events.Publish(p.events, applied) })
	}
	return nil
}

func (p *Producer) fail(err error) {
	p.failed = true
	fatalErrors.WithLabelValues(fatalKind(err)).Inc()
	p.logger.Error("producer stopped", "error", err, "delivered", p.delivered)
	failed := events.ProducerFailed{Error: err.Error(), Time: time.Now()}
	p.queue(func() { events.Publish(p.events, failed) })
}

// queue holds an event until the poll has stored its stats snapshot, so
// subscribers reading Stats see the state the event reports.
func (p *Producer) queue(publish func()) {
	if p.events != nil {
		p.outbox = append(p.outbox, publish)
	}
}

func (p *Producer) flush() {
	for _, publish := range p.outbox {
		publish()
	}
	p.outbox = p.outbox[:0]
}

func (p *Producer) publishStats(open bool) {
	s := &Stats{
		Delivered:       p.delivered,
		EmptyStreak:     p.watchdog.Count(),
		EmptyThreshold:  p.watchdog.Threshold(),
		GreyConversions: p.assembler.Conversions(),
		First:           p.window.First,
		Last:            p.window.Last,
		Bounded:         p.window.Bounded(),
		Open:            open,
		Failed:          p.failed,
		SourceType:      p.source.Type().String(),
	}
	if p.last != nil {
		s.LastName = p.last.Name
		s.LastFrameNumber = p.last.FrameNumber
	}
	p.stats.Store(s)
}

// Stats returns the snapshot taken at the end of the last poll.
func (p *Producer) Stats() Stats {
	return *p.stats.Load()
}

// Delivered returns the number of batches delivered so far.
func (p *Producer) Delivered() uint64 {
	return p.delivered
}

// Window returns the configured frame window.
func (p *Producer) Window() Window {
	return p.window
}

// Seek returns the shared seek state, or nil when seeking is disabled.
func (p *Producer) Seek() *seek.State {
	return p.seek
}

// Close releases the source.
func (p *Producer) Close() error {
	return p.source.Release()
}

func frameNumber(pos float64) uint64 {
	if pos < 0 {
		return 0
	}
	return uint64(pos)
}
