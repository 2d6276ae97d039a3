package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gocv.io/x/gocv"

	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/producer"
)

var (
	framesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_frames_saved_total",
		Help: "Total number of sensor images written to disk",
	})

	previewsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_previews_broadcast_total",
		Help: "Total number of JPEG previews broadcast to websocket clients",
	})
)

// ErrWriteFailed is returned when gocv cannot write an image.
var ErrWriteFailed = errors.New("pipeline: image write failed")

// FrameSaver writes the output image of every sensor of every Nth batch
// into a directory as <name>_s<sensor>.<ext>.
type FrameSaver struct {
	dir    string
	every  uint64
	ext    string
	seen   uint64
	logger *slog.Logger
}

// NewFrameSaver creates dir if needed. every <= 1 saves every batch; ext
// defaults to ".png".
func NewFrameSaver(dir string, every uint64, ext string) (*FrameSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create output dir: %w", err)
	}
	if every == 0 {
		every = 1
	}
	if ext == "" {
		ext = ".png"
	}
	return &FrameSaver{
		dir:    dir,
		every:  every,
		ext:    ext,
		logger: log.Component("saver"),
	}, nil
}

// Name returns "saver".
func (s *FrameSaver) Name() string { return "saver" }

// Consume writes the batch when it falls on the save interval.
func (s *FrameSaver) Consume(_ context.Context, batch producer.Batch) error {
	s.seen++
	if (s.seen-1)%s.every != 0 {
		return nil
	}
	for i := range batch {
		path := s.Path(batch[i].Name, i)
		if !gocv.IMWrite(path, batch[i].Output) {
			return fmt.Errorf("%w: %s", ErrWriteFailed, path)
		}
		framesSaved.Inc()
	}
	s.logger.Debug("batch saved", "name", batch[0].Name, "sensors", len(batch))
	return nil
}

// Path returns the file a sensor image of the named batch is written to.
func (s *FrameSaver) Path(name string, sensor int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_s%d%s", name, sensor, s.ext))
}

// FrameSink receives encoded previews. *hub.Hub implements it.
type FrameSink interface {
	BroadcastBinary(data []byte)
	ClientCount() int
}

// Broadcaster JPEG-encodes the primary output of each batch and sends it
// to a FrameSink. Nothing is encoded while the sink has no clients.
type Broadcaster struct {
	sink    FrameSink
	quality int
}

// NewBroadcaster creates a broadcaster. quality is the JPEG quality
// (1-100); out-of-range values select 80.
func NewBroadcaster(sink FrameSink, quality int) *Broadcaster {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Broadcaster{sink: sink, quality: quality}
}

// Name returns "broadcaster".
func (b *Broadcaster) Name() string { return "broadcaster" }

// Consume encodes and broadcasts the primary record.
func (b *Broadcaster) Consume(_ context.Context, batch producer.Batch) error {
	if b.sink.ClientCount() == 0 {
		return nil
	}
	rec := batch.Primary()
	if rec == nil || rec.Output.Empty() {
		return nil
	}

	data, err := EncodeJPEG(rec.Output, b.quality)
	if err != nil {
		return err
	}
	b.sink.BroadcastBinary(data)
	previewsSent.Inc()
	return nil
}

// EncodeJPEG encodes img and returns a Go-owned copy of the bytes.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode jpeg: %w", err)
	}
	defer buf.Close()

	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
