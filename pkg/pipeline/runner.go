// Package pipeline drives a producer and hands every batch to a chain of
// consumers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/framegrab/internal/log"
	"github.com/teslashibe/framegrab/pkg/producer"
)

// Poller is the producer side of the pipeline. *producer.Producer
// implements it.
type Poller interface {
	Poll() (open bool, batch producer.Batch, err error)
}

// Consumer receives batches. The runner closes each batch after every
// consumer has seen it, so consumers must copy anything they keep.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, batch producer.Batch) error
}

// Runner polls a producer until it closes, fails or ctx is cancelled.
type Runner struct {
	poller    Poller
	consumers []Consumer
	idle      time.Duration
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConsumers appends consumers in delivery order.
func WithConsumers(c ...Consumer) Option {
	return func(r *Runner) { r.consumers = append(r.consumers, c...) }
}

// WithIdleBackoff sleeps d after a poll that produced no batch.
func WithIdleBackoff(d time.Duration) Option {
	return func(r *Runner) { r.idle = d }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner for p.
func NewRunner(p Poller, opts ...Option) *Runner {
	r := &Runner{poller: p}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Component("pipeline")
	}
	return r
}

// Run loops until the source closes (nil), ctx is cancelled (ctx.Err()),
// the producer fails, or a consumer returns an error.
func (r *Runner) Run(ctx context.Context) error {
	var batches uint64
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("pipeline cancelled", "batches", batches)
			return err
		}

		open, batch, err := r.poller.Poll()
		if err != nil {
			return fmt.Errorf("pipeline: poll: %w", err)
		}
		if !open {
			r.logger.Info("source closed",
				"batches", batches,
				"elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		}
		if batch == nil {
			if r.idle > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(r.idle):
				}
			}
			continue
		}

		batches++
		err = r.deliver(ctx, batch)
		batch.Close()
		if err != nil {
			return err
		}
	}
}

func (r *Runner) deliver(ctx context.Context, batch producer.Batch) error {
	for _, c := range r.consumers {
		if err := c.Consume(ctx, batch); err != nil {
			return fmt.Errorf("pipeline: consumer %s: %w", c.Name(), err)
		}
	}
	return nil
}
