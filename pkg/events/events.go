// Package events broadcasts producer lifecycle events to interested
// components (control server, CLI) on top of kelindar/event.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Event type identifiers for kelindar/event.
const (
	TypeBatchDelivered uint32 = iota + 1
	TypeSourceReleased
	TypeProducerFailed
	TypeSeekApplied
)

// Event is the interface kelindar/event dispatches on.
type Event interface {
	Type() uint32
}

// BatchDelivered is published for every batch handed to the caller.
type BatchDelivered struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FrameNumber uint64    `json:"frame_number"`
	Sensors     int       `json:"sensors"`
	Delivered   uint64    `json:"delivered"`
	Time        time.Time `json:"time"`
}

// Type returns TypeBatchDelivered.
func (BatchDelivered) Type() uint32 { return TypeBatchDelivered }

// SourceReleased is published when the producer closes its source at the
// end of the frame window.
type SourceReleased struct {
	Delivered uint64    `json:"delivered"`
	Time      time.Time `json:"time"`
}

// Type returns TypeSourceReleased.
func (SourceReleased) Type() uint32 { return TypeSourceReleased }

// ProducerFailed is published when a poll ends in a fatal error.
type ProducerFailed struct {
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// Type returns TypeProducerFailed.
func (ProducerFailed) Type() uint32 { return TypeProducerFailed }

// SeekApplied is published when a seek moved the source.
type SeekApplied struct {
	Increment int64     `json:"increment"`
	Time      time.Time `json:"time"`
}

// Type returns TypeSeekApplied.
func (SeekApplied) Type() uint32 { return TypeSeekApplied }

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.dispatcher.Close()
}

// Publish sends ev to every subscriber of its type. A nil bus drops it.
func Publish[T Event](b *Bus, ev T) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers handler for events of type T and returns the
// unsubscribe function. Handlers run on the dispatcher's goroutines.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	if b == nil {
		return func() {}
	}
	return event.Subscribe(b.dispatcher, handler)
}
