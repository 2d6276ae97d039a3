package producer

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInvalidWindow is returned when the last frame precedes the first.
	ErrInvalidWindow = errors.New("producer: frame window last < first")

	// ErrNilSource is returned when New is called without a source.
	ErrNilSource = errors.New("producer: source required")

	// ErrUnsupportedChannels is wrapped when a primary frame is neither 1 nor 3 channels.
	ErrUnsupportedChannels = errors.New("producer: input images must be 3-channel BGR")

	// ErrTooManyEmptyFrames is wrapped when the empty-frame watchdog trips.
	ErrTooManyEmptyFrames = errors.New("producer: too many consecutive empty frames")

	// ErrProducerFailed is returned by every poll after a fatal error.
	ErrProducerFailed = errors.New("producer: unusable after fatal error")
)

// IntegrityKind classifies an IntegrityError.
type IntegrityKind int

const (
	// KindChannels is an unsupported pixel channel count.
	KindChannels IntegrityKind = iota
	// KindEmptyFrames is a tripped empty-frame watchdog.
	KindEmptyFrames
)

// String returns a short name for the kind.
func (k IntegrityKind) String() string {
	switch k {
	case KindChannels:
		return "channels"
	case KindEmptyFrames:
		return "empty_frames"
	default:
		return "unknown"
	}
}

// IntegrityError is a fatal data-integrity violation. The producer cannot be
// polled usefully once one is returned.
type IntegrityError struct {
	Kind    IntegrityKind
	Message string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("producer [%s]: %s", e.Kind, e.Message)
}

// Unwrap returns the sentinel for the kind.
func (e *IntegrityError) Unwrap() error {
	switch e.Kind {
	case KindChannels:
		return ErrUnsupportedChannels
	case KindEmptyFrames:
		return ErrTooManyEmptyFrames
	default:
		return nil
	}
}

// FaultError wraps a failure raised by the capture source during a poll.
type FaultError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	return fmt.Sprintf("producer: source fault during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the producer unusable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ie *IntegrityError
	var fe *FaultError
	return errors.As(err, &ie) || errors.As(err, &fe) || errors.Is(err, ErrProducerFailed)
}
