package producer

import (
	"fmt"
	"math"
)

// Unbounded is the Last value of a window with no upper bound.
const Unbounded uint64 = math.MaxUint64

// Window is the inclusive [First, Last] range of frames to produce.
type Window struct {
	First uint64 `json:"first"`
	Last  uint64 `json:"last"`
}

// NewWindow validates and returns a window.
func NewWindow(first, last uint64) (Window, error) {
	w := Window{First: first, Last: last}
	return w, w.Validate()
}

// Validate rejects a window whose last frame precedes its first.
func (w Window) Validate() error {
	if w.Last < w.First {
		return fmt.Errorf("%w: first=%d last=%d", ErrInvalidWindow, w.First, w.Last)
	}
	return nil
}

// Bounded reports whether the window has an upper bound.
func (w Window) Bounded() bool {
	return w.Last != Unbounded
}

// FramesToProcess returns Last-First for bounded windows, Unbounded otherwise.
// Production stops once more than this many batches were delivered.
func (w Window) FramesToProcess() uint64 {
	if !w.Bounded() {
		return Unbounded
	}
	return w.Last - w.First
}

// Exhausted reports whether delivered batches have used up the window.
func (w Window) Exhausted(delivered uint64) bool {
	return w.Bounded() && delivered > w.FramesToProcess()
}
