package producer

import "fmt"

// DefaultEmptyFrameThreshold is how many consecutive empty pulls end production.
const DefaultEmptyFrameThreshold = 500

// Watchdog counts consecutive empty pulls. It guards against sources that
// keep reporting open while delivering nothing, such as an unplugged camera.
type Watchdog struct {
	threshold uint32
	count     uint32
}

// NewWatchdog creates a watchdog. A zero threshold selects the default.
func NewWatchdog(threshold uint32) *Watchdog {
	if threshold == 0 {
		threshold = DefaultEmptyFrameThreshold
	}
	return &Watchdog{threshold: threshold}
}

// Observe records one pull. It returns an IntegrityError once the number of
// consecutive empty pulls reaches the threshold.
func (w *Watchdog) Observe(empty bool) error {
	if !empty {
		w.count = 0
		return nil
	}
	w.count++
	if w.count >= w.threshold {
		return &IntegrityError{
			Kind:    KindEmptyFrames,
			Message: fmt.Sprintf("detected too many (%d) empty frames in a row", w.count),
		}
	}
	return nil
}

// Count returns the current run of empty pulls.
func (w *Watchdog) Count() uint32 {
	return w.count
}

// Threshold returns the configured limit.
func (w *Watchdog) Threshold() uint32 {
	return w.threshold
}
