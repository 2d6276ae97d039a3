// Package seek holds the shared pause/seek signal an interactive controller
// writes and the producer consumes once per poll.
//
// The two fields are independent atomics. Pending increments are taken with
// an atomic swap, so a command that lands while a poll is reading is carried
// to the next poll instead of being lost or applied twice. The pause offset
// is recomputed from the current flag on every poll.
package seek

import "sync/atomic"

// State is the shared seek/pause signal. The zero value is ready to use.
type State struct {
	paused  atomic.Bool
	pending atomic.Int64
}

// New returns an unpaused State with nothing pending.
func New() *State {
	return &State{}
}

// SetPaused sets the pause flag.
func (s *State) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// TogglePause flips the pause flag and returns the new value.
func (s *State) TogglePause() bool {
	for {
		old := s.paused.Load()
		if s.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Paused reports the pause flag.
func (s *State) Paused() bool {
	return s.paused.Load()
}

// Add queues a relative seek of n frames. Calls accumulate until the next poll.
func (s *State) Add(n int64) {
	s.pending.Add(n)
}

// Pending returns the queued increment without consuming it.
func (s *State) Pending() int64 {
	return s.pending.Load()
}

// Take consumes the queued increment, resetting it to zero, and returns the
// net position adjustment for this poll. While paused one frame is
// subtracted to cancel the read head's natural advance.
func (s *State) Take() int64 {
	increment := s.pending.Swap(0)
	if s.paused.Load() {
		increment--
	}
	return increment
}

// Snapshot is a point-in-time copy of the State.
type Snapshot struct {
	Paused  bool  `json:"paused"`
	Pending int64 `json:"pending"`
}

// Snapshot returns the current values.
func (s *State) Snapshot() Snapshot {
	return Snapshot{Paused: s.paused.Load(), Pending: s.pending.Load()}
}
