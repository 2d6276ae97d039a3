package seek

import "fmt"

// Seeker is the part of a capture source a seek touches.
type Seeker interface {
	Position() (float64, error)
	SetPosition(pos float64) error
}

// Apply consumes s and moves sk by the resulting increment. It returns the
// increment that was applied.
//
// A nil State does nothing. A nil Seeker still consumes the pending
// increment, which is how non-seekable sources discard seek commands.
func Apply(s *State, sk Seeker) (int64, error) {
	if s == nil {
		return 0, nil
	}

	increment := s.Take()
	if increment == 0 || sk == nil {
		return 0, nil
	}

	pos, err := sk.Position()
	if err != nil {
		return 0, fmt.Errorf("seek: get position: %w", err)
	}
	if err := sk.SetPosition(pos + float64(increment)); err != nil {
		return 0, fmt.Errorf("seek: set position %v: %w", pos+float64(increment), err)
	}
	return increment, nil
}
