package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrClosed is returned when a released source is queried.
	ErrClosed = errors.New("capture: source closed")

	// ErrNoImages is returned when an image directory holds no readable images.
	ErrNoImages = errors.New("capture: no images found")

	// ErrNoMembers is returned when a rig is built without member sources.
	ErrNoMembers = errors.New("capture: rig requires at least one member")

	// ErrUnknownKind is returned by Open for an unrecognized source kind.
	ErrUnknownKind = errors.New("capture: unknown source kind")

	// ErrBadCalibration is returned when calibration matrices have the wrong shape.
	ErrBadCalibration = errors.New("capture: invalid calibration")
)

// OpenError reports a source that could not be opened.
type OpenError struct {
	Kind   Type
	Target string
	Err    error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("capture [%s]: open %s: %v", e.Kind, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}
