package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// RigSource reads a group of member sources in lockstep and exposes them
// as one multi-sensor source. Member 0 is the primary sensor: it names
// the frames and reports the position.
type RigSource struct {
	members []Source
	calib   *Calibration
}

// NewRig groups members into a rig. calib may be nil or cover fewer
// cameras than there are members. The rig takes ownership of calib.
func NewRig(members []Source, calib *Calibration) (*RigSource, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	if calib == nil {
		calib = &Calibration{}
	}
	return &RigSource{members: members, calib: calib}, nil
}

// Members returns the number of sensors in the rig.
func (r *RigSource) Members() int {
	return len(r.members)
}

// IsOpen reports whether every member is open.
func (r *RigSource) IsOpen() bool {
	for _, m := range r.members {
		if !m.IsOpen() {
			return false
		}
	}
	return true
}

// Release closes every member and the calibration.
func (r *RigSource) Release() error {
	var errs []error
	for i, m := range r.members {
		if err := m.Release(); err != nil {
			errs = append(errs, fmt.Errorf("member %d: %w", i, err))
		}
	}
	r.calib.Close()
	return errors.Join(errs...)
}

// Position returns the primary sensor's position.
func (r *RigSource) Position() (float64, error) {
	return r.members[0].Position()
}

// SetPosition moves every member to pos.
func (r *RigSource) SetPosition(pos float64) error {
	for i, m := range r.members {
		if err := m.SetPosition(pos); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return nil
}

// NextFrameName returns the primary sensor's next frame name.
func (r *RigSource) NextFrameName() string {
	return r.members[0].NextFrameName()
}

// Frames reads one frame from every member. If any member has nothing to
// give the whole set is dropped, so a batch is never missing a sensor.
func (r *RigSource) Frames() ([]gocv.Mat, error) {
	out := make([]gocv.Mat, 0, len(r.members))
	for i, m := range r.members {
		frames, err := m.Frames()
		if err != nil {
			closeAll(out)
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		if len(frames) == 0 {
			closeAll(out)
			return nil, nil
		}
		out = append(out, frames[0])
		closeAll(frames[1:])
	}
	return out, nil
}

// CameraMatrices returns the per-member projection matrices.
func (r *RigSource) CameraMatrices() []gocv.Mat { return r.calib.Matrices }

// CameraExtrinsics returns the per-member extrinsics.
func (r *RigSource) CameraExtrinsics() []gocv.Mat { return r.calib.Extrinsics }

// CameraIntrinsics returns the per-member intrinsics.
func (r *RigSource) CameraIntrinsics() []gocv.Mat { return r.calib.Intrinsics }

// Type returns SynchronizedRig.
func (r *RigSource) Type() Type { return SynchronizedRig }
