// Package capture provides the frame sources the producer pulls from:
// live devices, video files, image directories and synchronized rigs.
// Every source hands out gocv Mats; ownership of returned frames passes
// to the caller, calibration Mats stay owned by the source.
package capture

import "gocv.io/x/gocv"

// Type identifies the kind of capture source.
type Type int

const (
	// LiveDevice is a camera or stream that cannot be repositioned.
	LiveDevice Type = iota
	// File is a seekable video file.
	File
	// ImageDirectory is an ordered set of still images.
	ImageDirectory
	// SynchronizedRig is a group of sources read in lockstep.
	SynchronizedRig
)

// String returns the config name of the type.
func (t Type) String() string {
	switch t {
	case LiveDevice:
		return "device"
	case File:
		return "file"
	case ImageDirectory:
		return "images"
	case SynchronizedRig:
		return "rig"
	default:
		return "unknown"
	}
}

// Seekable reports whether positioning has any meaning for the type.
func (t Type) Seekable() bool {
	return t != LiveDevice
}

// Source is the capability set the producer consumes.
type Source interface {
	// IsOpen reports whether the source can still produce frames.
	IsOpen() bool

	// Release closes the source. Calling it more than once is safe.
	Release() error

	// Position returns the index of the next frame to be read.
	Position() (float64, error)

	// SetPosition moves the read head to an absolute frame index.
	SetPosition(pos float64) error

	// NextFrameName returns the name of the next frame to be read.
	NextFrameName() string

	// Frames reads one frame per sensor. An empty slice means no data this cycle.
	Frames() ([]gocv.Mat, error)

	// CameraMatrices returns per-sensor projection matrices, possibly empty.
	CameraMatrices() []gocv.Mat

	// CameraExtrinsics returns per-sensor [R|t] matrices, possibly empty.
	CameraExtrinsics() []gocv.Mat

	// CameraIntrinsics returns per-sensor K matrices, possibly empty.
	CameraIntrinsics() []gocv.Mat

	// Type returns the source kind.
	Type() Type
}

// closeAll releases a set of frames the caller will not hand out.
func closeAll(frames []gocv.Mat) {
	for i := range frames {
		frames[i].Close()
	}
}
