package capture

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// FileSource reads frames from a video file through OpenCV.
type FileSource struct {
	path       string
	base       string
	capture    *gocv.VideoCapture
	frameCount float64

	mu       sync.Mutex
	released bool
}

// OpenFile opens a video file for reading.
func OpenFile(path string) (*FileSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, &OpenError{Kind: File, Target: path, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &OpenError{Kind: File, Target: path, Err: errors.New("not opened")}
	}

	base := filepath.Base(path)
	return &FileSource{
		path:       path,
		base:       strings.TrimSuffix(base, filepath.Ext(base)),
		capture:    vc,
		frameCount: vc.Get(gocv.VideoCaptureFrameCount),
	}, nil
}

// Path returns the file being read.
func (f *FileSource) Path() string {
	return f.path
}

// FrameCount returns the number of frames the container reports.
func (f *FileSource) FrameCount() float64 {
	return f.frameCount
}

// IsOpen reports whether frames can still be read.
func (f *FileSource) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.released && f.capture.IsOpened()
}

// Release closes the underlying capture.
func (f *FileSource) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true
	return f.capture.Close()
}

// Position returns the index of the next frame to be decoded.
func (f *FileSource) Position() (float64, error) {
	if !f.IsOpen() {
		return 0, ErrClosed
	}
	return f.capture.Get(gocv.VideoCapturePosFrames), nil
}

// SetPosition seeks to an absolute frame index, clamped to the file.
func (f *FileSource) SetPosition(pos float64) error {
	if !f.IsOpen() {
		return ErrClosed
	}
	if pos < 0 {
		pos = 0
	}
	if f.frameCount > 0 && pos > f.frameCount {
		pos = f.frameCount
	}
	f.capture.Set(gocv.VideoCapturePosFrames, pos)
	return nil
}

// NextFrameName returns "<file>_<frame index>".
func (f *FileSource) NextFrameName() string {
	pos, err := f.Position()
	if err != nil {
		return f.base
	}
	return fmt.Sprintf("%s_%012d", f.base, int64(pos))
}

// Frames decodes the next frame. At end of file the source releases itself
// and returns no frames.
func (f *FileSource) Frames() ([]gocv.Mat, error) {
	if !f.IsOpen() {
		return nil, ErrClosed
	}

	mat := gocv.NewMat()
	if ok := f.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if f.atEnd() {
			return nil, f.Release()
		}
		return nil, nil
	}
	return []gocv.Mat{mat}, nil
}

func (f *FileSource) atEnd() bool {
	if f.frameCount <= 0 {
		return true
	}
	return f.capture.Get(gocv.VideoCapturePosFrames) >= f.frameCount
}

// CameraMatrices returns nil; files carry no calibration.
func (f *FileSource) CameraMatrices() []gocv.Mat { return nil }

// CameraExtrinsics returns nil; files carry no calibration.
func (f *FileSource) CameraExtrinsics() []gocv.Mat { return nil }

// CameraIntrinsics returns nil; files carry no calibration.
func (f *FileSource) CameraIntrinsics() []gocv.Mat { return nil }

// Type returns File.
func (f *FileSource) Type() Type { return File }
