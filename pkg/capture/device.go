package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// DeviceOptions tunes a live device before the first read.
// Zero values leave the driver defaults in place.
type DeviceOptions struct {
	Width  int
	Height int
	FPS    float64
}

// DeviceSource reads from a camera index or a stream URL.
// It is not seekable: SetPosition is accepted and ignored.
type DeviceSource struct {
	device  string
	name    string
	capture *gocv.VideoCapture
	read    uint64

	mu       sync.Mutex
	released bool
}

// OpenDevice opens a camera. A numeric device is treated as a camera index,
// anything else as a URL or pipeline string.
func OpenDevice(device string, opts DeviceOptions) (*DeviceSource, error) {
	var target interface{} = device
	if id, err := strconv.Atoi(device); err == nil {
		target = id
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, &OpenError{Kind: LiveDevice, Target: device, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &OpenError{Kind: LiveDevice, Target: device, Err: errors.New("not opened")}
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, opts.FPS)
	}

	return &DeviceSource{
		device:  device,
		name:    deviceName(device),
		capture: vc,
	}, nil
}

// deviceName turns "0" into "camera0" and a URL into a filesystem-safe token.
func deviceName(device string) string {
	if _, err := strconv.Atoi(device); err == nil {
		return "camera" + device
	}
	r := strings.NewReplacer("://", "_", "/", "_", ":", "_", "?", "_", "&", "_", "=", "_")
	return r.Replace(device)
}

// IsOpen reports whether the device is still streaming.
func (d *DeviceSource) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.released && d.capture.IsOpened()
}

// Release closes the device.
func (d *DeviceSource) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	return d.capture.Close()
}

// Position returns the number of frames read so far.
func (d *DeviceSource) Position() (float64, error) {
	if !d.IsOpen() {
		return 0, ErrClosed
	}
	return float64(d.read), nil
}

// SetPosition is a no-op for live devices.
func (d *DeviceSource) SetPosition(float64) error {
	return nil
}

// NextFrameName returns "<device>_<frame index>".
func (d *DeviceSource) NextFrameName() string {
	return fmt.Sprintf("%s_%012d", d.name, d.read)
}

// Frames grabs the current frame. A failed grab is returned as a single
// empty Mat so the caller can account for it.
func (d *DeviceSource) Frames() ([]gocv.Mat, error) {
	if !d.IsOpen() {
		return nil, ErrClosed
	}

	mat := gocv.NewMat()
	if ok := d.capture.Read(&mat); ok && !mat.Empty() {
		d.read++
	}
	return []gocv.Mat{mat}, nil
}

// CameraMatrices returns nil; devices carry no calibration.
func (d *DeviceSource) CameraMatrices() []gocv.Mat { return nil }

// CameraExtrinsics returns nil; devices carry no calibration.
func (d *DeviceSource) CameraExtrinsics() []gocv.Mat { return nil }

// CameraIntrinsics returns nil; devices carry no calibration.
func (d *DeviceSource) CameraIntrinsics() []gocv.Mat { return nil }

// Type returns LiveDevice.
func (d *DeviceSource) Type() Type { return LiveDevice }
