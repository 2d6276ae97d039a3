package producer

import "gocv.io/x/gocv"

// Record is one sensor's contribution to a batch.
//
// Input and Output start out as the same Mat. Stages that want to draw on
// Output without touching Input must clone first. Calibration Mats are
// borrowed from the source and stay valid until the source is released.
type Record struct {
	ID          string
	Name        string
	FrameNumber uint64

	Input  gocv.Mat
	Output gocv.Mat

	CameraMatrix     gocv.Mat
	CameraExtrinsics gocv.Mat
	CameraIntrinsics gocv.Mat
}

// HasCalibration reports whether the record carries calibration data.
func (r *Record) HasCalibration() bool {
	return r.CameraMatrix.Ptr() != nil && !r.CameraMatrix.Empty()
}

// Batch is the set of records produced by one poll, one per sensor.
// A nil Batch means no data.
type Batch []Record

// Primary returns record 0, or nil for an empty batch.
func (b Batch) Primary() *Record {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

// Close releases the pixel buffers of every record. Output is released
// separately only when a later stage replaced the alias.
func (b Batch) Close() {
	for i := range b {
		r := &b[i]
		if r.Output.Ptr() != nil && r.Output.Ptr() != r.Input.Ptr() {
			r.Output.Close()
		}
		if r.Input.Ptr() != nil {
			r.Input.Close()
		}
	}
}
