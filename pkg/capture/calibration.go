package capture

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

// CameraParams is one camera entry of a rig calibration file.
type CameraParams struct {
	Name       string      `yaml:"name"`
	Intrinsics [][]float64 `yaml:"intrinsics"` // 3x3 K
	Extrinsics [][]float64 `yaml:"extrinsics"` // 3x4 [R|t]
}

type calibrationFile struct {
	Cameras []CameraParams `yaml:"cameras"`
}

// Calibration holds per-camera matrices as CV_64F Mats.
// Index i belongs to rig member i.
type Calibration struct {
	Matrices   []gocv.Mat // K * [R|t], 3x4
	Extrinsics []gocv.Mat // 3x4
	Intrinsics []gocv.Mat // 3x3
}

// LoadCalibration reads a YAML calibration file.
func LoadCalibration(path string) (*Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	return ParseCalibration(data)
}

// ParseCalibration decodes calibration YAML:
//
//	cameras:
//	  - name: left
//	    intrinsics: [[fx, 0, cx], [0, fy, cy], [0, 0, 1]]
//	    extrinsics: [[r11, r12, r13, tx], [r21, r22, r23, ty], [r31, r32, r33, tz]]
func ParseCalibration(data []byte) (*Calibration, error) {
	var f calibrationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	return NewCalibration(f.Cameras)
}

// NewCalibration validates the parameters and builds the Mats.
func NewCalibration(cameras []CameraParams) (*Calibration, error) {
	for i, cam := range cameras {
		if !hasShape(cam.Intrinsics, 3, 3) {
			return nil, fmt.Errorf("%w: camera %d (%s) intrinsics must be 3x3", ErrBadCalibration, i, cam.Name)
		}
		if !hasShape(cam.Extrinsics, 3, 4) {
			return nil, fmt.Errorf("%w: camera %d (%s) extrinsics must be 3x4", ErrBadCalibration, i, cam.Name)
		}
	}

	c := &Calibration{}
	for _, cam := range cameras {
		c.Intrinsics = append(c.Intrinsics, matFromRows(cam.Intrinsics))
		c.Extrinsics = append(c.Extrinsics, matFromRows(cam.Extrinsics))
		c.Matrices = append(c.Matrices, matFromRows(multiply(cam.Intrinsics, cam.Extrinsics)))
	}
	return c, nil
}

// Len returns the number of calibrated cameras.
func (c *Calibration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Matrices)
}

// Close releases every Mat.
func (c *Calibration) Close() {
	if c == nil {
		return
	}
	closeAll(c.Matrices)
	closeAll(c.Extrinsics)
	closeAll(c.Intrinsics)
	c.Matrices, c.Extrinsics, c.Intrinsics = nil, nil, nil
}

func hasShape(m [][]float64, rows, cols int) bool {
	if len(m) != rows {
		return false
	}
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}

// multiply returns a*b for row-major matrices of compatible shape.
func multiply(a, b [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = make([]float64, len(b[0]))
		for j := range b[0] {
			var sum float64
			for k := range b {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func matFromRows(rows [][]float64) gocv.Mat {
	m := gocv.NewMatWithSize(len(rows), len(rows[0]), gocv.MatTypeCV64F)
	for r, row := range rows {
		for c, v := range row {
			m.SetDoubleAt(r, c, v)
		}
	}
	return m
}
