package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Mock implements Source for testing.
// Behaviour can be customized via function fields; by default it acts
// like a seekable file whose position advances once per non-empty read.
type Mock struct {
	// Kind is returned by Type. Defaults to File.
	Kind Type

	// FramesFunc is called when Frames is invoked.
	// If nil, Frames returns no data.
	FramesFunc func() ([]gocv.Mat, error)

	// PositionFunc overrides Position when set.
	PositionFunc func() (float64, error)

	// SetPositionFunc overrides SetPosition when set.
	SetPositionFunc func(pos float64) error

	// Calibration returned by the Camera* methods.
	Matrices   []gocv.Mat
	Extrinsics []gocv.Mat
	Intrinsics []gocv.Mat

	mu       sync.Mutex
	position float64
	released bool
	calls    []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Arg    float64
}

// NewMock creates a mock file-like source with no frames.
func NewMock() *Mock {
	return &Mock{Kind: File}
}

// FrameSequence returns a FramesFunc that serves next() per call until it
// returns false, after which the mock reports no data.
func FrameSequence(next func(i int) ([]gocv.Mat, bool)) func() ([]gocv.Mat, error) {
	i := 0
	return func() ([]gocv.Mat, error) {
		frames, ok := next(i)
		i++
		if !ok {
			return nil, nil
		}
		return frames, nil
	}
}

// SolidFrame returns a rows x cols Mat of the given type filled with value.
func SolidFrame(rows, cols int, mt gocv.MatType, value float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, value), rows, cols, mt)
}

func (m *Mock) record(method string, arg float64) {
	m.calls = append(m.calls, MockCall{Method: method, Arg: arg})
}

// IsOpen reports whether Release has not been called.
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("IsOpen", 0)
	return !m.released
}

// Release marks the mock closed.
func (m *Mock) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Release", 0)
	m.released = true
	return nil
}

// Position returns the simulated read head.
func (m *Mock) Position() (float64, error) {
	m.mu.Lock()
	m.record("Position", m.position)
	fn := m.PositionFunc
	pos := m.position
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return pos, nil
}

// SetPosition moves the simulated read head.
func (m *Mock) SetPosition(pos float64) error {
	m.mu.Lock()
	m.record("SetPosition", pos)
	fn := m.SetPositionFunc
	if fn == nil {
		m.position = pos
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(pos)
	}
	return nil
}

// NextFrameName returns "frame_<position>".
func (m *Mock) NextFrameName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("NextFrameName", m.position)
	return fmt.Sprintf("frame_%012d", int64(m.position))
}

// Frames calls FramesFunc and advances the position when data was returned.
func (m *Mock) Frames() ([]gocv.Mat, error) {
	m.mu.Lock()
	m.record("Frames", m.position)
	fn := m.FramesFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	frames, err := fn()
	if err == nil && len(frames) > 0 {
		m.mu.Lock()
		m.position++
		m.mu.Unlock()
	}
	return frames, err
}

// CameraMatrices returns Matrices.
func (m *Mock) CameraMatrices() []gocv.Mat { return m.Matrices }

// CameraExtrinsics returns Extrinsics.
func (m *Mock) CameraExtrinsics() []gocv.Mat { return m.Extrinsics }

// CameraIntrinsics returns Intrinsics.
func (m *Mock) CameraIntrinsics() []gocv.Mat { return m.Intrinsics }

// Type returns Kind.
func (m *Mock) Type() Type { return m.Kind }

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Released reports whether Release was called.
func (m *Mock) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Reset clears the call log.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
