package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultImageExtensions are the file types an image directory picks up.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

// ImageDirSource serves the images of a directory in lexical order.
// Images are read with their stored channel count so greyscale input
// reaches the producer unconverted.
type ImageDirSource struct {
	dir   string
	files []string
	next  int

	mu       sync.Mutex
	released bool
}

// OpenImageDir lists the images in dir. An empty extension list selects
// DefaultImageExtensions.
func OpenImageDir(dir string, extensions []string) (*ImageDirSource, error) {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &OpenError{Kind: ImageDirectory, Target: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &OpenError{Kind: ImageDirectory, Target: dir, Err: ErrNoImages}
	}
	sort.Strings(files)

	return &ImageDirSource{dir: dir, files: files}, nil
}

// Len returns the number of images in the directory.
func (s *ImageDirSource) Len() int {
	return len(s.files)
}

// IsOpen reports whether the source has not been released.
func (s *ImageDirSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released
}

// Release marks the source closed.
func (s *ImageDirSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// Position returns the index of the next image.
func (s *ImageDirSource) Position() (float64, error) {
	if !s.IsOpen() {
		return 0, ErrClosed
	}
	return float64(s.next), nil
}

// SetPosition jumps to an image index, clamped to the directory.
func (s *ImageDirSource) SetPosition(pos float64) error {
	if !s.IsOpen() {
		return ErrClosed
	}
	switch {
	case pos < 0:
		s.next = 0
	case pos >= float64(len(s.files)):
		s.next = len(s.files)
	default:
		s.next = int(pos)
	}
	return nil
}

// NextFrameName returns the base name of the next image without extension.
func (s *ImageDirSource) NextFrameName() string {
	if s.next >= len(s.files) {
		return ""
	}
	base := filepath.Base(s.files[s.next])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Frames reads the next image. Past the last image the source releases itself.
func (s *ImageDirSource) Frames() ([]gocv.Mat, error) {
	if !s.IsOpen() {
		return nil, ErrClosed
	}
	if s.next >= len(s.files) {
		return nil, s.Release()
	}

	mat := gocv.IMRead(s.files[s.next], gocv.IMReadAnyColor)
	s.next++
	return []gocv.Mat{mat}, nil
}

// CameraMatrices returns nil; image directories carry no calibration.
func (s *ImageDirSource) CameraMatrices() []gocv.Mat { return nil }

// CameraExtrinsics returns nil; image directories carry no calibration.
func (s *ImageDirSource) CameraExtrinsics() []gocv.Mat { return nil }

// CameraIntrinsics returns nil; image directories carry no calibration.
func (s *ImageDirSource) CameraIntrinsics() []gocv.Mat { return nil }

// Type returns ImageDirectory.
func (s *ImageDirSource) Type() Type { return ImageDirectory }
