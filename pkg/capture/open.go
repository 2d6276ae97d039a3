package capture

import (
	"fmt"
	"strings"
)

// Spec describes a source to open. It is the `source` section of the
// framegrab config file.
type Spec struct {
	// Kind is one of "device", "file", "images" or "rig".
	Kind string `yaml:"kind" toml:"kind" env:"KIND"`

	// Device is a camera index or stream URL (kind=device). Preset picks a
	// resolution from Presets; Width, Height and FPS override it.
	Device string  `yaml:"device" toml:"device" env:"DEVICE"`
	Preset string  `yaml:"preset" toml:"preset" env:"PRESET"`
	Width  int     `yaml:"width" toml:"width" env:"WIDTH"`
	Height int     `yaml:"height" toml:"height" env:"HEIGHT"`
	FPS    float64 `yaml:"fps" toml:"fps" env:"FPS"`

	// Path is a video file (kind=file) or a directory (kind=images).
	Path       string   `yaml:"path" toml:"path" env:"PATH"`
	Extensions []string `yaml:"extensions" toml:"extensions" env:"EXTENSIONS"`

	// Members and CalibrationFile describe a rig (kind=rig).
	Members         []Spec `yaml:"members" toml:"members"`
	CalibrationFile string `yaml:"calibration_file" toml:"calibration_file" env:"CALIBRATION_FILE"`
}

// Validate checks that the fields the kind needs are present.
func (s Spec) Validate() error {
	switch strings.ToLower(s.Kind) {
	case "device":
		if s.Device == "" {
			return fmt.Errorf("source: device kind requires device")
		}
		if _, err := s.deviceOptions(); err != nil {
			return err
		}
	case "file", "images":
		if s.Path == "" {
			return fmt.Errorf("source: %s kind requires path", s.Kind)
		}
	case "rig":
		if len(s.Members) == 0 {
			return ErrNoMembers
		}
		for i, m := range s.Members {
			if strings.EqualFold(m.Kind, "rig") {
				return fmt.Errorf("source: rig member %d cannot be a rig", i)
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("rig member %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return nil
}

// Open builds the source described by spec.
func Open(spec Spec) (Source, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(spec.Kind) {
	case "device":
		opts, err := spec.deviceOptions()
		if err != nil {
			return nil, err
		}
		return OpenDevice(spec.Device, opts)
	case "file":
		return OpenFile(spec.Path)
	case "images":
		return OpenImageDir(spec.Path, spec.Extensions)
	default:
		return openRig(spec)
	}
}

func openRig(spec Spec) (Source, error) {
	var calib *Calibration
	if spec.CalibrationFile != "" {
		c, err := LoadCalibration(spec.CalibrationFile)
		if err != nil {
			return nil, err
		}
		calib = c
	}

	members := make([]Source, 0, len(spec.Members))
	for i, m := range spec.Members {
		src, err := Open(m)
		if err != nil {
			for _, opened := range members {
				opened.Release()
			}
			calib.Close()
			return nil, fmt.Errorf("rig member %d: %w", i, err)
		}
		members = append(members, src)
	}
	return NewRig(members, calib)
}
