package capture

import (
	"fmt"
	"sort"
	"strings"
)

// Preset names for common device configurations
const (
	PresetVGA   = "vga"
	Preset720p  = "720p"
	Preset1080p = "1080p"
	Preset4K    = "4k"
)

// Presets returns all available device presets.
func Presets() map[string]DeviceOptions {
	return map[string]DeviceOptions{
		PresetVGA:   {Width: 640, Height: 480, FPS: 30},
		Preset720p:  {Width: 1280, Height: 720, FPS: 30},
		Preset1080p: {Width: 1920, Height: 1080, FPS: 30},
		// Lower framerate for 4K
		Preset4K: {Width: 3840, Height: 2160, FPS: 15},
	}
}

// PresetNames returns the sorted preset names.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *DeviceOptions {
	if opts, ok := Presets()[strings.ToLower(name)]; ok {
		return &opts
	}
	return nil
}

// deviceOptions resolves s.Preset, letting explicit width,
// height and fps override it field by field.
func (s Spec) deviceOptions() (DeviceOptions, error) {
	var opts DeviceOptions
	if s.Preset != "" {
		p := GetPreset(s.Preset)
		if p == nil {
			return opts, fmt.Errorf("source: unknown preset %q (have %s)", s.Preset, strings.Join(PresetNames(), ", "))
		}
		opts = *p
	}
	if s.Width > 0 {
		opts.Width = s.Width
	}
	if s.Height > 0 {
		opts.Height = s.Height
	}
	if s.FPS > 0 {
		opts.FPS = s.FPS
	}
	return opts, nil
}
