package karotz

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Device-native scales.
const (
	EarsMax   = 16
	VolumeMax = 20
)

// volumeEpsilon absorbs float error so 0.6*20 stays 12 under ceil.
const volumeEpsilon = 1e-9

// PercentToEars converts a 0-100 position to the 0-16 ear scale, rounding
// down.
func PercentToEars(percent int) int {
	p := clamp(percent, 0, 100)
	return clamp(int(math.Floor(float64(p)/100*EarsMax)), 0, EarsMax)
}

// EarsToPercent converts a 0-16 ear position to 0-100, rounding up so that
// PercentToEars(EarsToPercent(e)) == e.
func EarsToPercent(ears int) int {
	e := clamp(ears, 0, EarsMax)
	return int(math.Ceil(float64(e) * 100 / EarsMax))
}

// LevelToVolume converts a 0.0-1.0 level to the 0-20 volume scale, rounding
// up.
func LevelToVolume(level float64) int {
	if math.IsNaN(level) {
		return 0
	}
	return clamp(int(math.Ceil(level*VolumeMax-volumeEpsilon)), 0, VolumeMax)
}

// VolumeToLevel converts a 0-20 volume to a 0.0-1.0 level.
func VolumeToLevel(volume int) float64 {
	return float64(clamp(volume, 0, VolumeMax)) / VolumeMax
}

// PercentToVolume converts a 0-100 percentage to the 0-20 volume scale,
// rounding up.
func PercentToVolume(percent int) int {
	p := clamp(percent, 0, 100)
	return (p*VolumeMax + 99) / 100
}

// RGB is an LED colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// White is the colour used when the light is turned on without one.
var White = RGB{R: 255, G: 255, B: 255}

// ParseHexColor parses six hex digits, with or without a leading '#'.
func ParseHexColor(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid colour %q: want 6 hex digits", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return RGB{R: b[0], G: b[1], B: b[2]}, nil
}

// Hex returns the colour as six lowercase hex digits without a marker.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
