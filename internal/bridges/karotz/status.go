package karotz

import (
	"encoding/json"
	"maps"
	"strconv"
)

// Status keys read by the entities.
const (
	KeySleep     = "sleep"
	KeyLEDColor  = "led_color"
	KeyLEDPulse  = "led_pulse"
	KeyVolume    = "volume"
	KeyVersion   = "version"
	KeySleepTime = "sleep_time"
)

// LEDOff is the led_color value of a dark LED.
const LEDOff = "000000"

// DiagnosticKeys lists the status keys exposed by the diagnostics sensor.
var DiagnosticKeys = []string{
	KeyVersion,
	"wlan_mac",
	"eth_mac",
	"karotz_free_space",
	"karotz_percent_used_space",
	"usb_free_space",
	"usb_percent_used_space",
	"tts_cache_size",
	"nb_tags",
	"nb_moods",
	"nb_sounds",
	"nb_stories",
	KeySleepTime,
}

// numericKeys are written to the time-series store when they parse as numbers.
var numericKeys = []string{
	KeySleep,
	KeyVolume,
	KeyLEDPulse,
	KeySleepTime,
	"karotz_percent_used_space",
	"usb_percent_used_space",
	"tts_cache_size",
	"nb_tags",
	"nb_moods",
	"nb_sounds",
	"nb_stories",
}

// Status is the open key/value bag returned by the /cgi-bin/status endpoint.
// Values are strings or json.Number; readers accept either and fall back to
// a default when a key is missing or malformed.
type Status map[string]any

// Clone returns a shallow copy. Values are immutable scalars so a shallow
// copy is a full copy.
func (s Status) Clone() Status {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// String returns the value for key rendered as a string.
func (s Status) String(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case bool:
		if val {
			return "1", true
		}
		return "0", true
	default:
		return "", false
	}
}

// StringOr returns the value for key, or def when it is missing.
func (s Status) StringOr(key, def string) string {
	if v, ok := s.String(key); ok {
		return v
	}
	return def
}

// Float returns the value for key as a number.
func (s Status) Float(key string) (float64, bool) {
	str, ok := s.String(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IntOr returns the value for key as an integer, or def when it is missing
// or not a number.
func (s Status) IntOr(key string, def int) int {
	f, ok := s.Float(key)
	if !ok {
		return def
	}
	return int(f)
}

// IsSleeping reports whether the rabbit is asleep (sleep == "1").
func (s Status) IsSleeping() bool {
	return s.StringOr(KeySleep, "0") == "1"
}

// LEDColor returns the LED colour as six hex digits, LEDOff when unknown.
func (s Status) LEDColor() string {
	return s.StringOr(KeyLEDColor, LEDOff)
}

// LEDPulse reports whether the LED is pulsing.
func (s Status) LEDPulse() bool {
	return s.StringOr(KeyLEDPulse, "0") == "1"
}

// LightOn reports whether the LED shows any colour.
func (s Status) LightOn() bool {
	return s.LEDColor() != LEDOff
}

// Volume returns the device volume on its native 0-20 scale.
func (s Status) Volume() int {
	return clamp(s.IntOr(KeyVolume, 0), 0, VolumeMax)
}

// VolumeLevel returns the volume on a 0.0-1.0 scale.
func (s Status) VolumeLevel() float64 {
	return VolumeToLevel(s.Volume())
}

// Firmware returns the reported firmware version, empty when unknown.
func (s Status) Firmware() string {
	return s.StringOr(KeyVersion, "")
}

// Diagnostics returns the diagnostic keys present in the snapshot.
func (s Status) Diagnostics() map[string]string {
	out := make(map[string]string, len(DiagnosticKeys))
	for _, k := range DiagnosticKeys {
		if v, ok := s.String(k); ok {
			out[k] = v
		}
	}
	return out
}

// NumericFields returns every numeric status key as a float, for the
// time-series store.
func (s Status) NumericFields() map[string]any {
	out := make(map[string]any, len(numericKeys))
	for _, k := range numericKeys {
		if f, ok := s.Float(k); ok {
			out[k] = f
		}
	}
	return out
}
