package karotz

import (
	"context"
	"slices"
	"sync"
)

// Pulse speeds in milliseconds.
const (
	SpeedFast   = 300
	SpeedNormal = 700
	SpeedSlow   = 1500
)

// LED effect options.
const (
	EffectNone        = "none"
	EffectPulseFast   = "pulse_fast"
	EffectPulseNormal = "pulse_normal"
	EffectPulseSlow   = "pulse_slow"
)

// EffectOptions lists the LED effects in display order.
var EffectOptions = []string{EffectNone, EffectPulseFast, EffectPulseNormal, EffectPulseSlow}

var effectSpeeds = map[string]int{
	EffectPulseFast:   SpeedFast,
	EffectPulseNormal: SpeedNormal,
	EffectPulseSlow:   SpeedSlow,
}

// effectFallbackColor is used when an effect is chosen while the LED is dark.
const effectFallbackColor = "00FF00"

// LightOn holds the optional arguments of Light.TurnOn.
type LightOn struct {
	// RGB is the colour to show; nil keeps the current colour, or white
	// when the LED is off.
	RGB *RGB `json:"rgb,omitempty"`

	// Flash pulses the LED at normal speed.
	Flash bool `json:"flash,omitempty"`
}

// Light is the rabbit's RGB LED.
type Light struct {
	client *Client
	coord  *Coordinator
}

// Available reports whether the last status poll succeeded.
func (l *Light) Available() bool {
	return l.coord.LastUpdateSuccess()
}

// IsOn reports whether the LED shows a colour.
func (l *Light) IsOn() bool {
	return l.coord.Data().LightOn()
}

// RGB returns the current colour, nil when the LED is off or the colour
// cannot be parsed.
func (l *Light) RGB() *RGB {
	st := l.coord.Data()
	if !st.LightOn() {
		return nil
	}
	c, err := ParseHexColor(st.LEDColor())
	if err != nil {
		return nil
	}
	return &c
}

// TurnOn lights the LED.
func (l *Light) TurnOn(ctx context.Context, opts LightOn) bool {
	color := White
	switch {
	case opts.RGB != nil:
		color = *opts.RGB
	case l.RGB() != nil:
		color = *l.RGB()
	}

	led := LEDOptions{Color: color.Hex()}
	if opts.Flash {
		led.Pulse = true
		led.Speed = SpeedNormal
	}
	if !l.client.SetLED(ctx, led) {
		return false
	}
	l.apply(led.Color, led.Pulse)
	return true
}

// TurnOff darkens the LED.
func (l *Light) TurnOff(ctx context.Context) bool {
	if !l.client.SetLED(ctx, LEDOptions{Color: LEDOff}) {
		return false
	}
	l.apply(LEDOff, false)
	return true
}

func (l *Light) apply(color string, pulse bool) {
	l.coord.Patch(func(s Status) {
		s[KeyLEDColor] = color
		s[KeyLEDPulse] = boolParam(pulse)
	})
	l.coord.RequestRefresh()
}

// LEDEffect selects the LED pulse speed. The selected option is
// optimistic: the rabbit only reports whether it pulses, not how fast.
type LEDEffect struct {
	client *Client
	coord  *Coordinator

	mu      sync.Mutex
	current string
}

// Available reports whether the last status poll succeeded.
func (e *LEDEffect) Available() bool {
	return e.coord.LastUpdateSuccess()
}

// Options returns the selectable effects.
func (e *LEDEffect) Options() []string {
	return slices.Clone(EffectOptions)
}

// Current returns the selected effect. It is forced to "none" when the
// rabbit reports a steady LED.
func (e *LEDEffect) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pulse, ok := e.coord.Data().String(KeyLEDPulse); ok && pulse == "0" {
		e.current = EffectNone
	}
	return e.current
}

// Select applies an effect to the current colour.
func (e *LEDEffect) Select(ctx context.Context, option string) (bool, error) {
	if !slices.Contains(EffectOptions, option) {
		return false, ErrInvalidOption
	}

	color := e.coord.Data().StringOr(KeyLEDColor, effectFallbackColor)
	if color == LEDOff {
		color = effectFallbackColor
	}

	led := LEDOptions{Color: color}
	if option != EffectNone {
		led.Pulse = true
		led.Speed = effectSpeeds[option]
	}
	if !e.client.SetLED(ctx, led) {
		return false, nil
	}

	e.mu.Lock()
	e.current = option
	e.mu.Unlock()

	e.coord.Patch(func(s Status) {
		s[KeyLEDPulse] = boolParam(led.Pulse)
	})
	e.coord.RequestRefresh()
	return true, nil
}
