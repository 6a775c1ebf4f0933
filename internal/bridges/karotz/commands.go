package karotz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Command names accepted over MQTT and REST.
const (
	CmdLightOn      = "light_on"
	CmdLightOff     = "light_off"
	CmdLEDEffect    = "led_effect"
	CmdEarsPosition = "ears_position"
	CmdEarsOpen     = "ears_open"
	CmdEarsClose    = "ears_close"
	CmdEarsRandom   = "ears_random"
	CmdSleep        = "sleep"
	CmdWakeup       = "wakeup"
	CmdPlayMedia    = "play_media"
	CmdTTS          = "tts"
	CmdPlaySound    = "play_sound"
	CmdMediaPause   = "media_pause"
	CmdMediaStop    = "media_stop"
	CmdVolumeSet    = "volume_set"
	CmdVolumeUp     = "volume_up"
	CmdVolumeDown   = "volume_down"
	CmdPlayMood     = "play_mood"
	CmdPlayRadio    = "play_radio"
	CmdRefresh      = "refresh"
)

// Commands lists every command Execute understands.
var Commands = []string{
	CmdLightOn, CmdLightOff, CmdLEDEffect,
	CmdEarsPosition, CmdEarsOpen, CmdEarsClose, CmdEarsRandom,
	CmdSleep, CmdWakeup,
	CmdPlayMedia, CmdTTS, CmdPlaySound, CmdMediaPause, CmdMediaStop,
	CmdVolumeSet, CmdVolumeUp, CmdVolumeDown,
	CmdPlayMood, CmdPlayRadio, CmdRefresh,
}

// CommandError is a failed command with its ack error code.
type CommandError struct {
	Code    string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func invalidParams(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidParameters, Message: fmt.Sprintf(format, args...)}
}

// Execute runs one command against a device. A nil error means the rabbit
// accepted it; otherwise the error is a *CommandError.
func Execute(ctx context.Context, d *Device, command string, params map[string]any) error {
	ok, err := dispatch(ctx, d, command, params)
	if err != nil {
		var cerr *CommandError
		if errors.As(err, &cerr) {
			return err
		}
		if errors.Is(err, ErrCannotConnect) {
			return &CommandError{Code: ErrCodeDeviceUnreachable, Message: err.Error(), Err: err}
		}
		return &CommandError{Code: ErrCodeCommandFailed, Message: err.Error(), Err: err}
	}
	if ok {
		return nil
	}

	// Action calls only report a bool; the poll state tells an unreachable
	// rabbit from a rejected command.
	if !d.Available() {
		return &CommandError{
			Code:    ErrCodeDeviceUnreachable,
			Message: fmt.Sprintf("device %s is unreachable", d.Info.ID),
			Err:     ErrCannotConnect,
		}
	}
	return &CommandError{
		Code:    ErrCodeCommandFailed,
		Message: fmt.Sprintf("device %s rejected %s", d.Info.ID, command),
		Err:     ErrCommandFailed,
	}
}

func dispatch(ctx context.Context, d *Device, command string, params map[string]any) (bool, error) {
	switch command {
	case CmdLightOn:
		return lightOn(ctx, d, params)
	case CmdLightOff:
		return d.Light.TurnOff(ctx), nil
	case CmdLEDEffect:
		option, err := stringParam(params, "option")
		if err != nil {
			return false, err
		}
		ok, err := d.LEDEffect.Select(ctx, option)
		if errors.Is(err, ErrInvalidOption) {
			return false, invalidParams("unknown option %q", option)
		}
		return ok, err
	case CmdEarsPosition:
		pos, err := numberParam(params, "position")
		if err != nil {
			return false, err
		}
		if pos < 0 || pos > 100 {
			return false, invalidParams("'position' must be 0-100, got %.2f", pos)
		}
		return d.Ears.SetPosition(ctx, int(pos)), nil
	case CmdEarsOpen:
		return d.Ears.Open(ctx), nil
	case CmdEarsClose:
		return d.Ears.Close(ctx), nil
	case CmdEarsRandom:
		return d.Ears.Random(ctx), nil
	case CmdSleep:
		return d.Sleep.TurnOn(ctx), nil
	case CmdWakeup:
		return d.Sleep.TurnOff(ctx), nil
	case CmdPlayMedia:
		mediaType, err := stringParam(params, "media_type")
		if err != nil {
			return false, err
		}
		mediaID, err := stringParam(params, "media_id")
		if err != nil {
			return false, err
		}
		return d.Media.PlayMedia(ctx, mediaType, mediaID), nil
	case CmdTTS:
		text, err := stringParam(params, "text")
		if err != nil {
			return false, err
		}
		voice, _ := optionalString(params, "voice")
		return d.Media.Speak(ctx, text, voice), nil
	case CmdPlaySound:
		id, err := stringParam(params, "id")
		if err != nil {
			return false, err
		}
		return d.Media.PlaySoundID(ctx, id), nil
	case CmdMediaPause:
		return d.Media.Pause(ctx), nil
	case CmdMediaStop:
		return d.Media.Stop(ctx), nil
	case CmdVolumeSet:
		level, err := numberParam(params, "level")
		if err != nil {
			return false, err
		}
		if level < 0 || level > 1 {
			return false, invalidParams("'level' must be 0.0-1.0, got %.2f", level)
		}
		return d.Media.SetVolumeLevel(ctx, level), nil
	case CmdVolumeUp:
		return d.Media.VolumeUp(ctx), nil
	case CmdVolumeDown:
		return d.Media.VolumeDown(ctx), nil
	case CmdPlayMood:
		id, err := stringParam(params, "id")
		if err != nil {
			return false, err
		}
		return d.Media.PlayMood(ctx, id), nil
	case CmdPlayRadio:
		id, err := stringParam(params, "id")
		if err != nil {
			return false, err
		}
		return d.Media.PlayRadio(ctx, id), nil
	case CmdRefresh:
		if _, err := d.Coordinator.Refresh(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, &CommandError{
			Code:    ErrCodeInvalidCommand,
			Message: fmt.Sprintf("unknown command: %s", command),
		}
	}
}

func lightOn(ctx context.Context, d *Device, params map[string]any) (bool, error) {
	var opts LightOn
	if raw, ok := params["rgb"]; ok && raw != nil {
		rgb, err := parseRGBParam(raw)
		if err != nil {
			return false, err
		}
		opts.RGB = &rgb
	}
	if raw, ok := params["flash"]; ok {
		flash, isBool := raw.(bool)
		if !isBool {
			return false, invalidParams("'flash' must be a boolean")
		}
		opts.Flash = flash
	}
	return d.Light.TurnOn(ctx, opts), nil
}

// parseRGBParam accepts [r, g, b] or a hex string.
func parseRGBParam(raw any) (RGB, error) {
	switch v := raw.(type) {
	case string:
		c, err := ParseHexColor(v)
		if err != nil {
			return RGB{}, invalidParams("'rgb': %v", err)
		}
		return c, nil
	case []any:
		if len(v) != 3 {
			return RGB{}, invalidParams("'rgb' must have 3 components")
		}
		var out [3]uint8
		for i, comp := range v {
			f, ok := comp.(float64)
			if !ok || f < 0 || f > 255 || f != math.Trunc(f) {
				return RGB{}, invalidParams("'rgb' components must be integers 0-255")
			}
			out[i] = uint8(f)
		}
		return RGB{R: out[0], G: out[1], B: out[2]}, nil
	default:
		return RGB{}, invalidParams("'rgb' must be [r, g, b] or a hex string")
	}
}

// stringParam returns a required string; numbers are accepted and
// formatted, since mood and radio ids are numeric on the rabbit.
func stringParam(params map[string]any, key string) (string, error) {
	s, present := optionalString(params, key)
	if !present {
		return "", invalidParams("missing '%s' parameter", key)
	}
	if s == "" {
		return "", invalidParams("'%s' must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", true
	}
}

func numberParam(params map[string]any, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, invalidParams("missing '%s' parameter", key)
	}
	f, ok := raw.(float64)
	if !ok || math.IsNaN(f) {
		return 0, invalidParams("'%s' must be a number", key)
	}
	return f, nil
}
