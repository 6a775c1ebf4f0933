package karotz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

// Client defaults.
const (
	DefaultActionTimeout   = 10 * time.Second
	DefaultSnapshotTimeout = 5 * time.Second
	DefaultVoice           = "claire"
)

// CGI endpoints under /cgi-bin/.
const (
	endpointStatus       = "status"
	endpointLEDs         = "leds"
	endpointTTS          = "tts"
	endpointSound        = "sound"
	endpointSoundControl = "sound_control"
	endpointEars         = "ears"
	endpointEarsRandom   = "ears_random"
	endpointSleep        = "sleep"
	endpointWakeup       = "wakeup"
	endpointSnapshot     = "snapshot_view"
	endpointMoods        = "moods"
	endpointRadio        = "radio"
)

// sound_control commands.
const (
	SoundPause   = "pause"
	SoundQuit    = "quit"
	SoundVolUp   = "volup"
	SoundVolDown = "voldown"
	soundVolume  = "vol"
)

// noSoundPlaying is the msg of the benign sound_control failure.
const noSoundPlaying = "No sound currently playing."

// Logger is the structured logging interface used across the package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// restyLogger routes resty's printf-style logging into Logger.
type restyLogger struct{ l Logger }

func (r restyLogger) Errorf(format string, v ...any) {
	r.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}

func (r restyLogger) Warnf(format string, v ...any) {
	r.l.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}

func (r restyLogger) Debugf(format string, v ...any) {
	r.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "resty")
}

// ClientConfig holds the settings for one rabbit's client.
type ClientConfig struct {
	// Host is the rabbit's address ("192.168.1.20" or "http://host:port").
	Host string

	// ActionTimeout bounds status and action calls. Default: 10s.
	ActionTimeout time.Duration

	// SnapshotTimeout bounds camera snapshots. Default: 5s.
	SnapshotTimeout time.Duration

	// DefaultVoice is used by TTS when no voice is given. Default: claire.
	DefaultVoice string

	// Logger is optional.
	Logger Logger
}

// LEDOptions describes an LED command.
type LEDOptions struct {
	// Color is six hex digits without a marker.
	Color string

	// Color2 is the optional secondary pulse colour.
	Color2 string

	// Pulse makes the LED blink between Color and Color2 (or black).
	Pulse bool

	// Speed is the pulse period in milliseconds, omitted when zero.
	Speed int
}

// Client translates typed calls into requests against the rabbit's CGI API.
//
// The only state it holds is the snapshot log-suppression flag, so one
// Client is shared by every consumer of a device.
type Client struct {
	host            string
	http            *resty.Client
	snap            *resty.Client
	actionTimeout   time.Duration
	snapshotTimeout time.Duration
	voice           string
	logger          Logger

	// snapshotFailing is set after a logged snapshot failure and cleared on
	// the next success.
	snapshotFailing atomic.Bool
}

// NewClient creates a client for one rabbit.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = DefaultVoice
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	base := BaseURL(cfg.Host)

	httpClient := resty.New().
		SetBaseURL(base).
		SetLogger(restyLogger{l: logger}).
		SetHeader("Accept", "application/json, text/plain, */*")

	// The image script on the rabbit breaks on compressed transfers, so the
	// snapshot client gets its own transport with compression off.
	snapClient := resty.New().
		SetBaseURL(base).
		SetLogger(restyLogger{l: logger}).
		SetTransport(&http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			DisableCompression: true,
			IdleConnTimeout:    90 * time.Second,
		})

	return &Client{
		host:            cfg.Host,
		http:            httpClient,
		snap:            snapClient,
		actionTimeout:   cfg.ActionTimeout,
		snapshotTimeout: cfg.SnapshotTimeout,
		voice:           cfg.DefaultVoice,
		logger:          logger,
	}
}

// BaseURL returns the CGI base URL for a host. A host without a scheme is
// reached over plain HTTP.
func BaseURL(host string) string {
	h := strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	return h + "/cgi-bin"
}

// Host returns the configured host.
func (c *Client) Host() string {
	return c.host
}

// Status fetches the full status blob.
//
// The endpoint labels its JSON as text/plain and carries no return field:
// any JSON object is a successful fetch. Every failure, logical or
// transport, is returned wrapping ErrCannotConnect.
func (c *Client) Status(ctx context.Context) (st Status, err error) {
	start := time.Now()
	result := metrics.ResultError
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("karotz status request panicked", "host", c.host, "panic", r)
			st, err = nil, fmt.Errorf("%w: unexpected failure: %v", ErrCannotConnect, r)
			result = metrics.ResultError
		}
		observe(endpointStatus, result, start)
	}()

	body, code, err := c.get(ctx, c.http, endpointStatus, nil, c.actionTimeout)
	if err != nil {
		c.logger.Error("karotz unreachable", "host", c.host, "endpoint", endpointStatus, "error", err)
		return nil, err
	}

	result = metrics.ResultFailure
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("%w: %w: HTTP %d", ErrCannotConnect, ErrInvalidResponse, code)
	}

	st, err = decodeStatus(body)
	if err != nil {
		c.logger.Warn("karotz status unreadable", "host", c.host, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}

	result = metrics.ResultSuccess
	return st, nil
}

// SetLED sets the LED colour and pulse mode.
func (c *Client) SetLED(ctx context.Context, opts LEDOptions) bool {
	params := map[string]string{
		"color":     opts.Color,
		"pulse":     boolParam(opts.Pulse),
		"no_memory": "1",
	}
	if opts.Color2 != "" {
		params["color2"] = opts.Color2
	}
	if opts.Speed > 0 {
		params["speed"] = strconv.Itoa(opts.Speed)
	}
	return c.action(ctx, endpointLEDs, params)
}

// TTS speaks text. An empty voice uses the configured default.
func (c *Client) TTS(ctx context.Context, text, voice string) bool {
	if voice == "" {
		voice = c.voice
	}
	return c.action(ctx, endpointTTS, map[string]string{
		"text":    text,
		"voice":   voice,
		"nocache": "1",
	})
}

// PlaySound plays a remote sound by URL.
func (c *Client) PlaySound(ctx context.Context, url string) bool {
	return c.action(ctx, endpointSound, map[string]string{"url": url})
}

// PlaySoundID plays a sound stored on the rabbit.
func (c *Client) PlaySoundID(ctx context.Context, id string) bool {
	return c.action(ctx, endpointSound, map[string]string{"id": id})
}

// SoundControl sends a playback command (SoundPause, SoundQuit, SoundVolUp,
// SoundVolDown).
func (c *Client) SoundControl(ctx context.Context, cmd string) bool {
	return c.action(ctx, endpointSoundControl, map[string]string{"cmd": cmd})
}

// SetVolume sets the volume on the 0-20 scale.
func (c *Client) SetVolume(ctx context.Context, volume int) bool {
	return c.action(ctx, endpointSoundControl, map[string]string{
		"cmd": soundVolume,
		"v":   strconv.Itoa(clamp(volume, 0, VolumeMax)),
	})
}

// SetEars moves both ears to positions on the 0-16 scale.
func (c *Client) SetEars(ctx context.Context, left, right int) bool {
	return c.action(ctx, endpointEars, map[string]string{
		"left":      strconv.Itoa(clamp(left, 0, EarsMax)),
		"right":     strconv.Itoa(clamp(right, 0, EarsMax)),
		"no_memory": "1",
	})
}

// EarsRandom moves the ears to random positions.
func (c *Client) EarsRandom(ctx context.Context) bool {
	return c.action(ctx, endpointEarsRandom, nil)
}

// Sleep puts the rabbit to sleep.
func (c *Client) Sleep(ctx context.Context) bool {
	return c.action(ctx, endpointSleep, nil)
}

// Wakeup wakes the rabbit, without the wake-up sound when silent.
func (c *Client) Wakeup(ctx context.Context, silent bool) bool {
	var params map[string]string
	if silent {
		params = map[string]string{"silent": "1"}
	}
	return c.action(ctx, endpointWakeup, params)
}

// PlayMood plays a stored mood.
func (c *Client) PlayMood(ctx context.Context, id string) bool {
	return c.action(ctx, endpointMoods, map[string]string{"id": id})
}

// PlayRadio plays a preset radio station.
func (c *Client) PlayRadio(ctx context.Context, id string) bool {
	return c.action(ctx, endpointRadio, map[string]string{"id": id})
}

// Snapshot returns a JPEG from the camera, or nil when none could be read.
//
// A failure is logged at warn once; later failures log at debug until a
// successful snapshot clears the flag.
func (c *Client) Snapshot(ctx context.Context) (img []byte) {
	start := time.Now()
	result := metrics.ResultFailure
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("karotz snapshot panicked", "host", c.host, "panic", r)
			img = nil
			result = metrics.ResultError
		}
		observe(endpointSnapshot, result, start)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.snapshotTimeout)
	defer cancel()

	resp, err := c.snap.R().
		SetContext(ctx).
		SetHeader("Accept-Encoding", "identity").
		SetQueryParam("silent", "1").
		Get(endpointSnapshot)
	switch {
	case err != nil:
		result = metrics.ResultError
		c.snapshotFailed(fmt.Errorf("%w: %w", ErrCannotConnect, err))
		return nil
	case resp.IsError():
		c.snapshotFailed(fmt.Errorf("%w: HTTP %d", ErrInvalidResponse, resp.StatusCode()))
		return nil
	case len(resp.Body()) == 0:
		c.snapshotFailed(fmt.Errorf("%w: empty image", ErrInvalidResponse))
		return nil
	}

	if c.snapshotFailing.CompareAndSwap(true, false) {
		c.logger.Info("karotz snapshot recovered", "host", c.host)
	}
	result = metrics.ResultSuccess
	return resp.Body()
}

func (c *Client) snapshotFailed(err error) {
	if c.snapshotFailing.CompareAndSwap(false, true) {
		c.logger.Warn("karotz snapshot failed", "host", c.host, "error", err)
		return
	}
	c.logger.Debug("karotz snapshot still failing", "host", c.host, "error", err)
}

// action performs one command endpoint call and interprets the
// {"return":"0"} envelope. It never panics and never returns an error.
func (c *Client) action(ctx context.Context, endpoint string, params map[string]string) (ok bool) {
	start := time.Now()
	result := metrics.ResultFailure
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("karotz request panicked", "host", c.host, "endpoint", endpoint, "panic", r)
			ok = false
			result = metrics.ResultError
		}
		observe(endpoint, result, start)
	}()

	body, code, err := c.get(ctx, c.http, endpoint, params, c.actionTimeout)
	if err != nil {
		result = metrics.ResultError
		c.logger.Error("karotz unreachable", "host", c.host, "endpoint", endpoint, "error", err)
		return false
	}
	if code < 200 || code >= 300 {
		c.logger.Warn("karotz request rejected", "host", c.host, "endpoint", endpoint, "status", code)
		return false
	}

	reply, err := decodeStatus(body)
	if err != nil {
		c.logger.Warn("karotz reply unreadable", "host", c.host, "endpoint", endpoint, "error", err)
		return false
	}

	ret, _ := reply.String("return")
	if ret == "0" {
		result = metrics.ResultSuccess
		c.logger.Debug("karotz command ok", "host", c.host, "endpoint", endpoint)
		return true
	}

	msg := reply.StringOr("msg", "")
	if endpoint == endpointSoundControl && msg == noSoundPlaying {
		c.logger.Debug("karotz has no sound playing", "host", c.host, "cmd", params["cmd"])
		return false
	}
	c.logger.Warn("karotz command failed", "host", c.host, "endpoint", endpoint, "return", ret, "msg", msg)
	return false
}

// get issues a GET with its own timeout. Transport failures are returned
// wrapping ErrCannotConnect; HTTP status codes are left to the caller.
func (c *Client) get(ctx context.Context, rc *resty.Client, endpoint string, params map[string]string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := rc.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrCannotConnect, endpoint, err)
	}
	return resp.Body(), resp.StatusCode(), nil
}

// decodeStatus parses a body as a single JSON object regardless of the
// declared content type. Trailing data after the object is an error.
func decodeStatus(body []byte) (Status, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var st Status
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidResponse)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidResponse)
	}
	return st, nil
}

// Probe checks that a rabbit answers its status endpoint with JSON. It is
// used before a device is added.
func Probe(ctx context.Context, host string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := resty.New().
		SetBaseURL(BaseURL(host)).
		R().
		SetContext(ctx).
		Get(endpointStatus)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrCannotConnect, resp.StatusCode())
	}
	if _, err := decodeStatus(resp.Body()); err != nil {
		return err
	}
	return nil
}

func observe(endpoint, result string, start time.Time) {
	metrics.ClientRequests.WithLabelValues(endpoint, result).Inc()
	metrics.ClientRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
