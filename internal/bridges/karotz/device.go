package karotz

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DeviceInfo identifies one rabbit.
type DeviceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Host      string `json:"host"`
	WebhookID string `json:"-"`
}

// DeviceConfig holds everything needed to build a Device.
type DeviceConfig struct {
	Info DeviceInfo

	// PollInterval is the status poll period. Default: 30s.
	PollInterval time.Duration

	// ActionTimeout and SnapshotTimeout bound device requests.
	ActionTimeout   time.Duration
	SnapshotTimeout time.Duration

	// DefaultVoice is the TTS voice used when none is given.
	DefaultVoice string

	// PublicURL is the externally reachable base URL of the API server,
	// used to build the webhook URL.
	PublicURL string

	// Recorder is optional.
	Recorder StatusRecorder

	// Logger is optional.
	Logger Logger
}

// Device is the per-rabbit context: the shared client, the coordinator
// that owns the snapshot, and the entities built on them.
type Device struct {
	Info        DeviceInfo
	Client      *Client
	Coordinator *Coordinator

	Light       *Light
	LEDEffect   *LEDEffect
	Ears        *Ears
	Sleep       *SleepSwitch
	SleepSensor *SleepSensor
	Media       *MediaPlayer
	Camera      *Camera
	Diagnostics *Diagnostics

	logger    Logger
	ctx       context.Context
	cancel    context.CancelFunc
	lifeMu    sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDevice builds a device. Call Setup before use.
func NewDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.Info.ID == "" {
		return nil, errors.New("karotz: device id is required")
	}
	if cfg.Info.Host == "" {
		return nil, fmt.Errorf("karotz: device %s: host is required", cfg.Info.ID)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	client := NewClient(ClientConfig{
		Host:            cfg.Info.Host,
		ActionTimeout:   cfg.ActionTimeout,
		SnapshotTimeout: cfg.SnapshotTimeout,
		DefaultVoice:    cfg.DefaultVoice,
		Logger:          logger,
	})

	coord, err := NewCoordinator(CoordinatorConfig{
		DeviceID: cfg.Info.ID,
		Fetcher:  client,
		Interval: cfg.PollInterval,
		Recorder: cfg.Recorder,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		Info:        cfg.Info,
		Client:      client,
		Coordinator: coord,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	d.Light = &Light{client: client, coord: coord}
	d.LEDEffect = &LEDEffect{client: client, coord: coord, current: EffectNone}
	d.Ears = &Ears{client: client, position: initialEarsPosition}
	d.Sleep = &SleepSwitch{client: client, coord: coord}
	d.SleepSensor = &SleepSensor{coord: coord}
	d.Media = &MediaPlayer{client: client, coord: coord, spawn: d.spawn, state: MediaIdle}
	d.Camera = &Camera{client: client}
	d.Diagnostics = &Diagnostics{coord: coord, webhookURL: WebhookURL(cfg.PublicURL, cfg.Info.WebhookID)}

	return d, nil
}

// Setup runs the bootstrap refresh and starts polling. On failure the
// device is closed and the error wraps ErrSetupFailed.
func (d *Device) Setup(ctx context.Context) error {
	if err := d.Coordinator.FirstRefresh(ctx); err != nil {
		d.Close()
		return err
	}
	d.Coordinator.Start(d.ctx)
	d.logger.Info("karotz device ready",
		"device_id", d.Info.ID,
		"host", d.Info.Host,
		"firmware", d.Coordinator.Data().Firmware())
	return nil
}

// Close stops polling and waits for background work. Safe to call
// multiple times.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.lifeMu.Lock()
		d.closed = true
		d.lifeMu.Unlock()

		d.cancel()
		d.Coordinator.Stop()
		d.wg.Wait()
	})
}

// Available reports whether the last status poll succeeded.
func (d *Device) Available() bool {
	return d.Coordinator.LastUpdateSuccess()
}

// spawn runs fn in the background on the device context.
func (d *Device) spawn(fn func(ctx context.Context)) {
	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.wg.Add(1)
	d.lifeMu.Unlock()

	go func() {
		defer d.wg.Done()
		fn(d.ctx)
	}()
}

// LightState is the LED part of DeviceState.
type LightState struct {
	On     bool   `json:"on"`
	Color  string `json:"color"`
	RGB    *RGB   `json:"rgb,omitempty"`
	Pulse  bool   `json:"pulse"`
	Effect string `json:"effect"`
}

// EarsState is the ears part of DeviceState.
type EarsState struct {
	Position int  `json:"position"`
	Closed   bool `json:"closed"`
}

// MediaPlayerState is the media player part of DeviceState.
type MediaPlayerState struct {
	State       MediaState `json:"state"`
	Volume      int        `json:"volume"`
	VolumeLevel float64    `json:"volume_level"`
}

// DeviceState is the rendered state of every entity of a device.
type DeviceState struct {
	Available   bool              `json:"available"`
	Sleeping    bool              `json:"sleeping"`
	Light       LightState        `json:"light"`
	Ears        EarsState         `json:"ears"`
	Media       MediaPlayerState  `json:"media"`
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	LastUpdated *time.Time        `json:"last_updated,omitempty"`
}

// State renders the device from one snapshot copy, so every field comes
// from the same poll.
func (d *Device) State() DeviceState {
	st := d.Coordinator.Data()

	light := LightState{
		On:     st.LightOn(),
		Color:  st.LEDColor(),
		Pulse:  st.LEDPulse(),
		Effect: d.LEDEffect.Current(),
	}
	if light.On {
		if rgb, err := ParseHexColor(light.Color); err == nil {
			light.RGB = &rgb
		}
	}

	state := DeviceState{
		Available: d.Available(),
		Sleeping:  st.IsSleeping(),
		Light:     light,
		Ears: EarsState{
			Position: d.Ears.Position(),
			Closed:   d.Ears.IsClosed(),
		},
		Media: MediaPlayerState{
			State:       d.Media.State(),
			Volume:      st.Volume(),
			VolumeLevel: st.VolumeLevel(),
		},
		Diagnostics: st.Diagnostics(),
		WebhookURL:  d.Diagnostics.WebhookURL(),
	}
	if t := d.Coordinator.LastUpdated(); !t.IsZero() {
		state.LastUpdated = &t
	}
	return state
}

// Manager holds the devices of one process, indexed by id and webhook id.
type Manager struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	byWebhook map[string]*Device
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		devices:   make(map[string]*Device),
		byWebhook: make(map[string]*Device),
	}
}

// Add registers a device. Ids and webhook ids must be unique.
func (m *Manager) Add(d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[d.Info.ID]; ok {
		return fmt.Errorf("karotz: device %s already registered", d.Info.ID)
	}
	if d.Info.WebhookID != "" {
		if _, ok := m.byWebhook[d.Info.WebhookID]; ok {
			return fmt.Errorf("karotz: webhook id of %s already registered", d.Info.ID)
		}
		m.byWebhook[d.Info.WebhookID] = d
	}
	m.devices[d.Info.ID] = d
	return nil
}

// Remove closes and unregisters a device.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	d, ok := m.devices[id]
	if ok {
		delete(m.devices, id)
		delete(m.byWebhook, d.Info.WebhookID)
	}
	m.mu.Unlock()

	if ok {
		d.Close()
	}
}

// Get returns a device by id.
func (m *Manager) Get(id string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// ByWebhookID returns the device a webhook id belongs to.
func (m *Manager) ByWebhookID(webhookID string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byWebhook[webhookID]
	if !ok || webhookID == "" {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// List returns all devices sorted by name, then id.
func (m *Manager) List() []*Device {
	m.mu.RLock()
	out := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Device) int {
		return cmp.Or(cmp.Compare(a.Info.Name, b.Info.Name), cmp.Compare(a.Info.ID, b.Info.ID))
	})
	return out
}

// Len returns the number of devices.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Close closes every device.
func (m *Manager) Close() {
	for _, d := range m.List() {
		d.Close()
	}
}
