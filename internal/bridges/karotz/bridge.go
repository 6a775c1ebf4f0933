package karotz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one command, including a refresh.
	commandTimeout = 30 * time.Second

	// firmwareTimeout bounds a firmware write to the device store.
	firmwareTimeout = 5 * time.Second
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// FirmwareStore persists the firmware version reported by a rabbit.
// *device.Registry implements it.
type FirmwareStore interface {
	RecordFirmware(ctx context.Context, id, version string) error
}

// EventRecorder receives forwarded events for the time-series store.
// *influxdb.Client implements it.
type EventRecorder interface {
	WriteEvent(deviceID, kind, detail string, at time.Time)
}

// CommandAuditor records every handled command with its ack.
type CommandAuditor interface {
	RecordCommand(ctx context.Context, cmd CommandMessage, ack AckMessage)
}

// Listener is notified of state changes and events, e.g. by the WebSocket
// hub.
type Listener interface {
	DeviceStateChanged(msg StateMessage)
	DeviceEvent(msg EventMessage)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is the health publish period. Default: 30s.
	HealthInterval time.Duration

	// Devices holds the rabbits to serve.
	Devices *Manager

	// MQTTClient is the bus connection.
	MQTTClient MQTTClient

	// Firmware is optional.
	Firmware FirmwareStore

	// Events is optional.
	Events EventRecorder

	// Audit is optional.
	Audit CommandAuditor

	// Logger is optional.
	Logger Logger
}

// Bridge connects the rabbits to the Gray Logic bus. It handles:
//   - Commands from Core on graylogic/command/karotz/+, acked on
//     graylogic/ack/karotz/{device_id}
//   - Retained state on graylogic/state/karotz/{device_id} after every poll,
//     patch and command
//   - Webhook events on graylogic/core/event/{kind}
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	devices  *Manager
	mqtt     MQTTClient
	firmware FirmwareStore
	events   EventRecorder
	audit    CommandAuditor
	health   *HealthReporter
	topics   mqtt.Topics

	// Last published state per device, for change detection.
	stateCache   map[string][]byte
	firmwareSeen map[string]string
	stateCacheMu sync.Mutex

	// publishMu orders PublishState calls so the retained state is never
	// older than the snapshot it was read from.
	publishMu sync.Mutex

	unsubscribe []func()
	listeners   []Listener
	listenersMu sync.RWMutex

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	eventsForwarded  atomic.Uint64
	statesPublished  atomic.Uint64

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	lifeMu    sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Devices == nil {
		return nil, errors.New("device manager is required")
	}
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		devices:      opts.Devices,
		mqtt:         opts.MQTTClient,
		firmware:     opts.Firmware,
		events:       opts.Events,
		audit:        opts.Audit,
		stateCache:   make(map[string][]byte),
		firmwareSeen: make(map[string]string),
		ctx:          ctx,
		ctxCancel:    cancel,
		logger:       logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Devices:   opts.Devices,
		Stats:     b.Stats,
	})
	b.health.SetLogger(logger)

	return b, nil
}

// AddListener registers a state/event listener.
func (b *Bridge) AddListener(l Listener) {
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, l)
	b.listenersMu.Unlock()
}

// Start subscribes to commands, watches every device and starts health
// reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	commandTopic := b.topics.BridgeCommands(Protocol)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	for _, d := range b.devices.List() {
		b.Watch(d)
	}

	b.health.Start(ctx)

	b.logger.Info("karotz bridge started", "devices", b.devices.Len())
	return nil
}

// Stop unsubscribes from the devices, stops health reporting and waits for
// in-flight commands.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.lifeMu.Lock()
		b.stopped = true
		unsubs := b.unsubscribe
		b.unsubscribe = nil
		b.lifeMu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()

		b.logger.Info("karotz bridge stopped")
	})
}

// Watch publishes a device's state after every poll and patch, and records
// firmware changes. It publishes the current state immediately.
func (b *Bridge) Watch(d *Device) {
	unsub := d.Coordinator.Subscribe(func() {
		b.PublishState(d)
		b.recordFirmware(d)
	})

	b.lifeMu.Lock()
	if b.stopped {
		b.lifeMu.Unlock()
		unsub()
		return
	}
	b.unsubscribe = append(b.unsubscribe, unsub)
	b.lifeMu.Unlock()

	b.PublishState(d)
	b.recordFirmware(d)
}

// spawn runs fn on the bridge context unless the bridge is stopping.
func (b *Bridge) spawn(fn func(ctx context.Context)) bool {
	b.lifeMu.Lock()
	if b.stopped {
		b.lifeMu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.lifeMu.Unlock()

	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
	return true
}

// handleCommandMessage parses a command and executes it in the background,
// so slow rabbits do not block the MQTT client.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = mqtt.AddressFromTopic(topic)
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.spawn(func(ctx context.Context) {
		b.HandleCommand(ctx, cmd)
	})
	return nil
}

// HandleCommand executes a command, publishes its ack and the resulting
// state. It returns the ack.
func (b *Bridge) HandleCommand(ctx context.Context, cmd CommandMessage) AckMessage {
	ack := b.handleCommand(ctx, cmd)
	if b.audit != nil {
		b.audit.RecordCommand(ctx, cmd, ack)
	}
	return ack
}

func (b *Bridge) handleCommand(ctx context.Context, cmd CommandMessage) AckMessage {
	b.commandsReceived.Add(1)
	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"source", cmd.Source)

	d, err := b.devices.Get(cmd.DeviceID)
	if err != nil {
		return b.fail(cmd, ErrCodeNotConfigured, fmt.Sprintf("device %s not configured", cmd.DeviceID))
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := Execute(ctx, d, cmd.Command, cmd.Parameters); err != nil {
		code, message := ErrCodeCommandFailed, err.Error()
		var cerr *CommandError
		if errors.As(err, &cerr) {
			code, message = cerr.Code, cerr.Message
		}
		return b.fail(cmd, code, message)
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Command, metrics.ResultSuccess).Inc()
	ack := NewAckMessage(cmd, AckAccepted)
	b.publishAck(ack)

	// Ears and playback state are not part of the poll; publish now.
	b.PublishState(d)
	return ack
}

func (b *Bridge) fail(cmd CommandMessage, code, message string) AckMessage {
	b.commandsFailed.Add(1)
	metrics.CommandsTotal.WithLabelValues(cmd.Command, metrics.ResultFailure).Inc()

	ack := NewAckError(cmd, code, message)
	b.publishAck(ack)

	b.logger.Warn("command failed",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"code", code,
		"message", message)
	return ack
}

func (b *Bridge) publishAck(ack AckMessage) {
	if ack.DeviceID == "" {
		return
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.BridgeAck(Protocol, ack.DeviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "error", err)
	}
}

// PublishState publishes a device's retained state when it changed since the
// last publish.
func (b *Bridge) PublishState(d *Device) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	state := d.State()

	// LastUpdated moves on every poll; compare everything else.
	cmpState := state
	cmpState.LastUpdated = nil
	fingerprint, err := json.Marshal(cmpState)
	if err != nil {
		b.logger.Error("failed to marshal state", "device_id", d.Info.ID, "error", err)
		return
	}

	b.stateCacheMu.Lock()
	unchanged := bytes.Equal(b.stateCache[d.Info.ID], fingerprint)
	if !unchanged {
		b.stateCache[d.Info.ID] = fingerprint
	}
	b.stateCacheMu.Unlock()
	if unchanged {
		return
	}

	msg := NewStateMessage(d.Info.ID, state)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "device_id", d.Info.ID, "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.BridgeState(Protocol, d.Info.ID), payload, 1, true); err != nil {
		b.logger.Error("failed to publish state", "device_id", d.Info.ID, "error", err)
	} else {
		b.statesPublished.Add(1)
	}

	for _, l := range b.getListeners() {
		l.DeviceStateChanged(msg)
	}
}

func (b *Bridge) recordFirmware(d *Device) {
	if b.firmware == nil {
		return
	}
	version := d.Coordinator.Data().Firmware()
	if version == "" {
		return
	}

	b.stateCacheMu.Lock()
	seen := b.firmwareSeen[d.Info.ID] == version
	b.firmwareSeen[d.Info.ID] = version
	b.stateCacheMu.Unlock()
	if seen {
		return
	}

	b.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, firmwareTimeout)
		defer cancel()
		if err := b.firmware.RecordFirmware(ctx, d.Info.ID, version); err != nil {
			b.logger.Warn("failed to record firmware", "device_id", d.Info.ID, "error", err)
		}
	})
}

// Fire forwards an accepted webhook event to Core, the time-series store and
// listeners. It implements EventSink.
func (b *Bridge) Fire(ev Event) {
	b.eventsForwarded.Add(1)
	metrics.WebhookEvents.WithLabelValues(string(ev.Kind)).Inc()

	msg := NewEventMessage(ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal event", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.CoreEvent(string(ev.Kind)), payload, 1, false); err != nil {
		b.logger.Error("failed to publish event", "kind", ev.Kind, "error", err)
	}

	if b.events != nil {
		detail := ev.TagID
		if ev.Kind == EventButton {
			detail = ev.Type
		}
		b.events.WriteEvent(ev.DeviceID, string(ev.Kind), detail, ev.Timestamp)
	}

	for _, l := range b.getListeners() {
		l.DeviceEvent(msg)
	}
}

func (b *Bridge) getListeners() []Listener {
	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()
	out := make([]Listener, len(b.listeners))
	copy(out, b.listeners)
	return out
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		EventsForwarded:  b.eventsForwarded.Load(),
		StatesPublished:  b.statesPublished.Load(),
	}
}

// HealthStatus returns the bridge's current health.
func (b *Bridge) HealthStatus() (HealthStatus, string) {
	return b.health.Status()
}
