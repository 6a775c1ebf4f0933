package karotz

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// GetPublished returns the messages published on topic.
func (m *MockMQTTClient) GetPublished(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers a message to the handler subscribed with filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return handler(topic, payload)
}

type mockFirmwareStore struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (s *mockFirmwareStore) RecordFirmware(_ context.Context, id, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string][]string)
	}
	s.calls[id] = append(s.calls[id], version)
	return nil
}

func (s *mockFirmwareStore) get(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls[id]...)
}

type mockEventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *mockEventRecorder) WriteEvent(deviceID, kind, detail string, _ time.Time) {
	r.mu.Lock()
	r.events = append(r.events, deviceID+"/"+kind+"/"+detail)
	r.mu.Unlock()
}

type mockAuditor struct {
	mu   sync.Mutex
	acks []AckMessage
}

func (a *mockAuditor) RecordCommand(_ context.Context, _ CommandMessage, ack AckMessage) {
	a.mu.Lock()
	a.acks = append(a.acks, ack)
	a.mu.Unlock()
}

func (a *mockAuditor) recorded() []AckMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AckMessage(nil), a.acks...)
}

type mockListener struct {
	mu     sync.Mutex
	states []StateMessage
	events []EventMessage
}

func (l *mockListener) DeviceStateChanged(msg StateMessage) {
	l.mu.Lock()
	l.states = append(l.states, msg)
	l.mu.Unlock()
}

func (l *mockListener) DeviceEvent(msg EventMessage) {
	l.mu.Lock()
	l.events = append(l.events, msg)
	l.mu.Unlock()
}

type bridgeFixture struct {
	rabbit   *fakeRabbit
	device   *Device
	mqtt     *MockMQTTClient
	firmware *mockFirmwareStore
	events   *mockEventRecorder
	audit    *mockAuditor
	bridge   *Bridge
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	f := &bridgeFixture{
		rabbit:   newFakeRabbit(t),
		mqtt:     NewMockMQTTClient(),
		firmware: &mockFirmwareStore{},
		events:   &mockEventRecorder{},
		audit:    &mockAuditor{},
	}
	f.device = newTestDevice(t, f.rabbit)

	devices := NewManager()
	require.NoError(t, devices.Add(f.device))

	b, err := NewBridge(BridgeOptions{
		BridgeID:       "karotz-bridge-test",
		Version:        "test",
		HealthInterval: time.Hour,
		Devices:        devices,
		MQTTClient:     f.mqtt,
		Firmware:       f.firmware,
		Events:         f.events,
		Audit:          f.audit,
	})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	f.bridge = b
	return f
}

func decodeAck(t *testing.T, p mockPublish) AckMessage {
	t.Helper()
	var ack AckMessage
	require.NoError(t, json.Unmarshal(p.Payload, &ack))
	return ack
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient()})
	assert.Error(t, err)
	_, err = NewBridge(BridgeOptions{Devices: NewManager()})
	assert.Error(t, err)
}

func TestBridge_StartPublishesStateAndHealth(t *testing.T) {
	f := newBridgeFixture(t)

	assert.Contains(t, f.mqtt.subscriptions, "graylogic/command/karotz/+")

	states := f.mqtt.GetPublished("graylogic/state/karotz/karotz-test")
	require.NotEmpty(t, states)
	assert.True(t, states[0].Retained)
	assert.Equal(t, byte(1), states[0].QoS)

	var msg StateMessage
	require.NoError(t, json.Unmarshal(states[0].Payload, &msg))
	assert.Equal(t, "karotz-test", msg.DeviceID)
	assert.Equal(t, Protocol, msg.Protocol)
	assert.True(t, msg.Available)
	assert.Equal(t, "0000ff", msg.State.Light.Color)

	require.Eventually(t, func() bool {
		return len(f.mqtt.GetPublished("graylogic/health/karotz")) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	var health HealthMessage
	require.NoError(t, json.Unmarshal(f.mqtt.GetPublished("graylogic/health/karotz")[0].Payload, &health))
	assert.Equal(t, HealthStarting, health.Status)

	require.Eventually(t, func() bool {
		return len(f.firmware.get("karotz-test")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"200"}, f.firmware.get("karotz-test"))
}

func TestBridge_CommandOverMQTT(t *testing.T) {
	f := newBridgeFixture(t)

	payload := []byte(`{"id":"cmd-1","command":"tts","parameters":{"text":"Bonjour"},"timestamp":"2026-01-02T03:04:05Z"}`)
	require.NoError(t, f.mqtt.SimulateMessage("graylogic/command/karotz/+", "graylogic/command/karotz/karotz-test", payload))

	var acks []mockPublish
	require.Eventually(t, func() bool {
		acks = f.mqtt.GetPublished("graylogic/ack/karotz/karotz-test")
		return len(acks) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ack := decodeAck(t, acks[0])
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, AckAccepted, ack.Status)
	assert.Nil(t, ack.Error)

	q, ok := f.rabbit.last(endpointTTS)
	require.True(t, ok)
	assert.Equal(t, "Bonjour", q.Get("text"))
	assert.Equal(t, uint64(1), f.bridge.Stats().CommandsReceived)
}

func TestBridge_CommandBadPayload(t *testing.T) {
	f := newBridgeFixture(t)

	err := f.mqtt.SimulateMessage("graylogic/command/karotz/+", "graylogic/command/karotz/karotz-test", []byte("{"))
	assert.Error(t, err)
}

func TestBridge_HandleCommandFailures(t *testing.T) {
	f := newBridgeFixture(t)
	ctx := testContext(t)

	tests := []struct {
		name string
		cmd  CommandMessage
		code string
	}{
		{"unknown device", CommandMessage{ID: "1", DeviceID: "ghost", Command: CmdSleep}, ErrCodeNotConfigured},
		{"unknown command", CommandMessage{ID: "2", DeviceID: "karotz-test", Command: "dance"}, ErrCodeInvalidCommand},
		{"missing text", CommandMessage{ID: "3", DeviceID: "karotz-test", Command: CmdTTS}, ErrCodeInvalidParameters},
		{"bad effect", CommandMessage{ID: "4", DeviceID: "karotz-test", Command: CmdLEDEffect, Parameters: map[string]any{"option": "disco"}}, ErrCodeInvalidParameters},
		{"volume range", CommandMessage{ID: "5", DeviceID: "karotz-test", Command: CmdVolumeSet, Parameters: map[string]any{"level": 1.5}}, ErrCodeInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := f.bridge.HandleCommand(ctx, tt.cmd)
			assert.Equal(t, AckFailed, ack.Status)
			require.NotNil(t, ack.Error)
			assert.Equal(t, tt.code, ack.Error.Code)
		})
	}

	published := f.mqtt.GetPublished("graylogic/ack/karotz/ghost")
	require.Len(t, published, 1)
	assert.Equal(t, ErrCodeNotConfigured, decodeAck(t, published[0]).Error.Code)
	assert.Equal(t, uint64(len(tests)), f.bridge.Stats().CommandsFailed)
}

func TestBridge_CommandRejectedByRabbit(t *testing.T) {
	f := newBridgeFixture(t)
	f.rabbit.setReply(endpointSleep, `{"return":"1","msg":"busy"}`)

	ack := f.bridge.HandleCommand(testContext(t), CommandMessage{ID: "x", DeviceID: "karotz-test", Command: CmdSleep})
	require.NotNil(t, ack.Error)
	assert.Equal(t, ErrCodeCommandFailed, ack.Error.Code)
}

func TestBridge_AuditsEveryCommand(t *testing.T) {
	f := newBridgeFixture(t)
	ctx := testContext(t)

	f.bridge.HandleCommand(ctx, CommandMessage{ID: "a", DeviceID: "karotz-test", Command: CmdEarsOpen})
	f.bridge.HandleCommand(ctx, CommandMessage{ID: "b", DeviceID: "ghost", Command: CmdSleep})

	acks := f.audit.recorded()
	require.Len(t, acks, 2)
	assert.Equal(t, AckAccepted, acks[0].Status)
	assert.Equal(t, AckFailed, acks[1].Status)
	assert.Equal(t, ErrCodeNotConfigured, acks[1].Error.Code)
}

func TestBridge_PublishStateOnlyOnChange(t *testing.T) {
	f := newBridgeFixture(t)
	topic := "graylogic/state/karotz/karotz-test"
	listener := &mockListener{}
	f.bridge.AddListener(listener)

	before := len(f.mqtt.GetPublished(topic))
	f.bridge.PublishState(f.device)
	f.bridge.PublishState(f.device)
	assert.Len(t, f.mqtt.GetPublished(topic), before, "unchanged state is not republished")

	f.device.Coordinator.Patch(func(s Status) { s[KeyVolume] = "3" })
	published := f.mqtt.GetPublished(topic)
	require.Len(t, published, before+1)

	var msg StateMessage
	require.NoError(t, json.Unmarshal(published[len(published)-1].Payload, &msg))
	assert.Equal(t, 3, msg.State.Media.Volume)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.Len(t, listener.states, 1)
	assert.Equal(t, 3, listener.states[0].State.Media.Volume)
}

func TestBridge_RetainedStateFollowsLatestSnapshot(t *testing.T) {
	f := newBridgeFixture(t)
	topic := "graylogic/state/karotz/karotz-test"

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(vol int) {
			defer wg.Done()
			f.device.Coordinator.Patch(func(s Status) { s[KeyVolume] = strconv.Itoa(vol) })
			f.bridge.PublishState(f.device)
		}(i)
	}
	wg.Wait()

	published := f.mqtt.GetPublished(topic)
	require.NotEmpty(t, published)
	var msg StateMessage
	require.NoError(t, json.Unmarshal(published[len(published)-1].Payload, &msg))
	assert.Equal(t, f.device.Coordinator.Data().Volume(), msg.State.Media.Volume)
}

func TestBridge_FireEvent(t *testing.T) {
	f := newBridgeFixture(t)
	listener := &mockListener{}
	f.bridge.AddListener(listener)

	f.bridge.Fire(Event{Kind: EventButton, DeviceID: "karotz-test", Type: TriggerDoubleClick, Timestamp: time.Now()})
	f.bridge.Fire(Event{Kind: EventTagScanned, DeviceID: "karotz-test", TagID: "abc123", Timestamp: time.Now()})

	buttons := f.mqtt.GetPublished("graylogic/core/event/openkarotz_event")
	require.Len(t, buttons, 1)
	var msg EventMessage
	require.NoError(t, json.Unmarshal(buttons[0].Payload, &msg))
	assert.Equal(t, "dclick", msg.Type)
	require.NotNil(t, msg.Trigger)
	assert.Equal(t, TriggerDomain, msg.Trigger.Domain)
	assert.Equal(t, TriggerDoubleClick, msg.Trigger.Type)

	tags := f.mqtt.GetPublished("graylogic/core/event/tag_scanned")
	require.Len(t, tags, 1)
	assert.True(t, strings.Contains(string(tags[0].Payload), `"tag_id":"abc123"`))
	assert.NotContains(t, string(tags[0].Payload), "trigger")

	f.events.mu.Lock()
	assert.Equal(t, []string{"karotz-test/openkarotz_event/dclick", "karotz-test/tag_scanned/abc123"}, f.events.events)
	f.events.mu.Unlock()

	listener.mu.Lock()
	assert.Len(t, listener.events, 2)
	listener.mu.Unlock()
	assert.Equal(t, uint64(2), f.bridge.Stats().EventsForwarded)
}

func TestBridge_WebhookToMQTT(t *testing.T) {
	f := newBridgeFixture(t)

	_, err := f.bridge.devices.HandleWebhook("hook-123", []byte(`{"event_type":"rfid","rfid_id":"abc123"}`), f.bridge)
	require.NoError(t, err)
	assert.Len(t, f.mqtt.GetPublished("graylogic/core/event/tag_scanned"), 1)
}

func TestBridge_HealthStatus(t *testing.T) {
	f := newBridgeFixture(t)

	status, _ := f.bridge.HealthStatus()
	assert.Equal(t, HealthHealthy, status)

	f.rabbit.setStatus("")
	_, err := f.device.Coordinator.Refresh(testContext(t))
	require.Error(t, err)
	status, reason := f.bridge.HealthStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "1 of 1 devices unreachable", reason)

	f.mqtt.SetConnected(false)
	status, reason = f.bridge.HealthStatus()
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, "MQTT disconnected", reason)
}

func TestBridge_StopPublishesStopping(t *testing.T) {
	f := newBridgeFixture(t)
	f.bridge.Stop()
	f.bridge.Stop()

	health := f.mqtt.GetPublished("graylogic/health/karotz")
	require.NotEmpty(t, health)
	var msg HealthMessage
	require.NoError(t, json.Unmarshal(health[len(health)-1].Payload, &msg))
	assert.Equal(t, HealthStopping, msg.Status)

	// Commands after Stop are dropped.
	payload := []byte(`{"id":"late","command":"sleep"}`)
	require.NoError(t, f.mqtt.SimulateMessage("graylogic/command/karotz/+", "graylogic/command/karotz/karotz-test", payload))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.mqtt.GetPublished("graylogic/ack/karotz/karotz-test"))
}
