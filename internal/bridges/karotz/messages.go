package karotz

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol is the protocol identifier used in topics and messages.
const Protocol = "karotz"

// CommandMessage is sent from Core to the bridge to drive a rabbit.
// Topic: graylogic/command/karotz/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the rabbit's device id.
	DeviceID string `json:"device_id"`

	// Command is the command name (e.g., "light_on", "tts", "sleep").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"rgb": [255, 0, 0], "flash": true} for light_on
	//   {"text": "Bonjour", "voice": "claire"} for tts
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "mqtt", ...).
	Source string `json:"source"`

	// UserID is the user who triggered the command (if applicable).
	UserID string `json:"user_id,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the rabbit accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/karotz/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is one of the ErrCode constants.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
)

// StateMessage is sent when a rabbit's state changes.
// Topic: graylogic/state/karotz/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string      `json:"device_id"`
	Timestamp time.Time   `json:"timestamp"`
	State     DeviceState `json:"state"`
	Available bool        `json:"available"`
	Protocol  string      `json:"protocol"`
	Address   string      `json:"address"`
}

// EventMessage forwards a webhook event to Core.
// Topic: graylogic/core/event/{kind}
type EventMessage struct {
	Event
	Protocol string   `json:"protocol"`
	Trigger  *Trigger `json:"trigger,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/karotz
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	Bridge           string            `json:"bridge"`
	Timestamp        time.Time         `json:"timestamp"`
	Status           HealthStatus      `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	DevicesManaged   int               `json:"devices_managed"`
	DevicesAvailable int               `json:"devices_available"`
	Statistics       *BridgeStatistics `json:"statistics,omitempty"`
	Reason           string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	EventsForwarded  uint64 `json:"events_forwarded"`
	StatesPublished  uint64 `json:"states_published"`
}

// UnmarshalJSON accepts a missing or RFC 3339 timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   cmd.DeviceID,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for a device.
func NewStateMessage(deviceID string, state DeviceState) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Available: state.Available,
		Protocol:  Protocol,
		Address:   deviceID,
	}
}

// NewEventMessage wraps an event, attaching the matching button trigger.
func NewEventMessage(ev Event) EventMessage {
	msg := EventMessage{Event: ev, Protocol: Protocol}
	for _, t := range Triggers(ev.DeviceID) {
		if t.Matches(ev) {
			msg.Trigger = &t
			break
		}
	}
	return msg
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats BridgeStatistics, managed, available int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:           bridgeID,
		Timestamp:        time.Now().UTC(),
		Status:           status,
		Version:          version,
		UptimeSeconds:    int64(time.Since(startTime).Seconds()),
		DevicesManaged:   managed,
		DevicesAvailable: available,
		Statistics:       &stats,
	}
}
