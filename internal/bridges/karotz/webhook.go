package karotz

import (
	"errors"
	"time"
)

// EventKind names the platform event a webhook turns into.
type EventKind string

const (
	// EventTagScanned is fired when an RFID tag is put on the rabbit.
	EventTagScanned EventKind = "tag_scanned"

	// EventButton is fired for head button presses.
	EventButton EventKind = "openkarotz_event"
)

// Webhook event_type values sent by the rabbit.
const (
	webhookRFID   = "rfid"
	webhookButton = "button"
)

// Event is one device-pushed notification. It is not stored.
type Event struct {
	Kind      EventKind `json:"kind"`
	DeviceID  string    `json:"device_id,omitempty"`
	TagID     string    `json:"tag_id,omitempty"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives accepted webhook events.
type EventSink interface {
	Fire(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Fire calls f(e).
func (f EventSinkFunc) Fire(e Event) { f(e) }

// WebhookError is a rejected webhook body. Reason is the plain-text
// response sent back to the rabbit.
type WebhookError struct {
	Reason string
	Err    error
}

func (e *WebhookError) Error() string {
	return e.Err.Error() + ": " + e.Reason
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

func rejectWebhook(sentinel error, reason string) error {
	return &WebhookError{Reason: reason, Err: sentinel}
}

// ParseWebhook turns a webhook body {event_type, rfid_id?, event?} into an
// Event. Errors are *WebhookError wrapping ErrInvalidWebhook or
// ErrUnknownEventType.
func ParseWebhook(body []byte) (Event, error) {
	data, err := decodeStatus(body)
	if err != nil {
		return Event{}, rejectWebhook(ErrInvalidWebhook, "Invalid JSON")
	}

	eventType, _ := data.String("event_type")
	switch eventType {
	case webhookRFID:
		tag, _ := data.String("rfid_id")
		if tag == "" {
			return Event{}, rejectWebhook(ErrInvalidWebhook, "Missing rfid_id")
		}
		return Event{Kind: EventTagScanned, TagID: tag, Timestamp: time.Now().UTC()}, nil
	case webhookButton:
		ev, _ := data.String("event")
		if ev == "" {
			return Event{}, rejectWebhook(ErrInvalidWebhook, "Missing event")
		}
		return Event{Kind: EventButton, Type: ev, Timestamp: time.Now().UTC()}, nil
	default:
		return Event{}, rejectWebhook(ErrUnknownEventType, "Unknown event_type")
	}
}

// WebhookReason returns the plain-text rejection for err.
func WebhookReason(err error) string {
	var werr *WebhookError
	if errors.As(err, &werr) {
		return werr.Reason
	}
	if errors.Is(err, ErrDeviceNotFound) {
		return "Webhook ID not found"
	}
	return "Bad request"
}

// HandleWebhook resolves the device a webhook id belongs to, parses the
// body and fires exactly one event on success. Nothing is fired on error,
// and coordinator state is never touched.
func (m *Manager) HandleWebhook(webhookID string, body []byte, sink EventSink) (Event, error) {
	d, err := m.ByWebhookID(webhookID)
	if err != nil {
		return Event{}, err
	}

	ev, err := ParseWebhook(body)
	if err != nil {
		d.logger.Warn("karotz webhook rejected", "device_id", d.Info.ID, "error", err)
		return Event{}, err
	}
	ev.DeviceID = d.Info.ID

	switch ev.Kind {
	case EventTagScanned:
		d.logger.Info("karotz tag scanned", "device_id", d.Info.ID, "tag_id", ev.TagID)
	case EventButton:
		d.logger.Info("karotz button event", "device_id", d.Info.ID, "type", ev.Type)
	}

	if sink != nil {
		sink.Fire(ev)
	}
	return ev, nil
}
