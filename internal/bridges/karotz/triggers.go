package karotz

import (
	"fmt"
	"slices"
)

// TriggerDomain is the domain of device triggers.
const TriggerDomain = "openkarotz"

// Button trigger types, as sent in the event field of button webhooks.
const (
	TriggerClick       = "click"
	TriggerDoubleClick = "dclick"
	TriggerTripleClick = "tclick"
	TriggerLongStart   = "lclick_start"
	TriggerLongStop    = "lclick_stop"
)

// TriggerTypes lists the supported button triggers.
var TriggerTypes = []string{
	TriggerClick,
	TriggerDoubleClick,
	TriggerTripleClick,
	TriggerLongStart,
	TriggerLongStop,
}

// Trigger describes an automation trigger offered by a device.
type Trigger struct {
	Platform string `json:"platform"`
	Domain   string `json:"domain"`
	DeviceID string `json:"device_id"`
	Type     string `json:"type"`
}

// Triggers lists the button triggers of a device.
func Triggers(deviceID string) []Trigger {
	out := make([]Trigger, 0, len(TriggerTypes))
	for _, t := range TriggerTypes {
		out = append(out, Trigger{
			Platform: "device",
			Domain:   TriggerDomain,
			DeviceID: deviceID,
			Type:     t,
		})
	}
	return out
}

// ValidateTriggerType rejects unsupported trigger types.
func ValidateTriggerType(t string) error {
	if !slices.Contains(TriggerTypes, t) {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, t)
	}
	return nil
}

// Matches reports whether an event fires this trigger.
func (t Trigger) Matches(e Event) bool {
	return e.Kind == EventButton && e.DeviceID == t.DeviceID && e.Type == t.Type
}
