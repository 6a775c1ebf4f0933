package karotz

import "errors"

// Domain errors for the Karotz bridge package.
var (
	// ErrCannotConnect is returned when the rabbit cannot be reached
	// (DNS failure, connection refused, timeout) or when the status
	// endpoint answers with something that is not a status object.
	ErrCannotConnect = errors.New("karotz: cannot connect to device")

	// ErrInvalidResponse is returned when the device answers but the body
	// is not the JSON the endpoint promises.
	ErrInvalidResponse = errors.New("karotz: invalid response")

	// ErrSetupFailed is returned when the first refresh of a device fails.
	ErrSetupFailed = errors.New("karotz: device setup failed")

	// ErrInvalidWebhook is returned for webhook bodies that cannot be
	// turned into an event.
	ErrInvalidWebhook = errors.New("karotz: invalid webhook payload")

	// ErrUnknownEventType is returned for webhook bodies with a missing or
	// unrecognised event_type.
	ErrUnknownEventType = errors.New("karotz: unknown event type")

	// ErrInvalidOption is returned when an LED effect option is not known.
	ErrInvalidOption = errors.New("karotz: invalid option")

	// ErrInvalidTrigger is returned for device trigger types that are not
	// supported.
	ErrInvalidTrigger = errors.New("karotz: invalid trigger type")

	// ErrDeviceNotFound is returned when a device id or webhook id does
	// not belong to a configured device.
	ErrDeviceNotFound = errors.New("karotz: device not found")

	// ErrCommandFailed is returned when the device rejects a command.
	ErrCommandFailed = errors.New("karotz: command failed")
)
