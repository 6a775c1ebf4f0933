package automation

import "errors"

var (
	// ErrInvalidRule is returned when a rule definition fails validation.
	ErrInvalidRule = errors.New("automation: invalid rule")

	// ErrInvalidAction is returned when a rule action is invalid.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("automation: rule not found")

	// ErrRuleDisabled is returned when running a disabled rule.
	ErrRuleDisabled = errors.New("automation: rule disabled")

	// ErrStopped is returned once the engine has been stopped.
	ErrStopped = errors.New("automation: engine stopped")
)
