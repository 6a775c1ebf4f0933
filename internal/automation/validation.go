package automation

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
)

const (
	maxNameLength  = 100
	maxActions     = 50
	maxDelayMS     = 60000
	maxRuleIDChars = 64
)

var ruleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateRule checks a rule definition before it is loaded into the engine.
func ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}
	if len(r.ID) > maxRuleIDChars || !ruleIDPattern.MatchString(r.ID) {
		return fmt.Errorf("%w: id %q must be lowercase letters, digits, '-' or '_'", ErrInvalidRule, r.ID)
	}
	if r.Name == "" || len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: %s: name must be 1-%d characters", ErrInvalidRule, r.ID, maxNameLength)
	}
	if err := validateTrigger(r.Trigger); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRule, r.ID, err)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: %s: at least one action is required", ErrInvalidRule, r.ID)
	}
	if len(r.Actions) > maxActions {
		return fmt.Errorf("%w: %s: at most %d actions allowed", ErrInvalidRule, r.ID, maxActions)
	}
	for i := range r.Actions {
		if err := ValidateAction(&r.Actions[i]); err != nil {
			return fmt.Errorf("%w: %s: action %d: %w", ErrInvalidRule, r.ID, i, err)
		}
	}
	return nil
}

func validateTrigger(t Trigger) error {
	if t.DeviceID == "" {
		return errors.New("trigger device_id is required")
	}
	switch t.Event {
	case EventButton:
		if t.TagID != "" {
			return fmt.Errorf("tag_id is only valid for %s triggers", EventTagScanned)
		}
		return karotz.ValidateTriggerType(t.Type)
	case EventTagScanned:
		if t.Type != "" {
			return fmt.Errorf("type is only valid for %s triggers", EventButton)
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger event %q", t.Event)
	}
}

// ValidateAction checks a single rule action.
func ValidateAction(a *Action) error {
	if a.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
	}
	if !slices.Contains(karotz.Commands, a.Command) {
		return fmt.Errorf("%w: unknown command %q", ErrInvalidAction, a.Command)
	}
	if a.DelayMS < 0 || a.DelayMS > maxDelayMS {
		return fmt.Errorf("%w: delay_ms must be 0-%d", ErrInvalidAction, maxDelayMS)
	}
	return nil
}
