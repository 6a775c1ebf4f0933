package automation

import (
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
)

// Trigger event names.
const (
	EventButton     = "button"
	EventTagScanned = "tag_scanned"
)

// Rule binds a rabbit event to a list of device commands.
type Rule struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Trigger Trigger  `json:"trigger"`
	Actions []Action `json:"actions"`
}

// Trigger selects the events a rule reacts to.
//
// For button rules Type is one of karotz.TriggerTypes. For tag rules an
// empty TagID matches any tag.
type Trigger struct {
	DeviceID string `json:"device_id"`
	Event    string `json:"event"`
	Type     string `json:"type,omitempty"`
	TagID    string `json:"tag_id,omitempty"`
}

// Matches reports whether the webhook event fires this trigger.
func (t Trigger) Matches(ev karotz.Event) bool {
	if ev.DeviceID != t.DeviceID {
		return false
	}
	switch t.Event {
	case EventButton:
		return karotz.Trigger{DeviceID: t.DeviceID, Type: t.Type}.Matches(ev)
	case EventTagScanned:
		return ev.Kind == karotz.EventTagScanned && (t.TagID == "" || t.TagID == ev.TagID)
	default:
		return false
	}
}

// Action is a single device command within a rule.
//
// When Parallel is true the action joins the previous action's group;
// otherwise it starts a new sequential group.
type Action struct {
	DeviceID        string         `json:"device_id"`
	Command         string         `json:"command"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	DelayMS         int            `json:"delay_ms"`
	Parallel        bool           `json:"parallel"`
	ContinueOnError bool           `json:"continue_on_error"`
}

// Execution records one run of a rule.
type Execution struct {
	ID               string          `json:"id"`
	RuleID           string          `json:"rule_id"`
	TriggeredAt      time.Time       `json:"triggered_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	TriggerSource    string          `json:"trigger_source"` // event, manual
	Status           ExecutionStatus `json:"status"`
	ActionsTotal     int             `json:"actions_total"`
	ActionsCompleted int             `json:"actions_completed"`
	ActionsFailed    int             `json:"actions_failed"`
	ActionsSkipped   int             `json:"actions_skipped"`
	Failures         []ActionFailure `json:"failures,omitempty"`
	DurationMS       int             `json:"duration_ms"`
}

// ActionFailure records a failed action within an execution.
type ActionFailure struct {
	ActionIndex int    `json:"action_index"`
	DeviceID    string `json:"device_id"`
	Command     string `json:"command"`
	ErrorCode   string `json:"error_code"`
	ErrorMsg    string `json:"error_message"`
}

// ExecutionStatus represents the outcome of a rule execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"   // some actions failed, rule continued
	StatusFailed    ExecutionStatus = "failed"    // a fail-fast action failed, rule aborted
	StatusCancelled ExecutionStatus = "cancelled" // engine stopped mid-execution
)

// deepCopyMap copies parameters so parallel actions never share a map.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, item := range val {
			cpy[i] = deepCopyValue(item)
		}
		return cpy
	default:
		return v
	}
}
