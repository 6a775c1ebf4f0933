package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
	"github.com/nerrad567/gray-logic-karotz/internal/metrics"
)

// maxRuleExecutionTime is the hard limit for a single rule run.
const maxRuleExecutionTime = 60 * time.Second

// maxHistory is how many executions the engine keeps in memory.
const maxHistory = 100

// Commander issues commands to rabbits. The bridge implements it.
type Commander interface {
	HandleCommand(ctx context.Context, cmd karotz.CommandMessage) karotz.AckMessage
}

// Logger is the logging interface the engine needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine runs rules in response to webhook events.
//
// Event-triggered runs happen on their own goroutines so the webhook
// handler never waits on rabbit commands. Stop cancels in-flight runs and
// waits for them to return.
type Engine struct {
	rules     []Rule
	byID      map[string]int
	commander Commander
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	history []Execution
	stopped bool
}

// NewEngine validates the rules and creates an engine. Rule IDs must be unique.
func NewEngine(rules []Rule, commander Commander, logger Logger) (*Engine, error) {
	if commander == nil {
		return nil, errors.New("automation: commander is required")
	}
	if logger == nil {
		logger = noopLogger{}
	}

	byID := make(map[string]int, len(rules))
	loaded := make([]Rule, 0, len(rules))
	for i := range rules {
		r := rules[i]
		if err := ValidateRule(&r); err != nil {
			return nil, err
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
		byID[r.ID] = len(loaded)
		loaded = append(loaded, r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		rules:     loaded,
		byID:      byID,
		commander: commander,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Rules returns the loaded rules in definition order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule returns a rule by ID.
func (e *Engine) Rule(id string) (Rule, error) {
	idx, ok := e.byID[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return e.rules[idx], nil
}

// Executions returns recent executions, newest first.
func (e *Engine) Executions() []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Execution, len(e.history))
	for i, ex := range e.history {
		out[len(e.history)-1-i] = ex
	}
	return out
}

// DeviceStateChanged implements karotz.Listener. Rules only react to events.
func (e *Engine) DeviceStateChanged(karotz.StateMessage) {}

// DeviceEvent implements karotz.Listener and starts every enabled rule
// whose trigger matches the event.
func (e *Engine) DeviceEvent(msg karotz.EventMessage) {
	for _, r := range e.rules {
		if !r.Enabled || !r.Trigger.Matches(msg.Event) {
			continue
		}
		if !e.track() {
			return
		}
		e.logger.Debug("rule triggered", "rule_id", r.ID, "device_id", msg.DeviceID, "event", msg.Kind)
		go func(rule Rule) {
			defer e.wg.Done()
			e.execute(e.ctx, rule, "event")
		}(r)
	}
}

// Run executes a rule immediately and waits for it to finish. Disabled
// rules are refused.
func (e *Engine) Run(ctx context.Context, id string) (Execution, error) {
	r, err := e.Rule(id)
	if err != nil {
		return Execution{}, err
	}
	if !r.Enabled {
		return Execution{}, ErrRuleDisabled
	}
	if !e.track() {
		return Execution{}, ErrStopped
	}
	defer e.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	return e.execute(ctx, r, "manual"), nil
}

// Stop cancels in-flight executions and waits for them to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// track registers a run with the wait group unless the engine is stopped.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *Engine) execute(ctx context.Context, r Rule, source string) Execution {
	ctx, cancel := context.WithTimeout(ctx, maxRuleExecutionTime)
	defer cancel()

	started := time.Now().UTC()
	exec := Execution{
		ID:            uuid.NewString(),
		RuleID:        r.ID,
		TriggeredAt:   started,
		TriggerSource: source,
		Status:        StatusRunning,
		ActionsTotal:  len(r.Actions),
	}

	e.logger.Info("rule execution started",
		"rule_id", r.ID,
		"execution_id", exec.ID,
		"source", source,
		"actions", len(r.Actions),
	)

	var (
		failures  []ActionFailure
		completed int
		failed    int
		skipped   int
		aborted   bool
		cancelled bool
		offset    int
	)

	for _, group := range groupActions(r.Actions) {
		if aborted || cancelled {
			skipped += len(group)
			offset += len(group)
			continue
		}
		if ctx.Err() != nil {
			cancelled = true
			skipped += len(group)
			offset += len(group)
			continue
		}

		groupFailures := e.executeGroup(ctx, r.ID, offset, group)
		completed += len(group) - len(groupFailures)
		failed += len(groupFailures)
		failures = append(failures, groupFailures...)

		for _, gf := range groupFailures {
			if !r.Actions[gf.ActionIndex].ContinueOnError {
				aborted = true
				break
			}
		}
		offset += len(group)
	}
	if failed > 0 && ctx.Err() != nil {
		cancelled = true
	}

	completedAt := time.Now().UTC()
	exec.CompletedAt = &completedAt
	exec.ActionsCompleted = completed
	exec.ActionsFailed = failed
	exec.ActionsSkipped = skipped
	exec.Failures = failures
	exec.DurationMS = int(completedAt.Sub(started).Milliseconds())

	switch {
	case cancelled:
		exec.Status = StatusCancelled
	case failed > 0 && aborted:
		exec.Status = StatusFailed
	case failed > 0:
		exec.Status = StatusPartial
	default:
		exec.Status = StatusCompleted
	}

	e.record(exec)
	metrics.AutomationRuns.WithLabelValues(r.ID, string(exec.Status)).Inc()

	e.logger.Info("rule execution complete",
		"rule_id", r.ID,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", completed,
		"failed", failed,
		"skipped", skipped,
		"duration_ms", exec.DurationMS,
	)
	return exec
}

func (e *Engine) record(exec Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, exec)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// executeGroup runs all actions in a group concurrently. Failure indexes
// are relative to the whole rule.
func (e *Engine) executeGroup(ctx context.Context, ruleID string, offset int, actions []Action) []ActionFailure {
	var (
		mu       sync.Mutex
		failures []ActionFailure
		wg       sync.WaitGroup
	)

	for i, action := range actions {
		wg.Add(1)
		go func(idx int, a Action) {
			defer wg.Done()

			if f := e.executeAction(ctx, ruleID, a); f != nil {
				f.ActionIndex = idx
				mu.Lock()
				failures = append(failures, *f)
				mu.Unlock()
			}
		}(offset+i, action)
	}

	wg.Wait()
	return failures
}

func (e *Engine) executeAction(ctx context.Context, ruleID string, a Action) *ActionFailure {
	fail := func(code, msg string) *ActionFailure {
		return &ActionFailure{DeviceID: a.DeviceID, Command: a.Command, ErrorCode: code, ErrorMsg: msg}
	}

	if a.DelayMS > 0 {
		t := time.NewTimer(time.Duration(a.DelayMS) * time.Millisecond)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fail("CANCELLED", fmt.Sprintf("action delayed: %v", ctx.Err()))
		}
	}

	cmd := karotz.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   a.DeviceID,
		Command:    a.Command,
		Parameters: deepCopyMap(a.Parameters),
		Source:     "automation:" + ruleID,
	}

	ack := e.commander.HandleCommand(ctx, cmd)
	if ack.Status == karotz.AckAccepted {
		e.logger.Debug("rule action accepted", "rule_id", ruleID, "device_id", a.DeviceID, "command", a.Command)
		return nil
	}

	code, msg := karotz.ErrCodeCommandFailed, "command failed"
	if ack.Error != nil {
		code, msg = ack.Error.Code, ack.Error.Message
	}
	e.logger.Warn("rule action failed",
		"rule_id", ruleID,
		"device_id", a.DeviceID,
		"command", a.Command,
		"code", code,
		"error", msg,
	)
	return fail(code, msg)
}

// groupActions splits actions into sequential groups based on the Parallel flag.
//
// The first action always starts a new group. Subsequent actions with
// Parallel=true join the current group; Parallel=false starts a new group.
//
//	actions: [A(parallel=false), B(parallel=true), C(parallel=true), D(parallel=false)]
//	groups:  [[A, B, C], [D]]
func groupActions(actions []Action) [][]Action {
	if len(actions) == 0 {
		return nil
	}

	var groups [][]Action
	current := []Action{actions[0]}

	for _, action := range actions[1:] {
		if action.Parallel {
			current = append(current, action)
		} else {
			groups = append(groups, current)
			current = []Action{action}
		}
	}
	return append(groups, current)
}
