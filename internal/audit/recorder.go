package audit

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
)

// writeTimeout bounds one activity insert.
const writeTimeout = 2 * time.Second

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes bridge activity to a Repository. It is the bridge's
// karotz.CommandAuditor and a karotz.Listener for webhook events.
// Write failures are logged and never fail the command.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder over repo. logger may be nil.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordCommand implements karotz.CommandAuditor.
func (r *Recorder) RecordCommand(ctx context.Context, cmd karotz.CommandMessage, ack karotz.AckMessage) {
	e := &Entry{
		DeviceID: cmd.DeviceID,
		Kind:     KindCommand,
		Name:     cmd.Command,
		Source:   cmd.Source,
		UserID:   cmd.UserID,
		Status:   string(ack.Status),
	}
	if len(cmd.Parameters) > 0 {
		e.Details = map[string]any{"parameters": cmd.Parameters}
	}
	if ack.Error != nil {
		e.ErrorCode = ack.Error.Code
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["message"] = ack.Error.Message
	}
	if cmd.ID != "" {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["command_id"] = cmd.ID
	}
	r.write(context.WithoutCancel(ctx), e)
}

// DeviceEvent implements karotz.Listener.
func (r *Recorder) DeviceEvent(msg karotz.EventMessage) {
	e := &Entry{
		DeviceID:  msg.DeviceID,
		Kind:      KindEvent,
		Name:      string(msg.Kind),
		Source:    "webhook",
		Status:    "received",
		CreatedAt: msg.Timestamp,
	}
	switch {
	case msg.TagID != "":
		e.Details = map[string]any{"tag_id": msg.TagID}
	case msg.Type != "":
		e.Details = map[string]any{"type": msg.Type}
	}
	r.write(context.Background(), e)
}

// DeviceStateChanged implements karotz.Listener. State is not logged.
func (r *Recorder) DeviceStateChanged(karotz.StateMessage) {}

func (r *Recorder) write(ctx context.Context, e *Entry) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, e); err != nil && r.logger != nil {
		r.logger.Warn("activity log write failed", "device_id", e.DeviceID, "name", e.Name, "error", err)
	}
}
