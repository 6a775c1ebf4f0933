package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
	"github.com/nerrad567/gray-logic-karotz/internal/device"
)

// ctxKeyDevice holds the *karotz.Device resolved by deviceCtx.
const ctxKeyDevice contextKey = "device"

// DeviceCommand is the request body for POST /devices/{id}/commands.
type DeviceCommand struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// DeviceResponse is one rabbit as returned by the device endpoints.
type DeviceResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Host            string             `json:"host"`
	FirmwareVersion string             `json:"firmware_version,omitempty"`
	CreatedAt       *time.Time         `json:"created_at,omitempty"`
	Available       bool               `json:"available"`
	State           karotz.DeviceState `json:"state"`
}

// deviceCtx resolves {id} to a running device.
func (s *Server) deviceCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.devices.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeNotFound(w, "device not found")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyDevice, d)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceFromContext(ctx context.Context) *karotz.Device {
	d, _ := ctx.Value(ctxKeyDevice).(*karotz.Device)
	return d
}

func (s *Server) deviceResponse(d *karotz.Device) DeviceResponse {
	state := d.State()
	resp := DeviceResponse{
		ID:        d.Info.ID,
		Name:      d.Info.Name,
		Host:      d.Info.Host,
		Available: state.Available,
		State:     state,
	}
	if s.registry != nil {
		if entry, err := s.registry.Get(d.Info.ID); err == nil {
			resp.FirmwareVersion = entry.FirmwareVersion
			created := entry.CreatedAt
			resp.CreatedAt = &created
		} else if !errors.Is(err, device.ErrEntryNotFound) {
			s.logger.Warn("entry lookup failed", "device_id", d.Info.ID, "error", err)
		}
	}
	return resp
}

// handleListDevices returns every running rabbit with its state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	list := s.devices.List()
	out := make([]DeviceResponse, 0, len(list))
	for _, d := range list {
		out = append(out, s.deviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns one rabbit with its state and webhook URL.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deviceResponse(deviceFromContext(r.Context())))
}

// handleSnapshot returns a camera JPEG, or 204 when the rabbit has none.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	img := deviceFromContext(r.Context()).Camera.Image(r.Context())
	if len(img) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img)
}

// handleListTriggers returns the button triggers a rabbit offers.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"triggers": karotz.Triggers(d.Info.ID)})
}

// handleCommand runs a command synchronously and returns its ack.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())

	var body DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	cmd := karotz.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   d.Info.ID,
		Command:    body.Command,
		Parameters: body.Parameters,
		Source:     "api",
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		cmd.UserID = claims.Subject
	}

	ack := s.execute(r.Context(), d, cmd)
	if ack.Error != nil {
		status, code := ackErrorStatus(ack.Error.Code)
		writeError(w, status, code, ack.Error.Message)
		return
	}

	s.logger.Info("device command executed",
		"device_id", d.Info.ID,
		"command", cmd.Command,
		"command_id", cmd.ID,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"command_id": cmd.ID,
		"status":     ack.Status,
		"state":      d.State(),
	})
}

func (s *Server) execute(ctx context.Context, d *karotz.Device, cmd karotz.CommandMessage) karotz.AckMessage {
	if s.commander != nil {
		return s.commander.HandleCommand(ctx, cmd)
	}
	if err := karotz.Execute(ctx, d, cmd.Command, cmd.Parameters); err != nil {
		code, message := karotz.ErrCodeCommandFailed, err.Error()
		var cerr *karotz.CommandError
		if errors.As(err, &cerr) {
			code, message = cerr.Code, cerr.Message
		}
		return karotz.NewAckError(cmd, code, message)
	}
	return karotz.NewAckMessage(cmd, karotz.AckAccepted)
}

// ackErrorStatus maps a command error code to an HTTP status and API code.
func ackErrorStatus(code string) (int, string) {
	switch code {
	case karotz.ErrCodeInvalidCommand, karotz.ErrCodeInvalidParameters:
		return http.StatusBadRequest, ErrCodeValidation
	case karotz.ErrCodeNotConfigured:
		return http.StatusNotFound, ErrCodeNotFound
	case karotz.ErrCodeDeviceUnreachable:
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusBadGateway, ErrCodeCommandFailed
	}
}

// handleRefresh polls the rabbit now, joining any poll in flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())
	if _, err := d.Coordinator.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deviceResponse(d))
}
