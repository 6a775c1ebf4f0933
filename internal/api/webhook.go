package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
)

// handleWebhook receives RFID and button events pushed by a rabbit.
//
// The rabbit only looks at the status code; replies are plain text:
// 200 "OK", 400 with the rejection reason, 404 for an unknown webhook id.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhook_id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if _, err := s.devices.HandleWebhook(webhookID, body, s.events); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, karotz.ErrDeviceNotFound) {
			status = http.StatusNotFound
			s.logger.Warn("webhook for unknown id", "remote", r.RemoteAddr)
		}
		writeText(w, status, karotz.WebhookReason(err))
		return
	}

	writeText(w, http.StatusOK, "OK")
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	io.WriteString(w, body)
}
