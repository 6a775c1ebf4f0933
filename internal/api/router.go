package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-karotz/internal/auth"
	"github.com/nerrad567/gray-logic-karotz/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricCfg.Enabled {
		path := s.metricCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	if s.panelCfg.Enabled {
		r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.panelCfg.Dir)))
		r.Get("/panel", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/panel/", http.StatusMovedPermanently)
		})
	}

	// Rabbit callbacks. The webhook id is the secret.
	r.Post("/api/webhook/{webhook_id}", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(s.deviceCtx)

					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/snapshot", s.handleSnapshot)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/triggers", s.handleListTriggers)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/activity", s.handleDeviceActivity)
					r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/commands", s.handleCommand)
					r.With(s.requirePermission(auth.PermDeviceOperate)).Post("/refresh", s.handleRefresh)
				})
			})

			r.Route("/automations", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleListAutomations)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/executions", s.handleListExecutions)
				r.With(s.requirePermission(auth.PermAutomationRun)).Post("/{id}/run", s.handleRunAutomation)
			})

			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/system", s.handleSystem)
			r.With(s.requirePermission(auth.PermActivityRead)).Get("/activity", s.handleActivity)

			// WebSocket; browsers cannot set headers, so the token may
			// also come as ?token=.
			r.With(s.requirePermission(auth.PermDeviceRead)).Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := 0
	devices := s.devices.List()
	for _, d := range devices {
		if d.Available() {
			available++
		}
	}

	resp := map[string]any{
		"status":            "ok",
		"version":           s.version,
		"devices":           len(devices),
		"devices_available": available,
		"websocket_clients": s.hub.ClientCount(),
	}
	if s.health != nil {
		status, reason := s.health.HealthStatus()
		resp["bridge"] = status
		if reason != "" {
			resp["reason"] = reason
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
