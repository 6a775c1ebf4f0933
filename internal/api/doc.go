// Package api provides the HTTP REST API and WebSocket server of the
// Karotz bridge.
//
// It exposes the configured rabbits (state, snapshots, triggers), accepts
// commands with the same vocabulary as the MQTT command topic, receives
// the rabbits' webhook events and streams state changes and events to
// WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Command endpoints require a Bearer JWT with the operator role when
// security.jwt.enabled is set. The webhook endpoint is never
// authenticated: the webhook id in its path is the shared secret.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
