// Package logging provides structured logging for the Karotz bridge.
//
// This package wraps Go's standard log/slog package so that every
// component (device client, coordinator, MQTT bridge, API server) logs
// through the same handler with the same default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	clientLog := logger.Component("karotz-client").With("host", host)
//	clientLog.Warn("action failed", "endpoint", "leds")
//
// Never log secrets, tokens, or passwords.
package logging
