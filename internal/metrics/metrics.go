// Package metrics holds the Prometheus collectors exported by the karotz
// bridge. Collectors register with the default registry on package init and
// are served by promhttp on the API server's metrics path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values shared by the counters below.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

var (
	// Device client metrics
	ClientRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_client_requests_total",
		Help: "Requests sent to Karotz CGI endpoints by endpoint and result",
	}, []string{"endpoint", "result"}) // result: success|failure|error

	ClientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "karotz_client_request_duration_seconds",
		Help:    "Karotz CGI request latency",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	// Coordinator metrics
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_poll_total",
		Help: "Status polls by device and result",
	}, []string{"device", "result"})

	DeviceAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "karotz_device_available",
		Help: "Device availability from the last status poll (1=available)",
	}, []string{"device"})

	// Bridge metrics
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_commands_total",
		Help: "Commands handled by command name and result",
	}, []string{"command", "result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_webhook_events_total",
		Help: "Webhook callbacks by event kind (rejected for parse errors)",
	}, []string{"kind"})

	// History metrics
	HistoryPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_history_points_total",
		Help: "Points queued for InfluxDB by measurement",
	}, []string{"measurement"})

	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "karotz_history_write_errors_total",
		Help: "Failed InfluxDB batch writes",
	})

	// Automation metrics
	AutomationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "karotz_automation_runs_total",
		Help: "Rule executions by rule and final status",
	}, []string{"rule", "status"})

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method, route, and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "karotz_websocket_clients",
		Help: "Connected WebSocket clients",
	})
)
