package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/audit"
	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
	"github.com/nerrad567/gray-logic-karotz/internal/device"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commander executes commands and publishes their acks.
// *karotz.Bridge implements it.
type Commander interface {
	HandleCommand(ctx context.Context, cmd karotz.CommandMessage) karotz.AckMessage
}

// HealthSource reports the bridge's health for GET /health.
// *karotz.Bridge implements it.
type HealthSource interface {
	HealthStatus() (karotz.HealthStatus, string)
}

// StatsSource reports bridge counters for GET /system.
// *karotz.Bridge implements it.
type StatsSource interface {
	Stats() karotz.BridgeStatistics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Panel    config.PanelConfig
	Logger   *logging.Logger

	// Devices holds the running rabbits.
	Devices *karotz.Manager

	// Registry supplies stored entries; optional.
	Registry *device.Registry

	// Commander executes REST commands; when nil they run directly
	// against the device without an MQTT ack.
	Commander Commander

	// Events receives accepted webhook events; when nil they go to the
	// WebSocket hub only.
	Events karotz.EventSink

	// Activity serves the activity log; optional.
	Activity audit.Repository

	// Automations serves the rule list and manual runs; optional.
	Automations AutomationRunner

	// Health and Stats are optional.
	Health HealthSource
	Stats  StatsSource

	// Hub is used instead of creating one, so the bridge can broadcast
	// through it before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server of the Karotz bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	metricCfg   config.MetricsConfig
	panelCfg    config.PanelConfig
	logger      *logging.Logger
	devices     *karotz.Manager
	registry    *device.Registry
	commander   Commander
	events      karotz.EventSink
	activity    audit.Repository
	automations AutomationRunner
	health      HealthSource
	stats       StatsSource
	version     string
	hub         *Hub
	startTime   time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // cancels background goroutines on Close()
	done     chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("device manager is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		metricCfg:   deps.Metrics,
		panelCfg:    deps.Panel,
		logger:      deps.Logger,
		devices:     deps.Devices,
		registry:    deps.Registry,
		commander:   deps.Commander,
		events:      deps.Events,
		activity:    deps.Activity,
		automations: deps.Automations,
		health:      deps.Health,
		stats:       deps.Stats,
		version:     deps.Version,
		hub:         deps.Hub,
		startTime:   time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if s.events == nil {
		s.events = karotz.EventSinkFunc(func(ev karotz.Event) {
			s.hub.DeviceEvent(karotz.NewEventMessage(ev))
		})
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, binds the listener so that a port in use
// fails here, and serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.server = nil
		return fmt.Errorf("listening on %s: %w", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)), err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	srv := s.server
	done := s.done
	go func() {
		defer close(done)
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel, done := s.server, s.cancel, s.done
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-done
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
