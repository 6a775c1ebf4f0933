package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Karotz bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Panel     PanelConfig     `yaml:"panel"`
	Security  SecurityConfig  `yaml:"security"`
	Karotz    KarotzConfig    `yaml:"karotz"`

	Automations []AutomationRule `yaml:"automations"`
}

// BridgeConfig identifies this bridge instance on the Gray Logic bus.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	HealthInterval int    `yaml:"health_interval"` // seconds

	// ActivityRetention is how many days of activity log to keep; 0 keeps
	// everything.
	ActivityRetention int `yaml:"activity_retention"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
//
// PublicURL is the base URL the rabbit uses to reach the webhook endpoint.
// When empty it is derived from Host and Port.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	PublicURL string           `yaml:"public_url"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PanelConfig controls the status page served at /panel/.
type PanelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // serve assets from disk instead of the binary
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
//
// When Enabled is false the command endpoints are open. The webhook
// endpoint is never authenticated: the webhook id is the shared secret.
type JWTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// KarotzConfig contains the OpenKarotz device settings.
type KarotzConfig struct {
	PollInterval    int            `yaml:"poll_interval"`    // seconds
	ActionTimeout   int            `yaml:"action_timeout"`   // seconds
	SnapshotTimeout int            `yaml:"snapshot_timeout"` // seconds
	DefaultVoice    string         `yaml:"default_voice"`
	Devices         []KarotzDevice `yaml:"devices"`
}

// KarotzDevice describes one rabbit on the local network.
type KarotzDevice struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Host string `yaml:"host"`
}

// AutomationRule reacts to a rabbit event with a list of commands.
type AutomationRule struct {
	ID      string             `yaml:"id"`
	Name    string             `yaml:"name"`
	Enabled *bool              `yaml:"enabled"` // default true
	Trigger AutomationTrigger  `yaml:"trigger"`
	Actions []AutomationAction `yaml:"actions"`
}

// IsEnabled reports whether the rule is enabled. Rules are enabled unless
// explicitly disabled.
func (r AutomationRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// AutomationTrigger selects a button gesture or tag scan on one rabbit.
type AutomationTrigger struct {
	DeviceID string `yaml:"device_id"`
	Event    string `yaml:"event"` // button, tag_scanned
	Type     string `yaml:"type"`
	TagID    string `yaml:"tag_id"`
}

// AutomationAction is one command issued by a rule.
type AutomationAction struct {
	DeviceID        string         `yaml:"device_id"`
	Command         string         `yaml:"command"`
	Parameters      map[string]any `yaml:"parameters"`
	DelayMS         int            `yaml:"delay_ms"`
	Parallel        bool           `yaml:"parallel"`
	ContinueOnError bool           `yaml:"continue_on_error"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_KAROTZ_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normaliseDevices()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:                "karotz-bridge-01",
			HealthInterval:    30,
			ActivityRetention: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/karotz.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-karotz",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Panel: PanelConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Karotz: KarotzConfig{
			PollInterval:    30,
			ActionTimeout:   10,
			SnapshotTimeout: 5,
			DefaultVoice:    "claire",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PUBLIC_URL"); v != "" {
		cfg.API.PublicURL = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Karotz: single-device installs can skip the devices list entirely.
	if v := os.Getenv("GRAYLOGIC_KAROTZ_HOST"); v != "" {
		if len(cfg.Karotz.Devices) == 0 {
			cfg.Karotz.Devices = append(cfg.Karotz.Devices, KarotzDevice{})
		}
		cfg.Karotz.Devices[0].Host = v
	}
}

// normaliseDevices fills in default ids and names for configured rabbits.
func (c *Config) normaliseDevices() {
	for i := range c.Karotz.Devices {
		d := &c.Karotz.Devices[i]
		d.Host = strings.TrimSpace(d.Host)
		if d.Name == "" {
			d.Name = DefaultDeviceName
		}
		if d.ID == "" {
			d.ID = deviceIDFromHost(d.Host)
		}
	}
}

// DefaultDeviceName is used when a device entry carries no name.
const DefaultDeviceName = "Karotz"

// deviceIDFromHost turns "192.168.1.20:80" into "karotz-192-168-1-20-80".
func deviceIDFromHost(host string) string {
	r := strings.NewReplacer(".", "-", ":", "-", "/", "-")
	return "karotz-" + strings.ToLower(r.Replace(host))
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Bridge.ActivityRetention < 0 {
		errs = append(errs, "bridge.activity_retention must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// An empty or short secret would let anyone forge command tokens.
	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if c.Karotz.PollInterval < 1 {
		errs = append(errs, "karotz.poll_interval must be at least 1 second")
	}
	if c.Karotz.ActionTimeout < 1 {
		errs = append(errs, "karotz.action_timeout must be at least 1 second")
	}
	if c.Karotz.SnapshotTimeout < 1 {
		errs = append(errs, "karotz.snapshot_timeout must be at least 1 second")
	}

	ids := make(map[string]bool)
	hosts := make(map[string]bool)
	for i, d := range c.Karotz.Devices {
		if d.Host == "" {
			errs = append(errs, fmt.Sprintf("karotz.devices[%d].host is required", i))
			continue
		}
		if hosts[d.Host] {
			errs = append(errs, fmt.Sprintf("karotz.devices[%d].host %q is already configured", i, d.Host))
		}
		hosts[d.Host] = true
		if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("karotz.devices[%d].id %q is already configured", i, d.ID))
		}
		ids[d.ID] = true
	}

	errs = append(errs, c.validateAutomations(ids)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateAutomations checks rule ids and device references. Trigger and
// command semantics are checked when the rules are loaded.
func (c *Config) validateAutomations(devices map[string]bool) []string {
	var errs []string
	seen := make(map[string]bool)
	for i, r := range c.Automations {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("automations[%d].id is required", i))
		} else if seen[r.ID] {
			errs = append(errs, fmt.Sprintf("automations[%d].id %q is already configured", i, r.ID))
		}
		seen[r.ID] = true

		if !devices[r.Trigger.DeviceID] {
			errs = append(errs, fmt.Sprintf("automations[%d].trigger.device_id %q is not a configured device", i, r.Trigger.DeviceID))
		}
		for j, a := range r.Actions {
			if !devices[a.DeviceID] {
				errs = append(errs, fmt.Sprintf("automations[%d].actions[%d].device_id %q is not a configured device", i, j, a.DeviceID))
			}
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetPollInterval returns the status poll period as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Karotz.PollInterval) * time.Second
}

// GetActionTimeout returns the per-request timeout for device actions.
func (c *Config) GetActionTimeout() time.Duration {
	return time.Duration(c.Karotz.ActionTimeout) * time.Second
}

// GetSnapshotTimeout returns the per-request timeout for camera snapshots.
func (c *Config) GetSnapshotTimeout() time.Duration {
	return time.Duration(c.Karotz.SnapshotTimeout) * time.Second
}

// GetHealthInterval returns the bridge health publish period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// PublicBaseURL returns the externally reachable base URL of the API
// without a trailing slash.
func (c *Config) PublicBaseURL() string {
	if c.API.PublicURL != "" {
		return strings.TrimRight(c.API.PublicURL, "/")
	}
	host := c.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	scheme := "http"
	if c.API.TLS.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, fmt.Sprint(c.API.Port)))
}
