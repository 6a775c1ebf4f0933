package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  id: "karotz-test"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8099
karotz:
  poll_interval: 15
  devices:
    - name: "Kitchen rabbit"
      host: "192.168.1.20"
    - id: "hall"
      host: "192.168.1.21"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "karotz-test" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "karotz-test")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if got := cfg.GetPollInterval(); got != 15*time.Second {
		t.Errorf("GetPollInterval() = %v, want 15s", got)
	}
	if len(cfg.Karotz.Devices) != 2 {
		t.Fatalf("len(Karotz.Devices) = %d, want 2", len(cfg.Karotz.Devices))
	}
	if cfg.Karotz.Devices[0].ID != "karotz-192-168-1-20" {
		t.Errorf("Devices[0].ID = %q, want %q", cfg.Karotz.Devices[0].ID, "karotz-192-168-1-20")
	}
	if cfg.Karotz.Devices[1].Name != DefaultDeviceName {
		t.Errorf("Devices[1].Name = %q, want %q", cfg.Karotz.Devices[1].Name, DefaultDeviceName)
	}
	if cfg.Karotz.DefaultVoice != "claire" {
		t.Errorf("Karotz.DefaultVoice = %q, want %q", cfg.Karotz.DefaultVoice, "claire")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  id: ""
karotz:
  devices:
    - host: "10.0.0.5"
    - host: "10.0.0.5"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "bridge.id is required") {
		t.Errorf("error %q does not mention bridge.id", err)
	}
	if !strings.Contains(err.Error(), "already configured") {
		t.Errorf("error %q does not mention duplicate host", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Karotz.Devices = []KarotzDevice{{ID: "k1", Name: "Karotz", Host: "10.0.0.5"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing bridge ID", mutate: func(c *Config) { c.Bridge.ID = "" }, wantErr: true},
		{name: "negative activity retention", mutate: func(c *Config) { c.Bridge.ActivityRetention = -1 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{
			name:    "JWT enabled without secret",
			mutate:  func(c *Config) { c.Security.JWT.Enabled = true },
			wantErr: true,
		},
		{
			name: "JWT secret too short",
			mutate: func(c *Config) {
				c.Security.JWT.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: true,
		},
		{
			name: "JWT enabled with valid secret",
			mutate: func(c *Config) {
				c.Security.JWT.Enabled = true
				c.Security.JWT.Secret = validJWTSecret
			},
		},
		{name: "zero poll interval", mutate: func(c *Config) { c.Karotz.PollInterval = 0 }, wantErr: true},
		{name: "zero action timeout", mutate: func(c *Config) { c.Karotz.ActionTimeout = 0 }, wantErr: true},
		{
			name:    "device without host",
			mutate:  func(c *Config) { c.Karotz.Devices[0].Host = "" },
			wantErr: true,
		},
		{
			name: "duplicate device id",
			mutate: func(c *Config) {
				c.Karotz.Devices = append(c.Karotz.Devices, KarotzDevice{ID: "k1", Host: "10.0.0.6"})
			},
			wantErr: true,
		},
		{name: "no devices", mutate: func(c *Config) { c.Karotz.Devices = nil }},
		{
			name: "automation on configured device",
			mutate: func(c *Config) {
				c.Automations = []AutomationRule{{
					ID:      "wake",
					Trigger: AutomationTrigger{DeviceID: "k1", Event: "button", Type: "dclick"},
					Actions: []AutomationAction{{DeviceID: "k1", Command: "wakeup"}},
				}}
			},
		},
		{
			name: "automation without id",
			mutate: func(c *Config) {
				c.Automations = []AutomationRule{{Trigger: AutomationTrigger{DeviceID: "k1"}}}
			},
			wantErr: true,
		},
		{
			name: "automation on unknown device",
			mutate: func(c *Config) {
				c.Automations = []AutomationRule{{
					ID:      "wake",
					Trigger: AutomationTrigger{DeviceID: "k1"},
					Actions: []AutomationAction{{DeviceID: "nabaztag", Command: "wakeup"}},
				}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Automations(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  id: "karotz-test"
database:
  path: "/tmp/test.db"
karotz:
  devices:
    - id: "lapin"
      host: "192.168.1.20"
automations:
  - id: "morning"
    name: "Morning greeting"
    trigger:
      device_id: "lapin"
      event: "button"
      type: "dclick"
    actions:
      - device_id: "lapin"
        command: "tts"
        parameters:
          text: "Bonjour"
      - device_id: "lapin"
        command: "ears_random"
        parallel: true
  - id: "badge"
    name: "Badge"
    enabled: false
    trigger:
      device_id: "lapin"
      event: "tag_scanned"
    actions:
      - device_id: "lapin"
        command: "sleep"
        delay_ms: 500
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Automations) != 2 {
		t.Fatalf("len(Automations) = %d, want 2", len(cfg.Automations))
	}

	morning := cfg.Automations[0]
	if !morning.IsEnabled() {
		t.Error("rules without enabled should default to enabled")
	}
	if morning.Trigger.Type != "dclick" || len(morning.Actions) != 2 {
		t.Errorf("morning = %+v", morning)
	}
	if morning.Actions[0].Parameters["text"] != "Bonjour" || !morning.Actions[1].Parallel {
		t.Errorf("morning actions = %+v", morning.Actions)
	}

	badge := cfg.Automations[1]
	if badge.IsEnabled() {
		t.Error("badge rule should be disabled")
	}
	if badge.Actions[0].DelayMS != 500 {
		t.Errorf("DelayMS = %d, want 500", badge.Actions[0].DelayMS)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Karotz: KarotzConfig{
			ActionTimeout:   10,
			SnapshotTimeout: 5,
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetActionTimeout().Seconds(); got != 10 {
		t.Errorf("GetActionTimeout() = %v, want 10", got)
	}
	if got := cfg.GetSnapshotTimeout().Seconds(); got != 5 {
		t.Errorf("GetSnapshotTimeout() = %v, want 5", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_API_PUBLIC_URL", "http://ha.local:8099")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "jwt-secret")
	t.Setenv("GRAYLOGIC_KAROTZ_HOST", "192.168.1.50")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.PublicURL != "http://ha.local:8099" {
		t.Errorf("API.PublicURL = %q, want %q", cfg.API.PublicURL, "http://ha.local:8099")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if len(cfg.Karotz.Devices) != 1 || cfg.Karotz.Devices[0].Host != "192.168.1.50" {
		t.Errorf("Karotz.Devices = %+v, want one device at 192.168.1.50", cfg.Karotz.Devices)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Karotz.PollInterval != 30 {
		t.Errorf("defaultConfig Karotz.PollInterval = %d, want 30", cfg.Karotz.PollInterval)
	}
	if cfg.Karotz.ActionTimeout != 10 {
		t.Errorf("defaultConfig Karotz.ActionTimeout = %d, want 10", cfg.Karotz.ActionTimeout)
	}
	if cfg.Karotz.SnapshotTimeout != 5 {
		t.Errorf("defaultConfig Karotz.SnapshotTimeout = %d, want 5", cfg.Karotz.SnapshotTimeout)
	}
	if !cfg.Panel.Enabled {
		t.Error("defaultConfig should enable the status panel")
	}
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		api  APIConfig
		want string
	}{
		{name: "explicit", api: APIConfig{PublicURL: "http://ha.local:8123/"}, want: "http://ha.local:8123"},
		{name: "wildcard host", api: APIConfig{Host: "0.0.0.0", Port: 8099}, want: "http://localhost:8099"},
		{name: "fixed host", api: APIConfig{Host: "10.1.1.1", Port: 80}, want: "http://10.1.1.1:80"},
		{name: "tls", api: APIConfig{Host: "bridge", Port: 443, TLS: TLSConfig{Enabled: true}}, want: "https://bridge:443"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{API: tt.api}
			if got := cfg.PublicBaseURL(); got != tt.want {
				t.Errorf("PublicBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if len(cfg.Karotz.Devices) == 0 {
		t.Error("example config should declare a device")
	}
	if len(cfg.Automations) == 0 {
		t.Error("example config should declare automations")
	}
}
