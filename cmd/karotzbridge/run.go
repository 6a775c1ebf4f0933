package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-karotz/internal/api"
	"github.com/nerrad567/gray-logic-karotz/internal/audit"
	"github.com/nerrad567/gray-logic-karotz/internal/automation"
	"github.com/nerrad567/gray-logic-karotz/internal/bridges/karotz"
	"github.com/nerrad567/gray-logic-karotz/internal/device"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-karotz/migrations"
)

// run is the application lifecycle, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Gray Logic Karotz bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Karotz.Devices))

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	entries, err := registry.Sync(ctx, deviceSpecs(cfg))
	if err != nil {
		return fmt.Errorf("syncing device entries: %w", err)
	}
	log.Info("device entries synced", "entries", len(entries))

	activity := audit.NewSQLiteRepository(db.DB)
	pruneActivity(ctx, activity, cfg.Bridge.ActivityRetention, log)
	recorder := audit.NewRecorder(activity, log.Component("audit"))

	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	devices := karotz.NewManager()
	defer devices.Close()
	setupDevices(ctx, cfg, entries, devices, influxClient, log)

	bridgeOpts := karotz.BridgeOptions{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		Devices:        devices,
		MQTTClient:     mqttClient,
		Firmware:       registry,
		Audit:          recorder,
		Logger:         log.Component("karotz-bridge"),
	}
	if influxClient != nil {
		bridgeOpts.Events = influxClient
	}
	bridge, err := karotz.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating karotz bridge: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log)
	bridge.AddListener(hub)
	bridge.AddListener(recorder)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting karotz bridge: %w", err)
	}
	defer bridge.Stop()

	engine, err := automation.NewEngine(automationRules(cfg), bridge, log.Component("automation"))
	if err != nil {
		return fmt.Errorf("loading automations: %w", err)
	}
	defer engine.Stop()
	bridge.AddListener(engine)
	log.Info("automations loaded", "rules", len(cfg.Automations))

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Metrics:     cfg.Metrics,
		Panel:       cfg.Panel,
		Logger:      log.Component("api"),
		Devices:     devices,
		Registry:    registry,
		Activity:    activity,
		Commander:   bridge,
		Events:      bridge,
		Health:      bridge,
		Stats:       bridge,
		Automations: engine,
		Hub:         hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "addr", server.Addr(), "public_url", cfg.PublicBaseURL())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "devices", devices.Len())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, automations, bridge, devices,
	// InfluxDB, MQTT, database.
	return nil
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	return db, nil
}

// pruneActivity drops activity entries older than retentionDays.
func pruneActivity(ctx context.Context, repo *audit.SQLiteRepository, retentionDays int, log *logging.Logger) {
	if retentionDays == 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err := repo.Prune(ctx, cutoff)
	if err != nil {
		log.Warn("activity prune failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("activity log pruned", "removed", n, "retention_days", retentionDays)
	}
}

// automationRules converts configured rules for the engine.
func automationRules(cfg *config.Config) []automation.Rule {
	rules := make([]automation.Rule, 0, len(cfg.Automations))
	for _, r := range cfg.Automations {
		actions := make([]automation.Action, 0, len(r.Actions))
		for _, a := range r.Actions {
			actions = append(actions, automation.Action{
				DeviceID:        a.DeviceID,
				Command:         a.Command,
				Parameters:      a.Parameters,
				DelayMS:         a.DelayMS,
				Parallel:        a.Parallel,
				ContinueOnError: a.ContinueOnError,
			})
		}
		name := r.Name
		if name == "" {
			name = r.ID
		}
		rules = append(rules, automation.Rule{
			ID:      r.ID,
			Name:    name,
			Enabled: r.IsEnabled(),
			Trigger: automation.Trigger{
				DeviceID: r.Trigger.DeviceID,
				Event:    r.Trigger.Event,
				Type:     r.Trigger.Type,
				TagID:    r.Trigger.TagID,
			},
			Actions: actions,
		})
	}
	return rules
}

func deviceSpecs(cfg *config.Config) []device.Spec {
	specs := make([]device.Spec, 0, len(cfg.Karotz.Devices))
	for _, d := range cfg.Karotz.Devices {
		specs = append(specs, device.Spec{ID: d.ID, Name: d.Name, Host: d.Host})
	}
	return specs
}

// setupDevices builds and bootstraps one device per entry. A rabbit that
// fails its first refresh is skipped; the others still start.
func setupDevices(ctx context.Context, cfg *config.Config, entries []device.Entry, devices *karotz.Manager, influxClient *influxdb.Client, log *logging.Logger) {
	for _, e := range entries {
		dcfg := karotz.DeviceConfig{
			Info: karotz.DeviceInfo{
				ID:        e.ID,
				Name:      e.Name,
				Host:      e.Host,
				WebhookID: e.WebhookID,
			},
			PollInterval:    cfg.GetPollInterval(),
			ActionTimeout:   cfg.GetActionTimeout(),
			SnapshotTimeout: cfg.GetSnapshotTimeout(),
			DefaultVoice:    cfg.Karotz.DefaultVoice,
			PublicURL:       cfg.PublicBaseURL(),
			Logger:          log.Component("karotz").With("device_id", e.ID),
		}
		if influxClient != nil {
			dcfg.Recorder = influxClient
		}

		d, err := karotz.NewDevice(dcfg)
		if err != nil {
			log.Error("invalid karotz device", "device_id", e.ID, "error", err)
			continue
		}
		if err := d.Setup(ctx); err != nil {
			if errors.Is(err, karotz.ErrSetupFailed) {
				log.Error("karotz device not ready, skipping", "device_id", e.ID, "host", e.Host, "error", err)
			} else {
				log.Error("karotz device setup failed", "device_id", e.ID, "error", err)
			}
			continue
		}
		if err := devices.Add(d); err != nil {
			d.Close()
			log.Error("karotz device not added", "device_id", e.ID, "error", err)
			continue
		}
		log.Info("karotz device ready", "device_id", e.ID, "host", e.Host)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
