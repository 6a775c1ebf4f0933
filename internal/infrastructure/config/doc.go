// Package config handles loading and validating the Karotz bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYLOGIC_*)
//   - Validation of required fields and device uniqueness
//   - Default value handling, including the 30 s status poll period
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range cfg.Karotz.Devices {
//	    fmt.Println(d.ID, d.Host)
//	}
package config
