// Package device stores the config entries of the rabbits the bridge
// serves.
//
// An entry is configuration, not status: the rabbit's id, display name,
// host and the webhook id programmed into its event callback URL. Status
// lives only in memory, in the karotz coordinator.
//
// # Architecture
//
//	config.yaml karotz.devices ──Sync──▶ Registry (in-memory cache)
//	                                        │
//	                                        ▼
//	                              Repository (SQLite, karotz_devices)
//
// The host is the unique identity of a rabbit. Ensure keeps the webhook id
// of an existing host, so the URL stays valid across restarts and renames.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	entries, err := registry.Sync(ctx, specs)
//	if err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Lookups are served from the
// cache under a read-write mutex.
package device
