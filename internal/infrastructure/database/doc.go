// Package database provides SQLite storage for the Karotz bridge.
//
// The database holds configuration entries only: one row per rabbit with
// its stable webhook id. Device status is never persisted.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or carry a
// DEFAULT, and every .up.sql should ship with a .down.sql.
package database
