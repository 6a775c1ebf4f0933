// Package migrations embeds the bridge's SQL migrations into the binary.
package migrations

import "embed"

// FS holds every *.sql migration at its root; pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
