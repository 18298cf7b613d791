package db

import "embed"

// MigrationFS embeds the settings and events table migrations.
// Applied by internal/db/migrate (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
