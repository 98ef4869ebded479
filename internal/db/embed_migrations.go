package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by cmd/migrate and by cmd/server when MIGRATE_ON_START is set.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
