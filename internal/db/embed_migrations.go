package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by the migrate runner (cmd/migrate and store.Open) for the static tables:
// sync_status, schema_columns and audit_logs. Synced resource tables are created at runtime.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
