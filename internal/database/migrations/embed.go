// Package migrations embeds the SQL schema for both store backends.
package migrations

import "embed"

// Postgres contains the PostgreSQL migrations.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains the SQLite migrations.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
