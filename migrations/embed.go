// Package migrations embeds the almsdata schema migrations for use at runtime.
// Migrations are embedded so `alms migrate` works regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem.
// Contains all .sql files in this directory (e.g. 001_core.sql).
//
//go:embed *.sql
var FS embed.FS
