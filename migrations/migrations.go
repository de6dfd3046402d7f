// Package migrations embeds the SQL schema applied by pkg/database.Migrate.
package migrations

import "embed"

// Files holds the versioned up/down scripts.
//
//go:embed *.sql
var Files embed.FS
