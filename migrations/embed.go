// Package migrations embeds the archive schema so the binary can migrate
// Postgres without the SQL files on disk.
package migrations

import "embed"

// FS holds the numbered up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
