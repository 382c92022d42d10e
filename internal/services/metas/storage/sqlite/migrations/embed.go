package migrations

import "embed"

// FS contains embedded SQLite migrations for goal-management storage.
//
//go:embed *.sql
var FS embed.FS
