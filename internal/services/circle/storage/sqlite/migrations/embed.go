package migrations

import "embed"

// FS contains embedded SQLite migrations for circle storage.
//
//go:embed *.sql
var FS embed.FS
