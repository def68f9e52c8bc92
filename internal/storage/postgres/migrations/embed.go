// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS contains the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
