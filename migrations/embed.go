// Package migrations embeds the tickerbox SQLite schema into the binary.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
