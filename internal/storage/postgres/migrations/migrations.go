// Package migrations embeds the Postgres schema for job-run persistence.
package migrations

import "embed"

// FS holds the ordered up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
