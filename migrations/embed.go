// Package migrations embeds the SQL schema migrations
package migrations

import "embed"

// FS holds every NNN_description.sql file
//
//go:embed *.sql
var FS embed.FS
