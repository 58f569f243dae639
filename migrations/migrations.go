// Package migrations embeds the SQL schema for the Postgres session store.
package migrations

import "embed"

// FS holds the golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
