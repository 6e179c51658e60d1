// Package migrations embeds the history schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
