// Package migrations embeds the SQL schema so the server and the migrate
// command can run it without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
