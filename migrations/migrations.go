// Package migrations embeds the goose SQL migrations so binaries migrate
// themselves at startup without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
