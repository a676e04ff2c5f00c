// Package migrations embeds the SQL schema so binaries migrate without a
// files-on-disk deployment step.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
