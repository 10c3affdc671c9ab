// Package migrations holds the Postgres schema, applied in filename order by internal/database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
