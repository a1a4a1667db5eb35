package migrations

import "embed"

// Files holds the goose migrations for the profiles and collections schema.
//
//go:embed *.sql
var Files embed.FS
