// Package dbmigrations exposes embedded SQL migrations for tessera binaries
// and integration tests.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into tessera binaries.
//
//go:embed *.sql
var Files embed.FS
