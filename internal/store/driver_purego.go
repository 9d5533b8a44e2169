//go:build !docdex_cgo

package store

// Default build: pure Go SQLite driver, no C compiler required.
// Build with -tags docdex_cgo to use the CGO driver instead.

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used for the store.
const DriverName = "sqlite"
