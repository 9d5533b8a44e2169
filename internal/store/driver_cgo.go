//go:build docdex_cgo

package store

// CGO build: mattn/go-sqlite3. Faster on large stores, needs a C toolchain.
//
// Build command:
//   CGO_ENABLED=1 go build -tags docdex_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used for the store.
const DriverName = "sqlite3"
