// Package store keeps a local history of review verdicts in SQLite.
//
// The database uses the pure-Go modernc.org/sqlite driver in WAL mode. Schema
// migrations are embedded in the binary and applied on Open. Each verdict is
// stored whole as JSON next to a handful of indexed columns used for listing.
package store
