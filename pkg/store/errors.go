// Package store implements the in-memory, mutex-protected, indexed
// stores: a map keyed by primary ID, secondary indexes by
// federate/correlation/status/conflict-key/time-window, deterministic
// listings, and an idempotent cleanup_expired operation. Adapted from
// pkg/store/audit_store.go's mutex + primary map + indexes +
// QueryFilter.matches() + chain/sequence bookkeeping pattern,
// generalized into one store per entity family.
//
// Durable reference adapters (Postgres via lib/pq, SQLite via
// modernc.org/sqlite, and go-sqlmock-driven tests of the SQL adapter's
// query shape) live in sql_store.go, without making these in-memory
// stores themselves crash-durable.
package store

import "errors"

// ErrDuplicateID is returned when Insert is called with a primary key
// that already exists ("Inserts fail with DuplicateId").
var ErrDuplicateID = errors.New("store: duplicate id")

// ErrNotFound is returned by Get/lookup operations that miss.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an update would mutate a record that is
// already in a terminal state ("Once decided, status is
// terminal.").
var ErrConflict = errors.New("store: terminal state conflict")
