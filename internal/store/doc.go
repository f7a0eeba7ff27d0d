// Package store owns the SQL connection backing the admin panel.
//
// Open connects to SQLite (modernc.org/sqlite, the default) or PostgreSQL
// (pgx through database/sql), applies the embedded migrations for that
// dialect, and returns a Store whose Exec/Query helpers rebind `?`
// placeholders for the active driver and retry transient SQLITE_BUSY errors.
//
// Higher layers (the generic mapper and the entity mappers) never talk to
// database/sql directly; they go through Store so placeholder style and
// transaction handling stay in one place.
package store
