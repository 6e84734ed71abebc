// Package store persists legacy contact sources and unified identities in a
// relational database.
//
// Two dialects are supported behind database/sql: SQLite through
// modernc.org/sqlite (the default, a single file under the data directory)
// and PostgreSQL through the pgx stdlib driver. Open applies the embedded,
// versioned migrations for the selected dialect and returns a Store whose
// read paths stream rows in id order using keyset pagination so memory stays
// bounded regardless of table size.
//
// Mutations run through InTx. A Tx offers the bulk identity insert (which can
// ignore duplicate-key rows), the single-row insert used by the per-row
// fallback, savepoints for nested atomic sections, and the consent-only bulk
// update used by the backfill. Uniqueness violations from either driver are
// normalized to ErrUniqueViolation.
//
// Table names are never hard-coded in the read and write paths; callers pass
// schema.Handle values resolved from the catalog.
package store
