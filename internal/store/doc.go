// Package store persists monitor customizations in a SQLite database under the
// state directory.
//
// The schema is embedded and versioned; a database written by a different
// schema version is rejected with ErrSchemaMismatch rather than migrated.
// Writes retry briefly on SQLITE_BUSY so the CLI and daemon can share the
// file. Store satisfies customization.Persister.
package store
