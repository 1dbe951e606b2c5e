// Package stores provides the persistence layer for openmerge. It
// includes SQLite-based storage with WAL mode, connection pooling and
// CRUD operations for merge-run history records.
package stores
