package store

import "errors"

var (
	// ErrStorageUnavailable indicates the database could not be opened or
	// migrated. The condition is latched: once a store fails to open, every
	// pending and subsequent operation fails with this error until the
	// process restarts with a working path.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMigrationFailed indicates a named migration step failed. It is
	// always wrapped together with ErrStorageUnavailable, since a store
	// that cannot migrate cannot serve operations.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrDecodeFailed indicates a read operation's row mapping failed
	// because the stored data did not match the expected shape. It affects
	// only the failing operation.
	ErrDecodeFailed = errors.New("row decode failed")

	// ErrClosed indicates the store was closed before the operation was
	// submitted.
	ErrClosed = errors.New("store closed")
)
