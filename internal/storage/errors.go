package storage

import "errors"

var (
	// ErrStorageUnavailable means the cache directory or its index could
	// not be read, created or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotIndexed is returned when an operation names a key with no entry.
	ErrNotIndexed = errors.New("key not indexed")

	// ErrReservedKey rejects writes to SELF and LOG.
	ErrReservedKey = errors.New("reserved key")
)
