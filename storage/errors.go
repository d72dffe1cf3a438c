package storage

import "errors"

var (
	// ErrNotFound indicates no block exists for the given CID.
	ErrNotFound = errors.New("storage: block not found")

	// ErrInvalidCID indicates the CID is undefined or cannot be computed.
	ErrInvalidCID = errors.New("storage: invalid CID")

	// ErrCIDMismatch indicates block bytes do not hash to the requested CID.
	ErrCIDMismatch = errors.New("storage: CID mismatch")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store an empty block.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrInvalidChunkSize indicates the chunk size is outside 1..MaxChunkSize.
	ErrInvalidChunkSize = errors.New("storage: chunk size out of range")

	// ErrSphereNotFound indicates the index has no record for a sphere identity.
	ErrSphereNotFound = errors.New("storage: sphere not found")

	// ErrSphereExists indicates a sphere identity is already registered.
	ErrSphereExists = errors.New("storage: sphere already exists")

	// ErrStaleVersion indicates a tip update raced with another writer.
	ErrStaleVersion = errors.New("storage: sphere version is stale")

	// ErrLocked indicates a lock file is held by another process.
	ErrLocked = errors.New("storage: lock is held")

	// ErrBlockTooLarge indicates a gateway served more than MaxBlockResponseSize bytes.
	ErrBlockTooLarge = errors.New("storage: block exceeds maximum size")

	// ErrIndexClosed indicates the sphere index has been closed.
	ErrIndexClosed = errors.New("storage: index closed")
)
