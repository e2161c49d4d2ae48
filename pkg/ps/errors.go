package ps

import "errors"

// Sentinel errors returned by ps backends.
var (
	// ErrTooLarge indicates a record longer than [MaxWords].
	//
	// This is a programming error.
	ErrTooLarge = errors.New("ps: record too large")

	// ErrClosed indicates the store has already been closed.
	ErrClosed = errors.New("ps: closed")

	// ErrCorrupt indicates a persisted image or row failed validation.
	//
	// Recovery: delete the backing file and start from an empty store.
	ErrCorrupt = errors.New("ps: corrupt")

	// ErrBusy indicates another process holds the store's lock.
	ErrBusy = errors.New("ps: busy")

	// ErrIncompatible indicates the backing database was written by an
	// unknown schema version.
	ErrIncompatible = errors.New("ps: incompatible")
)
