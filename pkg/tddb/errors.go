package tddb

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by [Directory] operations.
//
// Callers should use [errors.Is] to check error kinds. Failures of the
// underlying [ps.Store] are joined with the sentinel, so both the kind and
// the backend cause are reachable:
//
//	err := dir.WriteEntry(dev, tddb.SourceSecurity, tddb.KeySecurityLE, keys)
//	if errors.Is(err, tddb.ErrSlotsExhausted) {
//	    // every slot holds a priority device
//	}
var (
	// ErrNoDevice indicates the address (or rank) is not in the directory.
	ErrNoDevice = errors.New("tddb: no device")

	// ErrInvalidSupplier indicates an unknown source, or a source that has
	// no keys in the active layout.
	ErrInvalidSupplier = errors.New("tddb: invalid supplier")

	// ErrInvalidKey indicates a key that is out of range for its source.
	ErrInvalidKey = errors.New("tddb: invalid key")

	// ErrInvalidParams indicates conflicting or malformed arguments.
	//
	// This is a programming error.
	ErrInvalidParams = errors.New("tddb: invalid params")

	// ErrSlotsExhausted indicates the directory is full and every occupied
	// slot holds a priority device.
	//
	// Recovery: deprioritise or delete a device.
	ErrSlotsExhausted = errors.New("tddb: slots exhausted")

	// ErrWriteFailed indicates the store rejected an attribute write.
	ErrWriteFailed = errors.New("tddb: write failed")

	// ErrReadFailed indicates a store read failed, or a stored record did not
	// have the expected length.
	ErrReadFailed = errors.New("tddb: read failed")

	// ErrDeleteFailed indicates a delete could not be carried out.
	ErrDeleteFailed = errors.New("tddb: delete failed")

	// ErrUpdateFailed indicates the device index could not be persisted.
	//
	// The in-memory view is left as it was before the call.
	ErrUpdateFailed = errors.New("tddb: update failed")

	// ErrTaskFailed indicates a device was found by rank but the persisted
	// index could not supply its record.
	ErrTaskFailed = errors.New("tddb: task failed")

	// ErrFull indicates no free slot is left below the device limit.
	//
	// WriteEntry handles it by evicting the least recently used
	// non-priority device.
	ErrFull = errors.New("tddb: full")

	// ErrClosed indicates the [Directory] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("tddb: closed")
)

// ErrProtected indicates an attempt to delete a priority device.
// It matches [ErrDeleteFailed] under [errors.Is].
var ErrProtected = fmt.Errorf("%w: priority device", ErrDeleteFailed)

// storeErr joins a sentinel kind with the backend error that caused it.
func storeErr(kind, cause error) error {
	if cause == nil {
		return kind
	}

	return errors.Join(kind, cause)
}
