package ps

import (
	"errors"
	"fmt"
	"sync"
)

// Op identifies a [Store] operation for fault injection.
type Op uint8

const (
	OpStore Op = iota
	OpRetrieve
)

func (o Op) String() string {
	switch o {
	case OpStore:
		return "store"
	case OpRetrieve:
		return "retrieve"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ErrInjected is the default error returned by [Faulty].
var ErrInjected = errors.New("ps: injected fault")

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Op  Op
	Key uint16
	Err error
}

func (e *InjectedError) Error() string {
	return fmt.Sprintf("%s key 0x%04x: %v", e.Op, e.Key, e.Err)
}

func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps a [Store] and fails selected operations.
//
// Faults are armed with [Faulty.FailKey] and [Faulty.FailAfter] and stay
// armed until [Faulty.Reset]. A failed Store never reaches the inner store.
type Faulty struct {
	inner Store

	mu      sync.Mutex
	keys    map[faultKey]struct{}
	after   map[Op]int // remaining successful calls before failing; -1 = disarmed
	calls   map[Op]int
	faults  int
	failErr error
}

type faultKey struct {
	op  Op
	key uint16
}

// NewFaulty wraps inner. Nothing fails until a fault is armed.
func NewFaulty(inner Store) *Faulty {
	f := &Faulty{inner: inner}
	f.Reset()

	return f
}

// FailKey makes every op on key fail.
func (f *Faulty) FailKey(op Op, key uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys[faultKey{op: op, key: key}] = struct{}{}
}

// FailAfter lets the next n calls of op succeed and fails every call after.
// FailAfter(op, 0) fails the very next call.
func (f *Faulty) FailAfter(op Op, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.after[op] = n
}

// SetError replaces the error wrapped by injected faults.
func (f *Faulty) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failErr = err
}

// Reset disarms every fault and clears the counters.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = make(map[faultKey]struct{})
	f.after = map[Op]int{OpStore: -1, OpRetrieve: -1}
	f.calls = make(map[Op]int)
	f.faults = 0
	f.failErr = ErrInjected
}

// Calls returns how many times op was invoked, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Faults returns how many faults were injected since the last Reset.
func (f *Faulty) Faults() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.faults
}

// Store implements [Store].
func (f *Faulty) Store(key uint16, words []uint16) (int, error) {
	err := f.check(OpStore, key)
	if err != nil {
		return 0, err
	}

	return f.inner.Store(key, words)
}

// Retrieve implements [Store].
func (f *Faulty) Retrieve(key uint16, buf []uint16) (int, error) {
	err := f.check(OpRetrieve, key)
	if err != nil {
		return 0, err
	}

	return f.inner.Retrieve(key, buf)
}

func (f *Faulty) check(op Op, key uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	fail := false

	if _, ok := f.keys[faultKey{op: op, key: key}]; ok {
		fail = true
	}

	switch n := f.after[op]; {
	case n == 0:
		fail = true
	case n > 0:
		f.after[op] = n - 1
	}

	if !fail {
		return nil
	}

	f.faults++

	return &InjectedError{Op: op, Key: key, Err: f.failErr}
}

var _ Store = (*Faulty)(nil)
