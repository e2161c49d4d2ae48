// Package ps provides the persistent store primitive that a trusted device
// directory is built on, plus host-side backends for it.
//
// The store is a flat, word-addressed key/value space: a key is a uint16 and
// a record is a short run of 16-bit words. Records are limited to
// [MaxWords] words (128 bytes).
//
// # Contract
//
//   - Store(key, words) replaces the record and returns the number of words
//     written. Storing an empty slice erases the key.
//   - Retrieve(key, buf) with an empty buf returns the stored length in
//     words (0 when the key is absent) without copying.
//   - Retrieve(key, buf) with a non-empty buf copies min(len(buf), stored)
//     words and returns that count. A short count is not an error.
//
// Errors are reserved for I/O failures of the backend, records that exceed
// [MaxWords] ([ErrTooLarge]) and use after Close ([ErrClosed]).
//
// # Backends
//
//   - [Mem]: in-memory map, for tests and ephemeral use
//   - [File]: a single image file rewritten atomically on every Store
//   - [SQLite]: one row per key in a SQLite database
//   - [Bolt]: one bucket entry per key in a bbolt database
//   - [Faulty]: wraps another Store and injects failures
//
// All backends are safe for concurrent use.
package ps

import "encoding/binary"

const (
	// WordSize is the size of one storage word in bytes.
	WordSize = 2

	// MaxWords is the largest record a single key can hold.
	MaxWords = 64

	// MaxBytes is MaxWords expressed in bytes.
	MaxBytes = MaxWords * WordSize
)

// Store is the word-oriented persistent key/value primitive.
type Store interface {
	// Store replaces the record at key. An empty words slice erases it.
	// Returns the number of words written.
	Store(key uint16, words []uint16) (int, error)

	// Retrieve copies the record at key into buf. With an empty buf it
	// returns the stored length in words instead.
	Retrieve(key uint16, buf []uint16) (int, error)
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	// Keys returns every stored key in ascending order.
	Keys() ([]uint16, error)
}

// BytesToWords packs b into little-endian words, padding an odd trailing
// byte with zero.
func BytesToWords(b []byte) []uint16 {
	words := make([]uint16, WordsFor(len(b)))

	for i := range words {
		lo := b[2*i]

		var hi byte
		if 2*i+1 < len(b) {
			hi = b[2*i+1]
		}

		words[i] = uint16(lo) | uint16(hi)<<8
	}

	return words
}

// WordsToBytes unpacks little-endian words into bytes.
func WordsToBytes(words []uint16) []byte {
	b := make([]byte, len(words)*WordSize)

	for i, w := range words {
		binary.LittleEndian.PutUint16(b[2*i:], w)
	}

	return b
}

// WordsFor returns the number of words needed to hold n bytes.
func WordsFor(n int) int {
	return (n + WordSize - 1) / WordSize
}

// retrieveInto implements the Retrieve contract over an in-memory record.
func retrieveInto(stored, buf []uint16) int {
	if len(buf) == 0 {
		return len(stored)
	}

	return copy(buf, stored)
}
