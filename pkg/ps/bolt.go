package ps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("ps")

// Bolt is a [Store] backed by a bbolt database.
//
// Keys are 2-byte big-endian so the bucket iterates in key order.
type Bolt struct {
	mu     sync.Mutex
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
	closed bool
}

// BoltOption configures [OpenBolt].
type BoltOption func(*Bolt)

// WithBoltLogger sets the logger for the store.
func WithBoltLogger(logger *slog.Logger) BoltOption {
	return func(b *Bolt) {
		b.logger = logger
	}
}

// WithBoltNoSync disables fsync per transaction.
// Use only for tests; a crash can lose committed records.
func WithBoltNoSync(noSync bool) BoltOption {
	return func(b *Bolt) {
		b.noSync = noSync
	}
}

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string, opts ...BoltOption) (*Bolt, error) {
	b := &Bolt{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("open bolt store %s: %w", path, ErrBusy)
	}

	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(boltBucket)
		if createErr != nil {
			return fmt.Errorf("creating bucket %s: %w", boltBucket, createErr)
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}

	b.db = db
	b.logger.Debug("opened bolt store", "path", path, "noSync", b.noSync)

	return b, nil
}

func boltKey(key uint16) []byte {
	var k [2]byte
	binary.BigEndian.PutUint16(k[:], key)

	return k[:]
}

// Store implements [Store].
func (b *Bolt) Store(key uint16, words []uint16) (int, error) {
	if len(words) > MaxWords {
		return 0, fmt.Errorf("store key 0x%04x: %d words: %w", key, len(words), ErrTooLarge)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s: %w", boltBucket, ErrCorrupt)
		}

		if len(words) == 0 {
			return bucket.Delete(boltKey(key))
		}

		return bucket.Put(boltKey(key), WordsToBytes(words))
	})
	if err != nil {
		return 0, fmt.Errorf("store key 0x%04x: %w", key, err)
	}

	return len(words), nil
}

// Retrieve implements [Store].
func (b *Bolt) Retrieve(key uint16, buf []uint16) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	var n int

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s: %w", boltBucket, ErrCorrupt)
		}

		val := bucket.Get(boltKey(key))
		if val == nil {
			return nil
		}

		if len(val)%WordSize != 0 || len(val) > MaxBytes {
			return fmt.Errorf("%d bytes: %w", len(val), ErrCorrupt)
		}

		// val is only valid inside the transaction.
		n = retrieveInto(BytesToWords(val), buf)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retrieve key 0x%04x: %w", key, err)
	}

	return n, nil
}

// Keys implements [Lister].
func (b *Bolt) Keys() ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	var keys []uint16

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s: %w", boltBucket, ErrCorrupt)
		}

		return bucket.ForEach(func(k, _ []byte) error {
			if len(k) != 2 {
				return fmt.Errorf("key length %d: %w", len(k), ErrCorrupt)
			}

			keys = append(keys, binary.BigEndian.Uint16(k))

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	return keys, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.logger.Debug("closing bolt store")

	err := b.db.Close()
	if err != nil {
		return fmt.Errorf("close bolt: %w", err)
	}

	return nil
}

var (
	_ Store  = (*Bolt)(nil)
	_ Lister = (*Bolt)(nil)
)
