package ps

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"slices"
	"sync"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// Image file layout (all integers little-endian):
//
//	0x00  [4]byte  magic "TDPS"
//	0x04  uint16   format version
//	0x06  uint16   reserved, zero
//	0x08  uint32   record count
//	0x0C  uint32   CRC32-C of the record area
//	0x10  records: key uint16, nwords uint16, nwords × uint16
//
// Records are written in ascending key order.
const (
	imageHeaderSize = 16
	imageVersion    = 1

	offImageMagic   = 0x00
	offImageVersion = 0x04
	offImageCount   = 0x08
	offImageCRC     = 0x0C
)

var imageMagic = [4]byte{'T', 'D', 'P', 'S'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// File is a [Store] persisted as a single image file.
//
// Every Store rewrites the whole image through a temp file and rename, so a
// crash leaves either the old or the new image on disk. The image is small
// (the key space is a few dozen records) which keeps the rewrite cheap.
//
// An exclusive flock on "<path>.lock" is held while the File is open;
// a second OpenFile on the same path fails with [ErrBusy].
type File struct {
	mu      sync.Mutex
	path    string
	lock    *os.File
	records map[uint16][]uint16
	closed  bool
}

// OpenFile opens the image at path, creating an empty store if the file does
// not exist yet. The file itself is only created on the first Store.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("open file store: path is empty")
	}

	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("open file store %s: %w", path, err)
	}

	records := make(map[uint16][]uint16)

	data, err := os.ReadFile(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		releaseLock(lock)

		return nil, fmt.Errorf("open file store %s: %w", path, err)
	default:
		records, err = decodeImage(data)
		if err != nil {
			releaseLock(lock)

			return nil, fmt.Errorf("open file store %s: %w", path, err)
		}
	}

	return &File{path: path, lock: lock, records: records}, nil
}

// Path returns the image path.
func (f *File) Path() string {
	return f.path
}

// Store implements [Store].
func (f *File) Store(key uint16, words []uint16) (int, error) {
	if len(words) > MaxWords {
		return 0, fmt.Errorf("store key 0x%04x: %d words: %w", key, len(words), ErrTooLarge)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}

	prev, existed := f.records[key]

	if len(words) == 0 {
		if !existed {
			return 0, nil
		}

		delete(f.records, key)
	} else {
		f.records[key] = slices.Clone(words)
	}

	err := atomic.WriteFile(f.path, bytes.NewReader(encodeImage(f.records)))
	if err != nil {
		// Keep memory in step with what is on disk.
		if existed {
			f.records[key] = prev
		} else {
			delete(f.records, key)
		}

		return 0, fmt.Errorf("store key 0x%04x: %w", key, err)
	}

	return len(words), nil
}

// Retrieve implements [Store].
func (f *File) Retrieve(key uint16, buf []uint16) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}

	return retrieveInto(f.records[key], buf), nil
}

// Keys implements [Lister].
func (f *File) Keys() ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	return sortedKeys(f.records), nil
}

// Close releases the lock. The image on disk is already current.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	releaseLock(f.lock)
	f.lock = nil

	return nil
}

func sortedKeys(records map[uint16][]uint16) []uint16 {
	keys := make([]uint16, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

func encodeImage(records map[uint16][]uint16) []byte {
	keys := sortedKeys(records)

	size := imageHeaderSize
	for _, k := range keys {
		size += 4 + len(records[k])*WordSize
	}

	buf := make([]byte, size)
	copy(buf[offImageMagic:], imageMagic[:])
	binary.LittleEndian.PutUint16(buf[offImageVersion:], imageVersion)
	binary.LittleEndian.PutUint32(buf[offImageCount:], uint32(len(keys)))

	off := imageHeaderSize
	for _, k := range keys {
		words := records[k]

		binary.LittleEndian.PutUint16(buf[off:], k)
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(len(words)))
		off += 4

		for _, w := range words {
			binary.LittleEndian.PutUint16(buf[off:], w)
			off += WordSize
		}
	}

	binary.LittleEndian.PutUint32(buf[offImageCRC:], crc32.Checksum(buf[imageHeaderSize:], castagnoli))

	return buf
}

func decodeImage(buf []byte) (map[uint16][]uint16, error) {
	if len(buf) < imageHeaderSize {
		return nil, fmt.Errorf("image too short (%d bytes): %w", len(buf), ErrCorrupt)
	}

	if !bytes.Equal(buf[offImageMagic:offImageMagic+4], imageMagic[:]) {
		return nil, fmt.Errorf("bad magic %q: %w", buf[offImageMagic:offImageMagic+4], ErrCorrupt)
	}

	if v := binary.LittleEndian.Uint16(buf[offImageVersion:]); v != imageVersion {
		return nil, fmt.Errorf("image version %d: %w", v, ErrIncompatible)
	}

	stored := binary.LittleEndian.Uint32(buf[offImageCRC:])
	if crc32.Checksum(buf[imageHeaderSize:], castagnoli) != stored {
		return nil, fmt.Errorf("crc mismatch: %w", ErrCorrupt)
	}

	count := binary.LittleEndian.Uint32(buf[offImageCount:])
	// The key space is 16 bits; a larger count cannot be valid.
	if count > 1<<16 {
		return nil, fmt.Errorf("record count %d: %w", count, ErrCorrupt)
	}

	records := make(map[uint16][]uint16, count)

	off := imageHeaderSize
	for i := range count {
		if off+4 > len(buf) {
			return nil, fmt.Errorf("record %d: truncated header: %w", i, ErrCorrupt)
		}

		key := binary.LittleEndian.Uint16(buf[off:])
		n := int(binary.LittleEndian.Uint16(buf[off+2:]))
		off += 4

		if n == 0 || n > MaxWords || off+n*WordSize > len(buf) {
			return nil, fmt.Errorf("record %d (key 0x%04x): bad length %d: %w", i, key, n, ErrCorrupt)
		}

		if _, dup := records[key]; dup {
			return nil, fmt.Errorf("record %d: duplicate key 0x%04x: %w", i, key, ErrCorrupt)
		}

		words := make([]uint16, n)
		for j := range words {
			words[j] = binary.LittleEndian.Uint16(buf[off:])
			off += WordSize
		}

		records[key] = words
	}

	if off != len(buf) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(buf)-off, ErrCorrupt)
	}

	return records, nil
}

func acquireLock(lockPath string) (*os.File, error) {
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = lockFile.Close()

		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("flock: %w", err)
	}

	return lockFile, nil
}

// releaseLock unlocks and closes the lock file. The lock file stays on disk.
func releaseLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	_ = lockFile.Close()
}

var (
	_ Store  = (*File)(nil)
	_ Lister = (*File)(nil)
)
