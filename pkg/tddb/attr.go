package tddb

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/tddb/pkg/ps"
)

// WriteEntry stores value as attribute (src, key) of dev. An unknown dev is
// added at the least recently used rank; when the directory is full the
// least recently used non-priority device is evicted first.
//
// Odd lengths are padded with a zero byte. An empty value erases the
// attribute. Values longer than [ps.MaxBytes] are [ErrInvalidParams].
//
// If the store write fails and dev was added by this call, dev is removed
// again and [ErrWriteFailed] is returned.
func (d *Directory) WriteEntry(dev TypedAddr, src Source, key uint16, value []byte) error {
	err := d.spec.checkKey(src, key)
	if err != nil {
		return fmt.Errorf("write entry %s: %w", dev, err)
	}

	if len(value) > ps.MaxBytes {
		return fmt.Errorf("write entry %s: %d bytes exceeds %d: %w", dev, len(value), ps.MaxBytes, ErrInvalidParams)
	}

	err = d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	return d.writeEntry(dev, src, key, value)
}

func (d *Directory) writeEntry(dev TypedAddr, src Source, key uint16, value []byte) error {
	slot, created, err := d.findOrAllocate(dev, true)
	if errors.Is(err, ErrFull) {
		evicted, evictErr := d.evictLRU()
		if evictErr != nil {
			return fmt.Errorf("write entry %s: evict: %w", dev, evictErr)
		}

		if !evicted {
			d.logger.Warn("tddb no evictable device", "addr", dev.String())

			return fmt.Errorf("write entry %s: %w", dev, ErrSlotsExhausted)
		}

		slot, created, err = d.findOrAllocate(dev, true)
		if errors.Is(err, ErrFull) {
			err = ErrSlotsExhausted
		}
	}

	if err != nil {
		return fmt.Errorf("write entry %s: %w", dev, err)
	}

	pk, err := d.spec.mapKey(slot, src, key)
	if err != nil {
		return fmt.Errorf("write entry %s: %w", dev, err)
	}

	words := ps.BytesToWords(value)

	n, err := d.store.Store(pk, words)
	if err == nil && n != len(words) {
		err = fmt.Errorf("wrote %d of %d words", n, len(words))
	}

	if err != nil {
		if created {
			rollbackErr := d.deleteSlot(slot)
			if rollbackErr != nil {
				d.logger.Error("tddb rollback of new device failed", "addr", dev.String(), "error", rollbackErr)
			}
		}

		d.logger.Error("tddb write failed",
			"addr", dev.String(), "source", src.String(), "key", key,
			"length", len(value), "device_added", created, "error", err)

		return fmt.Errorf("write entry %s %s/%d: %w", dev, src, key, storeErr(ErrWriteFailed, err))
	}

	d.logger.Debug("tddb write",
		"addr", dev.String(), "source", src.String(), "key", key, "length", len(value))

	return nil
}

// ReadEntry copies attribute (src, key) of dev into buf and returns the
// stored length in bytes, rounded up to a whole word. The copy is
// truncated to len(buf).
//
// A nil buf probes: it returns the stored length without copying. An
// absent attribute has length 0. A non-nil empty buf is [ErrInvalidParams].
func (d *Directory) ReadEntry(dev TypedAddr, src Source, key uint16, buf []byte) (int, error) {
	err := d.lock()
	if err != nil {
		return 0, err
	}
	defer d.mu.Unlock()

	slot := d.cache.findByAddress(dev)
	if slot < 0 {
		return 0, fmt.Errorf("read entry %s: %w", dev, ErrNoDevice)
	}

	pk, err := d.spec.mapKey(slot, src, key)
	if err != nil {
		return 0, fmt.Errorf("read entry %s: %w", dev, err)
	}

	if buf != nil && len(buf) == 0 {
		return 0, fmt.Errorf("read entry %s: empty buffer: %w", dev, ErrInvalidParams)
	}

	n, err := d.readKey(pk, buf)
	if err != nil {
		return 0, fmt.Errorf("read entry %s %s/%d: %w", dev, src, key, err)
	}

	return n, nil
}

// EntryExists reports whether dev has a non-empty attribute (src, key).
func (d *Directory) EntryExists(dev TypedAddr, src Source, key uint16) (bool, error) {
	n, err := d.ReadEntry(dev, src, key, nil)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// GetEntry fills buf with attribute (src, key) of dev. The stored length
// must equal len(buf) in words, otherwise [ErrReadFailed].
//
// The one tolerated mismatch is an LE keys record written before the
// signing block existed: it is extended with a zeroed block, written back
// and read again.
func (d *Directory) GetEntry(dev TypedAddr, src Source, key uint16, buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("get entry %s: empty buffer: %w", dev, ErrInvalidParams)
	}

	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	slot := d.cache.findByAddress(dev)
	if slot < 0 {
		return fmt.Errorf("get entry %s: %w", dev, ErrNoDevice)
	}

	err = d.getEntry(dev, slot, src, key, buf, true)
	if err != nil {
		return fmt.Errorf("get entry %s: %w", dev, err)
	}

	return nil
}

// ReadEntryByIndex reads attribute (src, key) of the device with the given
// rank. Apart from the lookup it behaves like [Directory.ReadEntry]; the
// device address and priority come back in the [EntryInfo].
//
// Returns [ErrNoDevice] if no device has that rank and [ErrTaskFailed] if
// the persisted index cannot supply the device's address.
func (d *Directory) ReadEntryByIndex(rank int, src Source, key uint16, buf []byte) (EntryInfo, error) {
	err := d.lock()
	if err != nil {
		return EntryInfo{}, err
	}
	defer d.mu.Unlock()

	info, slot, err := d.entryInfo(rank)
	if err != nil {
		return EntryInfo{}, err
	}

	pk, err := d.spec.mapKey(slot, src, key)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("read entry at rank %d: %w", rank, err)
	}

	if buf != nil && len(buf) == 0 {
		return EntryInfo{}, fmt.Errorf("read entry at rank %d: empty buffer: %w", rank, ErrInvalidParams)
	}

	info.Length, err = d.readKey(pk, buf)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("read entry at rank %d: %w", rank, err)
	}

	return info, nil
}

// GetEntryByIndex is [Directory.GetEntry] for the device with the given
// rank. It returns the device's address.
func (d *Directory) GetEntryByIndex(rank int, src Source, key uint16, buf []byte) (TypedAddr, error) {
	if len(buf) == 0 {
		return TypedAddr{}, fmt.Errorf("get entry at rank %d: empty buffer: %w", rank, ErrInvalidParams)
	}

	err := d.lock()
	if err != nil {
		return TypedAddr{}, err
	}
	defer d.mu.Unlock()

	info, slot, err := d.entryInfo(rank)
	if err != nil {
		return TypedAddr{}, err
	}

	err = d.getEntry(info.Addr, slot, src, key, buf, true)
	if err != nil {
		return TypedAddr{}, fmt.Errorf("get entry at rank %d: %w", rank, err)
	}

	return info.Addr, nil
}

// DeleteEntry erases attribute (src, key) of dev. The device stays.
func (d *Directory) DeleteEntry(dev TypedAddr, src Source, key uint16) error {
	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	slot := d.cache.findByAddress(dev)
	if slot < 0 {
		return fmt.Errorf("delete entry %s: %w", dev, ErrNoDevice)
	}

	pk, err := d.spec.mapKey(slot, src, key)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", dev, err)
	}

	_, err = d.store.Store(pk, nil)
	if err != nil {
		return fmt.Errorf("delete entry %s %s/%d: %w", dev, src, key, storeErr(ErrDeleteFailed, err))
	}

	return nil
}

// entryInfo resolves rank to a slot and reads the device's address from the
// persisted index.
func (d *Directory) entryInfo(rank int) (EntryInfo, int, error) {
	slot := d.cache.findByRank(rank)
	if slot < 0 {
		return EntryInfo{}, -1, fmt.Errorf("entry at rank %d: %w", rank, ErrNoDevice)
	}

	idx, err := d.loadIndex()
	if err != nil {
		d.logger.Error("tddb index unavailable for rank lookup", "rank", rank, "error", err)

		return EntryInfo{}, -1, fmt.Errorf("entry at rank %d: %w", rank, storeErr(ErrTaskFailed, err))
	}

	s := idx.slots[slot]
	if !s.active() {
		return EntryInfo{}, -1, fmt.Errorf("entry at rank %d: slot %d empty in persisted index: %w", rank, slot, ErrTaskFailed)
	}

	return EntryInfo{Addr: s.dev, Priority: d.cache.entries[slot].priority}, slot, nil
}

// readKey implements the ReadEntry contract for one store key.
func (d *Directory) readKey(pk uint16, buf []byte) (int, error) {
	if buf == nil {
		n, err := d.store.Retrieve(pk, nil)
		if err != nil {
			return 0, storeErr(ErrReadFailed, err)
		}

		return n * ps.WordSize, nil
	}

	words := make([]uint16, ps.MaxWords)

	n, err := d.store.Retrieve(pk, words)
	if err != nil {
		return 0, storeErr(ErrReadFailed, err)
	}

	copy(buf, ps.WordsToBytes(words[:n]))

	return n * ps.WordSize, nil
}

// getEntry reads (src, key) of the device in slot into buf, requiring the
// stored length to match len(buf) in words.
func (d *Directory) getEntry(dev TypedAddr, slot int, src Source, key uint16, buf []byte, allowBackfill bool) error {
	pk, err := d.spec.mapKey(slot, src, key)
	if err != nil {
		return err
	}

	stored, err := d.readKey(pk, nil)
	if err != nil {
		return err
	}

	want := ps.WordsFor(len(buf)) * ps.WordSize

	if stored == want {
		_, err = d.readKey(pk, buf)

		return err
	}

	if !allowBackfill || !needsSignBackfill(src, key, len(buf), stored) {
		return fmt.Errorf("%s/%d stored %d bytes, want %d: %w", src, key, stored, want, ErrReadFailed)
	}

	_, err = d.readKey(pk, buf[:stored])
	if err != nil {
		return err
	}

	clear(buf[stored:])

	err = d.writeEntry(dev, src, key, buf)
	if err != nil {
		return fmt.Errorf("restructure LE keys: %w", storeErr(ErrReadFailed, err))
	}

	d.logger.Info("tddb restructured LE keys", "addr", dev.String(), "from", stored, "to", len(buf))

	return d.getEntry(dev, slot, src, key, buf, false)
}

// needsSignBackfill reports whether a stored LE keys record is exactly the
// signing block short of the requested size.
func needsSignBackfill(src Source, key uint16, want, stored int) bool {
	return src == SourceSecurity &&
		key == KeySecurityLE &&
		want == LEKeysSize &&
		stored+LESignBlockSize == want
}
