package tddb

import "fmt"

// findOrAllocate returns the slot holding dev. When dev is unknown and
// allowCreate is set, it claims a free slot below the device limit at the
// least recently used rank (count) and erases the slot's attribute keys.
//
// Returns [ErrNoDevice] when dev is unknown and allowCreate is false, and
// [ErrFull] when there is no room.
func (d *Directory) findOrAllocate(dev TypedAddr, allowCreate bool) (slot int, created bool, err error) {
	if slot = d.cache.findByAddress(dev); slot >= 0 {
		return slot, false, nil
	}

	if !allowCreate {
		return -1, false, ErrNoDevice
	}

	slot = d.cache.free(d.maxDevices)
	if slot < 0 || d.cache.count() >= d.maxDevices {
		return -1, false, ErrFull
	}

	idx, err := d.loadIndex()
	if err != nil {
		return -1, false, storeErr(ErrUpdateFailed, err)
	}

	if int(idx.count) >= d.maxDevices {
		return -1, false, ErrFull
	}

	// Nothing a previous occupant wrote may be readable by the new device.
	err = d.eraseSlot(slot)
	if err != nil {
		return -1, false, storeErr(ErrWriteFailed, err)
	}

	idx.slots[slot] = deviceSlot{rank: uint8(idx.count), dev: dev}
	idx.count++

	err = d.commitIndex(idx)
	if err != nil {
		return -1, false, storeErr(ErrUpdateFailed, err)
	}

	d.logger.Debug("tddb device added", "addr", dev.String(), "slot", slot, "rank", idx.count-1)

	return slot, true, nil
}

// eraseSlot erases every attribute key of slot.
func (d *Directory) eraseSlot(slot int) error {
	var firstErr error

	d.spec.eachKey(func(src Source, key uint16) {
		if firstErr != nil {
			return
		}

		pk, err := d.spec.mapKey(slot, src, key)
		if err != nil {
			firstErr = err

			return
		}

		_, err = d.store.Store(pk, nil)
		if err != nil {
			firstErr = fmt.Errorf("erase key 0x%04x: %w", pk, err)
		}
	})

	return firstErr
}

// evictLRU deletes the least recently used non-priority device whose
// removal lets a new device in. It reports false, deleting nothing, when
// no such device exists.
//
// A store reopened with a smaller MaxDevices can hold more devices than
// the limit, or hold them in slots at or above it. Evicting one device
// must leave the count below the limit, and when no slot below the limit
// is free the victim has to occupy one.
func (d *Directory) evictLRU() (bool, error) {
	count := d.cache.count()
	if count-1 >= d.maxDevices {
		return false, nil
	}

	needSlot := d.cache.free(d.maxDevices) < 0

	for rank := count - 1; rank >= 0; rank-- {
		slot := d.cache.findByRank(rank)
		if slot < 0 || d.cache.entries[slot].priority {
			continue
		}

		if needSlot && slot >= d.maxDevices {
			continue
		}

		victim := d.cache.typedAddr(slot)

		err := d.deleteSlot(slot)
		if err != nil {
			return false, err
		}

		d.logger.Info("tddb evicted device", "addr", victim.String(), "slot", slot, "rank", rank)

		return true, nil
	}

	return false, nil
}

// deleteSlot removes the device in slot, closing the rank gap.
func (d *Directory) deleteSlot(slot int) error {
	idx, err := d.loadIndex()
	if err != nil {
		return storeErr(ErrDeleteFailed, err)
	}

	if !idx.slots[slot].active() {
		return fmt.Errorf("delete slot %d: not active in persisted index: %w", slot, ErrDeleteFailed)
	}

	idx.remove(slot)

	err = d.commitIndex(idx)
	if err != nil {
		return storeErr(ErrDeleteFailed, err)
	}

	return nil
}

// DeleteDevice removes dev from the directory. Its attribute records are
// left in place and erased when the slot is reused.
//
// Returns [ErrNoDevice] if dev is unknown and [ErrProtected] if dev is a
// priority device.
func (d *Directory) DeleteDevice(dev TypedAddr) error {
	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	slot := d.cache.findByAddress(dev)
	if slot < 0 {
		return fmt.Errorf("delete %s: %w", dev, ErrNoDevice)
	}

	if d.cache.entries[slot].priority {
		return fmt.Errorf("delete %s: %w", dev, ErrProtected)
	}

	err = d.deleteSlot(slot)
	if err != nil {
		d.logger.Error("tddb delete failed", "addr", dev.String(), "error", err)

		return fmt.Errorf("delete %s: %w", dev, err)
	}

	d.logger.Info("tddb device deleted", "addr", dev.String(), "count", d.cache.count())

	return nil
}

// DeleteAll removes every device, or with [FilterExcludePriority] every
// non-priority device. Survivors keep their relative order.
func (d *Directory) DeleteAll(filter Filter) error {
	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	err = d.deleteAll(filter)
	if err != nil {
		d.logger.Error("tddb delete all failed", "filter", uint8(filter), "error", err)

		return err
	}

	d.logger.Info("tddb delete all", "filter", uint8(filter), "count", d.cache.count())

	return nil
}

func (d *Directory) deleteAll(filter Filter) error {
	if filter&FilterExcludePriority == 0 {
		err := d.commitIndex(blankIndex(d.spec.slots))
		if err != nil {
			return fmt.Errorf("delete all: %w", storeErr(ErrUpdateFailed, err))
		}

		return nil
	}

	idx, err := d.loadIndex()
	if err != nil {
		return fmt.Errorf("delete all: %w", storeErr(ErrReadFailed, err))
	}

	for i, s := range idx.slots {
		if s.active() && !s.priority {
			idx.remove(i)
		}
	}

	err = d.commitIndex(idx)
	if err != nil {
		return fmt.Errorf("delete all: %w", storeErr(ErrUpdateFailed, err))
	}

	return nil
}

// PrioritiseDevice updates the rank and priority of dev.
//
// The device becomes most recently used, except that:
//   - [UpdateMRU] alone on the most recently used device writes nothing.
//   - [UpdateDeprioritise] clears the priority bit and places the device
//     just ahead of the most recently used non-priority device, or last
//     when there are no non-priority devices.
//
// [UpdatePrioritise] and [UpdateDeprioritise] together are
// [ErrInvalidParams].
func (d *Directory) PrioritiseDevice(dev TypedAddr, flags UpdateFlag) error {
	if flags&UpdatePrioritise != 0 && flags&UpdateDeprioritise != 0 {
		return fmt.Errorf("prioritise %s: both priority flags set: %w", dev, ErrInvalidParams)
	}

	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	slot := d.cache.findByAddress(dev)
	if slot < 0 {
		return fmt.Errorf("prioritise %s: %w", dev, ErrNoDevice)
	}

	if flags == UpdateMRU && d.cache.entries[slot].rank == 0 {
		return nil
	}

	idx, err := d.loadIndex()
	if err != nil {
		return fmt.Errorf("prioritise %s: %w", dev, storeErr(ErrUpdateFailed, err))
	}

	if flags&(UpdatePrioritise|UpdateDeprioritise) != 0 {
		idx.slots[slot].priority = flags&UpdatePrioritise != 0
	}

	idx.promote(slot)

	if flags&UpdateDeprioritise != 0 {
		idx.demote(slot)
	}

	err = d.commitIndex(idx)
	if err != nil {
		return fmt.Errorf("prioritise %s: %w", dev, storeErr(ErrUpdateFailed, err))
	}

	d.logger.Debug("tddb device prioritised",
		"addr", dev.String(), "flags", uint8(flags),
		"rank", idx.slots[slot].rank, "priority", idx.slots[slot].priority)

	return nil
}

// ListDevices returns up to limit devices in rank order, most recently used
// first, along with the total number of devices. It reads the persisted
// index.
func (d *Directory) ListDevices(limit int) ([]DeviceInfo, int, error) {
	err := d.lock()
	if err != nil {
		return nil, 0, err
	}
	defer d.mu.Unlock()

	if limit <= 0 {
		return nil, d.cache.count(), nil
	}

	idx, err := d.loadIndex()
	if err != nil {
		d.logger.Error("tddb list devices failed", "error", err)

		return nil, 0, fmt.Errorf("list devices: %w", storeErr(ErrReadFailed, err))
	}

	order := idx.byRank()

	order = order[:min(limit, len(order))]

	out := make([]DeviceInfo, 0, len(order))
	for _, i := range order {
		s := idx.slots[i]
		out = append(out, DeviceInfo{TypedAddr: s.dev, Rank: int(s.rank), Priority: s.priority})
	}

	return out, int(idx.count), nil
}

// CountDevices returns the number of devices.
func (d *Directory) CountDevices() (int, error) {
	err := d.lock()
	if err != nil {
		return 0, err
	}
	defer d.mu.Unlock()

	return d.cache.count(), nil
}

// DeviceExists reports whether dev is in the directory.
func (d *Directory) DeviceExists(dev TypedAddr) (bool, error) {
	err := d.lock()
	if err != nil {
		return false, err
	}
	defer d.mu.Unlock()

	return d.cache.findByAddress(dev) >= 0, nil
}
