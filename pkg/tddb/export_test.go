package tddb

// Export internal state for testing.
// This file is only compiled during tests.

// SlotState is one slot as seen by the cache or the persisted index.
type SlotState struct {
	Slot     int
	Rank     uint8
	Priority bool
	Dev      TypedAddr
}

// CacheSlotsForTesting returns every cache entry, indexed by slot.
func CacheSlotsForTesting(d *Directory) []SlotState {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]SlotState, len(d.cache.entries))
	for i, e := range d.cache.entries {
		out[i] = SlotState{
			Slot:     i,
			Rank:     e.rank,
			Priority: e.priority,
			Dev:      d.cache.typedAddr(i),
		}
	}

	return out
}

// PersistedSlotsForTesting decodes the persisted index with the
// directory's layout.
func PersistedSlotsForTesting(d *Directory) ([]SlotState, uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.loadIndex()
	if err != nil {
		return nil, 0, err
	}

	out := make([]SlotState, len(idx.slots))
	for i, s := range idx.slots {
		out[i] = SlotState{Slot: i, Rank: s.rank, Priority: s.priority, Dev: s.dev}
	}

	return out, idx.count, nil
}

// EncodeIndexForTesting encodes an index in layout l. Slots not listed are
// empty.
func EncodeIndexForTesting(l Layout, count uint16, slots []SlotState) []uint16 {
	spec := l.spec()
	idx := blankIndex(spec.slots)
	idx.count = count

	for _, s := range slots {
		idx.slots[s.Slot] = deviceSlot{rank: s.Rank, priority: s.Priority, dev: s.Dev}
	}

	return spec.encodeIndex(idx)
}

// EncodeSystemRecordForTesting encodes a system record.
func EncodeSystemRecordForTesting(version Features, info SystemInfo) []uint16 {
	return encodeSystemRecord(version, &info)
}

// IndexWordsForTesting returns the encoded index size of layout l.
func IndexWordsForTesting(l Layout) int {
	return l.spec().indexWords()
}
