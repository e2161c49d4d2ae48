package tddb

import "fmt"

// Reserved store keys.
const (
	// KeySystem holds the system record.
	KeySystem uint16 = 0x0064

	// KeyIndex holds the device index.
	KeyIndex uint16 = 0x0065

	// KeyAttributeBase is the first attribute key.
	KeyAttributeBase uint16 = 0x0066

	// KeyBudget is the number of attribute keys reserved from
	// KeyAttributeBase onward.
	KeyBudget = 50
)

// mapKey computes the store key of attribute (src, key) for slot.
//
// Sources are laid out back to back. Each source reserves keyCount × slots
// keys, and all slots of one key are contiguous:
//
//	KeyAttributeBase + Σ_{s<src} keyCount(s)·slots + key·slots + slot
func (s *layoutSpec) mapKey(slot int, src Source, key uint16) (uint16, error) {
	if src >= SourceMax || s.keyCounts[src] == 0 {
		return 0, fmt.Errorf("map key: source %s in %s layout: %w", src, s.layout, ErrInvalidSupplier)
	}

	if int(key) >= s.keyCounts[src] {
		return 0, fmt.Errorf("map key: %s key %d: %w", src, key, ErrInvalidKey)
	}

	if slot < 0 || slot >= s.slots {
		return 0, fmt.Errorf("map key: slot %d: %w", slot, ErrInvalidParams)
	}

	offset := 0
	for prev := range src {
		offset += s.keyCounts[prev] * s.slots
	}

	offset += int(key)*s.slots + slot

	if offset >= KeyBudget {
		return 0, fmt.Errorf("map key: offset %d exceeds budget %d: %w", offset, KeyBudget, ErrInvalidParams)
	}

	return KeyAttributeBase + uint16(offset), nil
}

// checkKey validates (src, key) without a slot.
func (s *layoutSpec) checkKey(src Source, key uint16) error {
	_, err := s.mapKey(0, src, key)

	return err
}

// eraseAttributeRange erases every reserved attribute key, whichever
// layout wrote it.
func (d *Directory) eraseAttributeRange() error {
	for off := range KeyBudget {
		_, err := d.store.Store(KeyAttributeBase+uint16(off), nil)
		if err != nil {
			return fmt.Errorf("erase key 0x%04x: %w", KeyAttributeBase+uint16(off), err)
		}
	}

	return nil
}
