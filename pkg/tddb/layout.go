package tddb

import (
	"fmt"
	"strings"
)

// Layout is a persisted directory schema: slot count, per-source key
// counts and the encoding of the device index.
type Layout uint8

const (
	// LayoutLegacy has 8 slots and stores each address as a full struct.
	LayoutLegacy Layout = iota + 1

	// LayoutExtended has 12 slots and packs each address into three words.
	// It has no GAP keys.
	LayoutExtended
)

func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutExtended:
		return "extended"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// ParseLayout parses "legacy" or "extended".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "legacy":
		return LayoutLegacy, nil
	case "extended":
		return LayoutExtended, nil
	default:
		return 0, fmt.Errorf("parse layout %q: %w", s, ErrInvalidParams)
	}
}

// Slots returns the number of device slots, or 0 for an unknown layout.
func (l Layout) Slots() int {
	spec := l.spec()
	if spec == nil {
		return 0
	}

	return spec.slots
}

// KeyCount returns the number of keys src has in this layout.
func (l Layout) KeyCount(src Source) int {
	spec := l.spec()
	if spec == nil || src >= SourceMax {
		return 0
	}

	return spec.keyCounts[src]
}

// PhysicalKey returns the store key of attribute (src, key) of slot.
func (l Layout) PhysicalKey(slot int, src Source, key uint16) (uint16, error) {
	spec := l.spec()
	if spec == nil {
		return 0, fmt.Errorf("physical key: %s: %w", l, ErrInvalidParams)
	}

	return spec.mapKey(slot, src, key)
}

type layoutSpec struct {
	layout    Layout
	slots     int
	keyCounts [SourceMax]int
	codec     indexCodec
}

var (
	legacySpec = &layoutSpec{
		layout:    LayoutLegacy,
		slots:     8,
		keyCounts: [SourceMax]int{SourceGAP: 1, SourceSecurity: keySecurityCount, SourceGATT: 1, SourceDirect: 1},
		codec:     legacyCodec{},
	}

	extendedSpec = &layoutSpec{
		layout:    LayoutExtended,
		slots:     12,
		keyCounts: [SourceMax]int{SourceGAP: 0, SourceSecurity: keySecurityCount, SourceGATT: 1, SourceDirect: 1},
		codec:     packedCodec{},
	}
)

func (l Layout) spec() *layoutSpec {
	switch l {
	case LayoutLegacy:
		return legacySpec
	case LayoutExtended:
		return extendedSpec
	default:
		return nil
	}
}

// layoutOf returns the layout a writer with features f persisted.
func layoutOf(f Features) Layout {
	if f.Has(FeatureExtended) {
		return LayoutExtended
	}

	return LayoutLegacy
}

// indexWords is the encoded size of the device index.
func (s *layoutSpec) indexWords() int {
	return 1 + s.slots*(s.codec.addrWords()+1)
}

// eachKey calls fn for every (source, key) pair the layout defines.
func (s *layoutSpec) eachKey(fn func(src Source, key uint16)) {
	for src := range SourceMax {
		for key := range s.keyCounts[src] {
			fn(src, uint16(key))
		}
	}
}
