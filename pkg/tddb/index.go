package tddb

import (
	"cmp"
	"fmt"
	"slices"
)

// RankInvalid marks an empty slot.
const RankInvalid uint8 = 0x0F

// Flags word of a persisted slot.
const (
	flagRankMask      = 0x000F
	flagPriority      = 0x0010
	flagAddrTypeMask  = 0x0060
	flagAddrTypeShift = 5
)

type deviceSlot struct {
	rank     uint8
	priority bool
	dev      TypedAddr
}

func (s deviceSlot) active() bool {
	return s.rank != RankInvalid
}

// deviceIndex is the decoded device index. len(slots) is the layout's slot
// count.
type deviceIndex struct {
	count uint16
	slots []deviceSlot
}

// blankIndex returns an index with every slot empty.
func blankIndex(slots int) *deviceIndex {
	idx := &deviceIndex{slots: make([]deviceSlot, slots)}
	for i := range idx.slots {
		idx.slots[i].rank = RankInvalid
	}

	return idx
}

func (idx *deviceIndex) clone() *deviceIndex {
	return &deviceIndex{count: idx.count, slots: slices.Clone(idx.slots)}
}

// indexCodec encodes the address part of one slot. The flags word that
// follows it is shared by every layout.
type indexCodec interface {
	addrWords() int
	putAddr(dst []uint16, a Address)
	addr(src []uint16) Address
}

// legacyCodec stores the address struct as LAP (two words), UAP, NAP.
type legacyCodec struct{}

func (legacyCodec) addrWords() int { return 4 }

func (legacyCodec) putAddr(dst []uint16, a Address) {
	dst[0] = uint16(a.LAP)
	dst[1] = uint16(a.LAP>>16) & 0x00FF
	dst[2] = uint16(a.UAP)
	dst[3] = a.NAP
}

func (legacyCodec) addr(src []uint16) Address {
	return Address{
		NAP: src[3],
		UAP: uint8(src[2]),
		LAP: uint32(src[1]&0x00FF)<<16 | uint32(src[0]),
	}
}

// packedCodec stores the address as [NAP, UAP<<8 | LAP>>16, LAP&0xFFFF].
type packedCodec struct{}

func (packedCodec) addrWords() int { return 3 }

func (packedCodec) putAddr(dst []uint16, a Address) {
	dst[0] = a.NAP
	dst[1] = uint16(a.UAP)<<8 | uint16(a.LAP>>16)&0x00FF
	dst[2] = uint16(a.LAP)
}

func (packedCodec) addr(src []uint16) Address {
	return Address{
		NAP: src[0],
		UAP: uint8(src[1] >> 8),
		LAP: uint32(src[1]&0x00FF)<<16 | uint32(src[2]),
	}
}

func (s *layoutSpec) encodeIndex(idx *deviceIndex) []uint16 {
	stride := s.codec.addrWords() + 1
	words := make([]uint16, s.indexWords())
	words[0] = idx.count

	for i, slot := range idx.slots {
		off := 1 + i*stride
		s.codec.putAddr(words[off:], slot.dev.Addr)

		flags := uint16(slot.rank) & flagRankMask
		if slot.priority {
			flags |= flagPriority
		}

		flags |= uint16(slot.dev.Type&0x3) << flagAddrTypeShift
		words[off+stride-1] = flags
	}

	return words
}

// decodeIndex decodes an index record. The record must be exactly the
// layout's encoded size.
func (s *layoutSpec) decodeIndex(words []uint16) (*deviceIndex, error) {
	if len(words) != s.indexWords() {
		return nil, fmt.Errorf("decode %s index: %d words, want %d: %w",
			s.layout, len(words), s.indexWords(), ErrReadFailed)
	}

	stride := s.codec.addrWords() + 1
	idx := &deviceIndex{count: words[0], slots: make([]deviceSlot, s.slots)}

	for i := range idx.slots {
		off := 1 + i*stride
		flags := words[off+stride-1]

		idx.slots[i] = deviceSlot{
			rank:     uint8(flags & flagRankMask),
			priority: flags&flagPriority != 0,
			dev: TypedAddr{
				Type: AddressType((flags & flagAddrTypeMask) >> flagAddrTypeShift),
				Addr: s.codec.addr(words[off:]),
			},
		}
	}

	return idx, nil
}

// sanitise drops slots whose rank cannot be valid: rank ≥ count, or the
// rank-0 tombstone with an all-zero address. It then renumbers the
// survivors densely in rank order and recomputes count.
func (idx *deviceIndex) sanitise() {
	active := make([]int, 0, len(idx.slots))

	for i := range idx.slots {
		s := &idx.slots[i]

		switch {
		case !s.active():
			continue
		case uint16(s.rank) >= idx.count:
			s.rank = RankInvalid
		case s.rank == 0 && s.dev.Addr.IsZero():
			s.rank = RankInvalid
		default:
			active = append(active, i)
		}
	}

	// Ties keep slot order.
	slices.SortStableFunc(active, func(a, b int) int {
		return cmp.Compare(idx.slots[a].rank, idx.slots[b].rank)
	})

	for rank, i := range active {
		idx.slots[i].rank = uint8(rank)
	}

	idx.count = uint16(len(active))
}

// remove empties slot i and closes the rank gap it leaves.
func (idx *deviceIndex) remove(i int) {
	gone := idx.slots[i].rank

	for j := range idx.slots {
		if idx.slots[j].active() && idx.slots[j].rank > gone {
			idx.slots[j].rank--
		}
	}

	idx.slots[i].rank = RankInvalid
	idx.count--
}

// promote makes slot i rank 0, moving every device that was ahead of it
// down one rank.
func (idx *deviceIndex) promote(i int) {
	old := idx.slots[i].rank

	for j := range idx.slots {
		if idx.slots[j].active() && idx.slots[j].rank < old {
			idx.slots[j].rank++
		}
	}

	idx.slots[i].rank = 0
}

// demote moves slot i (currently rank 0) to just ahead of the most
// recently used non-priority device, or to the least recently used
// priority position when there are no non-priority devices. Priority
// devices passed over move up one rank.
func (idx *deviceIndex) demote(i int) {
	minPlain := RankInvalid
	maxPriority := uint8(0)

	for j, s := range idx.slots {
		if j == i || !s.active() {
			continue
		}

		if !s.priority && s.rank < minPlain {
			minPlain = s.rank
		} else if s.priority && s.rank > maxPriority {
			maxPriority = s.rank
		}
	}

	target := maxPriority
	if minPlain != RankInvalid {
		target = minPlain - 1
	}

	idx.slots[i].rank = target

	for j := range idx.slots {
		s := &idx.slots[j]
		if j != i && s.active() && s.priority && s.rank <= target {
			s.rank--
		}
	}
}

// byRank returns the active slot indices ordered by rank.
func (idx *deviceIndex) byRank() []int {
	order := make([]int, 0, idx.count)

	for i, s := range idx.slots {
		if s.active() {
			order = append(order, i)
		}
	}

	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(idx.slots[a].rank, idx.slots[b].rank)
	})

	return order
}
