package tddb

// cacheEntry mirrors one slot of the persisted index.
type cacheEntry struct {
	nap      uint16
	uap      uint8
	lap      uint32
	addrType AddressType
	rank     uint8
	priority bool
}

// deviceCache is the in-memory view of the device index, indexed by slot.
//
// It is only ever replaced wholesale by rebuild, right after the index it
// mirrors has been persisted.
type deviceCache struct {
	entries []cacheEntry
}

func newDeviceCache(slots int) deviceCache {
	c := deviceCache{entries: make([]cacheEntry, slots)}
	for i := range c.entries {
		c.entries[i].rank = RankInvalid
	}

	return c
}

func (c *deviceCache) rebuild(idx *deviceIndex) {
	for i, s := range idx.slots {
		c.entries[i] = cacheEntry{
			nap:      s.dev.Addr.NAP,
			uap:      s.dev.Addr.UAP,
			lap:      s.dev.Addr.LAP,
			addrType: s.dev.Type,
			rank:     s.rank,
			priority: s.priority,
		}
	}
}

// findByAddress returns the slot holding dev, or -1.
func (c *deviceCache) findByAddress(dev TypedAddr) int {
	for i, e := range c.entries {
		if e.rank == RankInvalid {
			continue
		}

		if e.addrType == dev.Type && e.lap == dev.Addr.LAP && e.nap == dev.Addr.NAP && e.uap == dev.Addr.UAP {
			return i
		}
	}

	return -1
}

// findByRank returns the slot with the given rank, or -1.
func (c *deviceCache) findByRank(rank int) int {
	if rank < 0 || rank >= int(RankInvalid) {
		return -1
	}

	for i, e := range c.entries {
		if int(e.rank) == rank {
			return i
		}
	}

	return -1
}

// free returns the first empty slot below limit, or -1.
func (c *deviceCache) free(limit int) int {
	for i := range min(limit, len(c.entries)) {
		if c.entries[i].rank == RankInvalid {
			return i
		}
	}

	return -1
}

func (c *deviceCache) count() int {
	n := 0

	for _, e := range c.entries {
		if e.rank != RankInvalid {
			n++
		}
	}

	return n
}

func (c *deviceCache) typedAddr(slot int) TypedAddr {
	e := c.entries[slot]

	return TypedAddr{Type: e.addrType, Addr: Address{NAP: e.nap, UAP: e.uap, LAP: e.lap}}
}
