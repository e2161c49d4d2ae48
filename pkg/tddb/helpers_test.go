package tddb_test

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/tddb/pkg/ps"
	"github.com/calvinalkan/tddb/pkg/tddb"
)

// dev returns a distinct public device for each n.
func dev(n int) tddb.TypedAddr {
	return tddb.TypedAddr{
		Type: tddb.AddressPublic,
		Addr: tddb.Address{NAP: 0x0002, UAP: 0x5B, LAP: 0x100000 + uint32(n)},
	}
}

func openDir(t *testing.T, store ps.Store, opts tddb.Options) *tddb.Directory {
	t.Helper()

	d, err := tddb.Open(store, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = d.Close() })

	return d
}

func openLegacy(t *testing.T) (*tddb.Directory, *ps.Mem) {
	t.Helper()

	mem := ps.NewMem()

	return openDir(t, mem, tddb.Options{Layout: tddb.LayoutLegacy}), mem
}

func openExtended(t *testing.T) (*tddb.Directory, *ps.Mem) {
	t.Helper()

	mem := ps.NewMem()

	return openDir(t, mem, tddb.Options{Layout: tddb.LayoutExtended}), mem
}

// openLimited opens an extended directory holding at most maxDevices.
func openLimited(t *testing.T, maxDevices int) (*tddb.Directory, *ps.Mem) {
	t.Helper()

	mem := ps.NewMem()

	return openDir(t, mem, tddb.Options{MaxDevices: maxDevices}), mem
}

// mustWrite writes a small attribute that both layouts accept.
func mustWrite(t *testing.T, d *tddb.Directory, device tddb.TypedAddr, value ...byte) {
	t.Helper()

	if len(value) == 0 {
		value = []byte{0xAA, 0xBB}
	}

	err := d.WriteEntry(device, tddb.SourceDirect, tddb.KeyDirectAttr, value)
	if err != nil {
		t.Fatalf("WriteEntry(%s): %v", device, err)
	}
}

// rankOrder returns the devices in rank order.
func rankOrder(t *testing.T, d *tddb.Directory) []tddb.TypedAddr {
	t.Helper()

	list, _, err := d.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	out := make([]tddb.TypedAddr, len(list))
	for i, info := range list {
		out[i] = info.TypedAddr
	}

	return out
}

// requireConsistent checks that ranks are dense and that the cache mirrors
// the persisted index field by field.
func requireConsistent(t *testing.T, d *tddb.Directory) {
	t.Helper()

	persisted, count, err := tddb.PersistedSlotsForTesting(d)
	if err != nil {
		t.Fatalf("load persisted index: %v", err)
	}

	cached := tddb.CacheSlotsForTesting(d)

	// Empty slots keep whatever address they last held, so compare only the
	// fields that matter for them.
	normalize := func(slots []tddb.SlotState) []tddb.SlotState {
		out := make([]tddb.SlotState, len(slots))
		for i, s := range slots {
			if s.Rank == tddb.RankInvalid {
				s = tddb.SlotState{Slot: s.Slot, Rank: tddb.RankInvalid}
			}

			out[i] = s
		}

		return out
	}

	if diff := cmp.Diff(normalize(persisted), normalize(cached)); diff != "" {
		t.Fatalf("cache differs from persisted index (-persisted +cache):\n%s", diff)
	}

	var ranks []int

	for _, s := range persisted {
		if s.Rank != tddb.RankInvalid {
			ranks = append(ranks, int(s.Rank))
		}
	}

	if len(ranks) != int(count) {
		t.Fatalf("index count = %d, but %d active slots", count, len(ranks))
	}

	sort.Ints(ranks)

	for i, r := range ranks {
		if r != i {
			t.Fatalf("ranks not dense: %v", ranks)
		}
	}
}
