package tddb_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/tddb/pkg/ps"
	"github.com/calvinalkan/tddb/pkg/tddb"
)

func Test_Open_Resets_Store_When_It_Is_Empty(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()

	// Leftovers under attribute keys without a system record.
	_, _ = mem.Store(tddb.KeyAttributeBase+3, []uint16{1, 2, 3})

	d := openDir(t, mem, tddb.Options{})

	if d.InitState() != tddb.InitReset {
		t.Fatalf("InitState = %s, want reset", d.InitState())
	}

	snap := mem.Snapshot()
	if _, ok := snap[tddb.KeyAttributeBase+3]; ok {
		t.Fatalf("reset left attribute key behind")
	}

	if _, ok := snap[tddb.KeySystem]; !ok {
		t.Fatalf("reset did not write a system record")
	}

	if _, ok := snap[tddb.KeyIndex]; !ok {
		t.Fatalf("reset did not write an index")
	}
}

func Test_Open_Keeps_Devices_When_Store_Version_Matches(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()

	first, err := tddb.Open(mem, tddb.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := range 3 {
		mustWrite(t, first, dev(i))
	}

	err = first.PrioritiseDevice(dev(2), tddb.UpdatePrioritise)
	if err != nil {
		t.Fatalf("PrioritiseDevice: %v", err)
	}

	want, _, err := first.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	_ = first.Close()

	d := openDir(t, mem, tddb.Options{})

	if d.InitState() != tddb.InitVersionMatch {
		t.Fatalf("InitState = %s, want version-match", d.InitState())
	}

	got, _, err := d.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("devices after reopen (-want +got):\n%s", diff)
	}

	requireConsistent(t, d)
}

func Test_Open_Rewrites_Version_When_Only_Signing_Bit_Differs(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()

	first, err := tddb.Open(mem, tddb.Options{Features: tddb.DefaultFeatures})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mustWrite(t, first, dev(1))
	_ = first.Close()

	narrowed := tddb.DefaultFeatures &^ tddb.FeatureLESigning

	d, err := tddb.Open(mem, tddb.Options{Features: narrowed})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if d.InitState() != tddb.InitVersionWidened {
		t.Fatalf("InitState = %s, want version-widened", d.InitState())
	}

	if ok, _ := d.DeviceExists(dev(1)); !ok {
		t.Fatalf("device lost on version widening")
	}

	_ = d.Close()

	again := openDir(t, mem, tddb.Options{Features: narrowed})
	if again.InitState() != tddb.InitVersionMatch {
		t.Fatalf("InitState after rewrite = %s, want version-match", again.InitState())
	}
}

func Test_Open_Resets_Store_When_Version_Is_Unknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record []uint16
		opts   tddb.Options
	}{
		{
			name:   "ForeignFeatureSet",
			record: tddb.EncodeSystemRecordForTesting(tddb.FeatureLE, tddb.SystemInfo{}),
		},
		{
			name:   "ExtendedStoreOpenedAsLegacy",
			record: tddb.EncodeSystemRecordForTesting(tddb.DefaultFeatures, tddb.SystemInfo{}),
			opts:   tddb.Options{Layout: tddb.LayoutLegacy},
		},
		{
			name:   "TruncatedRecord",
			record: []uint16{0x001F, 0, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mem := ps.NewMem()
			_, _ = mem.Store(tddb.KeySystem, tt.record)
			_, _ = mem.Store(tddb.KeyIndex, tddb.EncodeIndexForTesting(tddb.LayoutExtended, 1, []tddb.SlotState{
				{Slot: 0, Rank: 0, Dev: dev(1)},
			}))

			d := openDir(t, mem, tt.opts)

			if d.InitState() != tddb.InitReset {
				t.Fatalf("InitState = %s, want reset", d.InitState())
			}

			if n, _ := d.CountDevices(); n != 0 {
				t.Fatalf("CountDevices = %d after reset, want 0", n)
			}

			info, err := d.GetSystemInfo()
			if err != nil {
				t.Fatalf("GetSystemInfo: %v", err)
			}

			if diff := cmp.Diff(tddb.SystemInfo{}, info); diff != "" {
				t.Fatalf("system info not blank after reset:\n%s", diff)
			}
		})
	}
}

// legacyFixture fills a legacy directory on mem: dev(0) has every
// attribute, dev(1) is a priority device, dev(2) is most recently used.
func legacyFixture(t *testing.T, mem *ps.Mem) []tddb.DeviceInfo {
	t.Helper()

	d, err := tddb.Open(mem, tddb.Options{Layout: tddb.LayoutLegacy})
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}

	defer func() { _ = d.Close() }()

	writes := []struct {
		device int
		src    tddb.Source
		key    uint16
		value  []byte
	}{
		{0, tddb.SourceGAP, tddb.KeyGAPDefault, []byte("name")},
		{0, tddb.SourceSecurity, tddb.KeySecurityBREDR, []byte("link-key-bredr")},
		{0, tddb.SourceSecurity, tddb.KeySecurityLE, []byte("le-keys")},
		{0, tddb.SourceGATT, tddb.KeyGATTCache, []byte("gatt")},
		{0, tddb.SourceDirect, tddb.KeyDirectAttr, []byte("direct")},
		{1, tddb.SourceDirect, tddb.KeyDirectAttr, []byte("d1")},
		{2, tddb.SourceGATT, tddb.KeyGATTCache, []byte("g2")},
	}

	for _, w := range writes {
		err = d.WriteEntry(dev(w.device), w.src, w.key, w.value)
		if err != nil {
			t.Fatalf("WriteEntry(%d, %s): %v", w.device, w.src, err)
		}
	}

	err = d.PrioritiseDevice(dev(1), tddb.UpdatePrioritise)
	if err != nil {
		t.Fatalf("PrioritiseDevice: %v", err)
	}

	err = d.PrioritiseDevice(dev(2), tddb.UpdateMRU)
	if err != nil {
		t.Fatalf("PrioritiseDevice: %v", err)
	}

	err = d.SetSystemInfo(tddb.SystemInfo{ER: [8]uint16{1, 2, 3}, SignCounter: 42})
	if err != nil {
		t.Fatalf("SetSystemInfo: %v", err)
	}

	list, _, err := d.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	return list
}

func Test_Open_Migrates_Devices_And_Attributes_When_Store_Has_Legacy_Layout(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	want := legacyFixture(t, mem)

	d := openDir(t, mem, tddb.Options{Layout: tddb.LayoutExtended})

	if d.InitState() != tddb.InitMigrated {
		t.Fatalf("InitState = %s, want migrated", d.InitState())
	}

	got, _, err := d.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("devices after migration (-want +got):\n%s", diff)
	}

	slots := tddb.CacheSlotsForTesting(d)
	for i := range 3 {
		if slots[i].Dev != dev(i) {
			t.Fatalf("slot %d = %s, want %s", i, slots[i].Dev, dev(i))
		}
	}

	reads := []struct {
		device int
		src    tddb.Source
		key    uint16
		want   string
	}{
		{0, tddb.SourceSecurity, tddb.KeySecurityBREDR, "link-key-bredr"},
		{0, tddb.SourceSecurity, tddb.KeySecurityLE, "le-keys\x00"},
		{0, tddb.SourceGATT, tddb.KeyGATTCache, "gatt"},
		{0, tddb.SourceDirect, tddb.KeyDirectAttr, "direct"},
		{1, tddb.SourceDirect, tddb.KeyDirectAttr, "d1"},
		{2, tddb.SourceGATT, tddb.KeyGATTCache, "g2"},
	}

	for _, r := range reads {
		buf := make([]byte, len(r.want))

		err := d.GetEntry(dev(r.device), r.src, r.key, buf)
		if err != nil {
			t.Fatalf("GetEntry(%d, %s/%d): %v", r.device, r.src, r.key, err)
		}

		if string(buf) != r.want {
			t.Fatalf("GetEntry(%d, %s/%d) = %q, want %q", r.device, r.src, r.key, buf, r.want)
		}
	}

	_, err = d.ReadEntry(dev(0), tddb.SourceGAP, tddb.KeyGAPDefault, nil)
	if !errors.Is(err, tddb.ErrInvalidSupplier) {
		t.Fatalf("GAP read after migration err = %v, want ErrInvalidSupplier", err)
	}

	for _, src := range []tddb.Source{tddb.SourceGATT, tddb.SourceDirect} {
		ok, err := d.EntryExists(dev(1), src, 0)
		if err != nil {
			t.Fatalf("EntryExists: %v", err)
		}

		if ok != (src == tddb.SourceDirect) {
			t.Fatalf("EntryExists(dev1, %s) = %v after migration", src, ok)
		}
	}

	info, err := d.GetSystemInfo()
	if err != nil {
		t.Fatalf("GetSystemInfo: %v", err)
	}

	if info.SignCounter != 42 || info.ER[2] != 3 {
		t.Fatalf("system info not carried over: %+v", info)
	}

	requireConsistent(t, d)
}

func Test_Open_Matches_Version_When_Migrated_Store_Is_Reopened(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	legacyFixture(t, mem)

	first, err := tddb.Open(mem, tddb.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_ = first.Close()

	d := openDir(t, mem, tddb.Options{})
	if d.InitState() != tddb.InitVersionMatch {
		t.Fatalf("InitState = %s, want version-match", d.InitState())
	}

	if n, _ := d.CountDevices(); n != 3 {
		t.Fatalf("CountDevices = %d, want 3", n)
	}
}

func Test_Open_Resets_Store_When_Migration_Fails_Before_Writing(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	legacyFixture(t, mem)

	pk, err := tddb.LayoutLegacy.PhysicalKey(0, tddb.SourceGATT, tddb.KeyGATTCache)
	if err != nil {
		t.Fatalf("PhysicalKey: %v", err)
	}

	faulty := ps.NewFaulty(mem)
	faulty.FailKey(ps.OpRetrieve, pk)

	d := openDir(t, faulty, tddb.Options{})

	if d.InitState() != tddb.InitReset {
		t.Fatalf("InitState = %s, want reset", d.InitState())
	}

	if n, _ := d.CountDevices(); n != 0 {
		t.Fatalf("CountDevices = %d, want 0", n)
	}
}

func Test_Open_Halts_Migration_When_Attribute_Write_Fails(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	want := legacyFixture(t, mem)

	pk, err := tddb.LayoutExtended.PhysicalKey(0, tddb.SourceDirect, tddb.KeyDirectAttr)
	if err != nil {
		t.Fatalf("PhysicalKey: %v", err)
	}

	d := openDir(t, &valueFailStore{inner: mem, key: pk}, tddb.Options{})

	if d.InitState() != tddb.InitMigrationHalted {
		t.Fatalf("InitState = %s, want migration-halted", d.InitState())
	}

	// The new index was committed before the attributes, so the devices
	// survive even though some of their data did not.
	got, _, err := d.ListDevices(16)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("devices after halted migration (-want +got):\n%s", diff)
	}

	requireConsistent(t, d)
}

func Test_Open_Repairs_Index_When_Ranks_Are_Inconsistent(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	_, _ = mem.Store(tddb.KeySystem, tddb.EncodeSystemRecordForTesting(tddb.DefaultFeatures, tddb.SystemInfo{}))
	_, _ = mem.Store(tddb.KeyIndex, tddb.EncodeIndexForTesting(tddb.LayoutExtended, 3, []tddb.SlotState{
		{Slot: 0, Rank: 2, Dev: dev(1)},
		{Slot: 2, Rank: 1, Dev: dev(2)},
		// Zero address tombstone.
		{Slot: 4, Rank: 0},
		// Rank beyond count.
		{Slot: 7, Rank: 7, Dev: dev(3)},
		{Slot: 9, Rank: 1, Priority: true, Dev: dev(4)},
	}))

	d := openDir(t, mem, tddb.Options{})

	if d.InitState() != tddb.InitVersionMatch {
		t.Fatalf("InitState = %s, want version-match", d.InitState())
	}

	want := []tddb.TypedAddr{dev(2), dev(4), dev(1)}
	if diff := cmp.Diff(want, rankOrder(t, d)); diff != "" {
		t.Fatalf("repaired order (-want +got):\n%s", diff)
	}

	requireConsistent(t, d)
}

func Test_Open_Starts_Empty_When_Index_Has_Wrong_Size(t *testing.T) {
	t.Parallel()

	mem := ps.NewMem()
	_, _ = mem.Store(tddb.KeySystem, tddb.EncodeSystemRecordForTesting(tddb.DefaultFeatures, tddb.SystemInfo{}))
	_, _ = mem.Store(tddb.KeyIndex, []uint16{1, 2, 3})

	d := openDir(t, mem, tddb.Options{})

	if n, _ := d.CountDevices(); n != 0 {
		t.Fatalf("CountDevices = %d, want 0", n)
	}

	mustWrite(t, d, dev(1))
	requireConsistent(t, d)
}
