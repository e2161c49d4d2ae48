package tddb_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

func Test_PhysicalKey_Is_Injective_And_Within_Budget_When_Enumerating_Every_Triple(t *testing.T) {
	t.Parallel()

	for _, layout := range []tddb.Layout{tddb.LayoutLegacy, tddb.LayoutExtended} {
		t.Run(layout.String(), func(t *testing.T) {
			t.Parallel()

			seen := make(map[uint16]string)

			for slot := range layout.Slots() {
				for src := range tddb.SourceMax {
					for key := range layout.KeyCount(src) {
						pk, err := layout.PhysicalKey(slot, src, uint16(key))
						if err != nil {
							t.Fatalf("PhysicalKey(%d, %s, %d): %v", slot, src, key, err)
						}

						if pk < tddb.KeyAttributeBase || pk >= tddb.KeyAttributeBase+tddb.KeyBudget {
							t.Fatalf("PhysicalKey(%d, %s, %d) = 0x%04x, outside reserved range", slot, src, key, pk)
						}

						triple := fmt.Sprintf("%s/%d@%d", src, key, slot)
						if prev, dup := seen[pk]; dup {
							t.Fatalf("PhysicalKey collision at 0x%04x: %s and %s", pk, prev, triple)
						}

						seen[pk] = triple
					}
				}
			}
		})
	}
}

func Test_PhysicalKey_Matches_Layout_Formula_When_Given_Known_Triples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout tddb.Layout
		slot   int
		src    tddb.Source
		key    uint16
		want   uint16
	}{
		{"LegacyGAPFirstSlot", tddb.LayoutLegacy, 0, tddb.SourceGAP, 0, 0x0066},
		{"LegacySecurityBREDR", tddb.LayoutLegacy, 3, tddb.SourceSecurity, tddb.KeySecurityBREDR, 0x0066 + 8 + 3},
		{"LegacySecurityLE", tddb.LayoutLegacy, 3, tddb.SourceSecurity, tddb.KeySecurityLE, 0x0066 + 8 + 8 + 3},
		{"LegacyDirectLastSlot", tddb.LayoutLegacy, 7, tddb.SourceDirect, 0, 0x0066 + 8 + 16 + 8 + 7},
		{"ExtendedSecurityFirstSlot", tddb.LayoutExtended, 0, tddb.SourceSecurity, 0, 0x0066},
		{"ExtendedGATT", tddb.LayoutExtended, 5, tddb.SourceGATT, 0, 0x0066 + 24 + 5},
		{"ExtendedDirectLastSlot", tddb.LayoutExtended, 11, tddb.SourceDirect, 0, 0x0066 + 24 + 12 + 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.layout.PhysicalKey(tt.slot, tt.src, tt.key)
			if err != nil {
				t.Fatalf("PhysicalKey: %v", err)
			}

			if got != tt.want {
				t.Fatalf("PhysicalKey = 0x%04x, want 0x%04x", got, tt.want)
			}
		})
	}
}

func Test_PhysicalKey_Returns_Error_When_Triple_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		layout  tddb.Layout
		slot    int
		src     tddb.Source
		key     uint16
		wantErr error
	}{
		{"UnknownSource", tddb.LayoutLegacy, 0, tddb.SourceMax, 0, tddb.ErrInvalidSupplier},
		{"GAPInExtendedLayout", tddb.LayoutExtended, 0, tddb.SourceGAP, 0, tddb.ErrInvalidSupplier},
		{"KeyOutOfRange", tddb.LayoutLegacy, 0, tddb.SourceSecurity, 2, tddb.ErrInvalidKey},
		{"GATTKeyOutOfRange", tddb.LayoutExtended, 0, tddb.SourceGATT, 1, tddb.ErrInvalidKey},
		{"SlotOutOfRange", tddb.LayoutLegacy, 8, tddb.SourceGAP, 0, tddb.ErrInvalidParams},
		{"NegativeSlot", tddb.LayoutExtended, -1, tddb.SourceDirect, 0, tddb.ErrInvalidParams},
		{"UnknownLayout", tddb.Layout(9), 0, tddb.SourceDirect, 0, tddb.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.layout.PhysicalKey(tt.slot, tt.src, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PhysicalKey err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func Test_IndexEncoding_Has_Fixed_Size_When_Layout_Is_Known(t *testing.T) {
	t.Parallel()

	if got := tddb.IndexWordsForTesting(tddb.LayoutLegacy); got != 41 {
		t.Fatalf("legacy index words = %d, want 41", got)
	}

	if got := tddb.IndexWordsForTesting(tddb.LayoutExtended); got != 49 {
		t.Fatalf("extended index words = %d, want 49", got)
	}
}
