package tddb

import (
	"errors"
	"fmt"
	"slices"

	"github.com/calvinalkan/tddb/pkg/ps"
)

// InitState records which path [Open] took.
type InitState uint8

const (
	// InitUninitialized is the state before Open has run.
	InitUninitialized InitState = iota

	// InitVersionMatch: the stored version equals the current one.
	InitVersionMatch

	// InitVersionWidened: only an ignorable feature bit differed; the
	// version was rewritten and the data kept.
	InitVersionWidened

	// InitMigrated: the stored layout was rewritten into the current one.
	InitMigrated

	// InitMigrationHalted: a migration failed after it started writing.
	// The directory runs on whatever was persisted.
	InitMigrationHalted

	// InitReset: the store was empty, unreadable or had no migration path,
	// and was reset to an empty directory.
	InitReset
)

var initStateNames = [...]string{
	InitUninitialized:   "uninitialized",
	InitVersionMatch:    "version-match",
	InitVersionWidened:  "version-widened",
	InitMigrated:        "migrated",
	InitMigrationHalted: "migration-halted",
	InitReset:           "reset",
}

func (s InitState) String() string {
	if int(s) < len(initStateNames) {
		return initStateNames[s]
	}

	return fmt.Sprintf("init(%d)", uint8(s))
}

// migration rewrites a store persisted in layout from into layout to.
//
// run reports whether it had started modifying the store when it failed;
// a failure before any write falls back to a reset.
type migration struct {
	from Layout
	to   Layout
	run  func(d *Directory, from *layoutSpec, info SystemInfo) (wrote bool, err error)
}

var migrations = []migration{
	{from: LayoutLegacy, to: LayoutExtended, run: (*Directory).relayout},
}

// findMigration returns the migration from the stored to the current
// version, or nil. Only the layout bit (and ignorable bits) may differ.
func findMigration(stored, current Features) *migration {
	if (stored^current)&^(FeatureExtended|ignorableFeatures) != 0 {
		return nil
	}

	from, to := layoutOf(stored), layoutOf(current)

	for i := range migrations {
		if migrations[i].from == from && migrations[i].to == to {
			return &migrations[i]
		}
	}

	return nil
}

// initialize brings the store in line with the directory's version and
// loads the cache. Called once by Open with d.mu held.
func (d *Directory) initialize() {
	stored, info, err := d.readSystemRecord()

	switch {
	case errors.Is(err, errNoRecord):
		d.logger.Info("tddb empty store, creating directory")
		d.reset()

	case err != nil:
		d.logger.Warn("tddb system record unreadable, resetting", "error", err)
		d.reset()

	case stored == d.version:
		d.state = InitVersionMatch
		d.loadExisting()

	case onlyIgnorableDiffers(stored, d.version):
		err = d.writeSystemRecord(d.version, &info)
		if err != nil {
			d.logger.Error("tddb rewrite of widened version failed", "error", err)
		}

		d.logger.Info("tddb version widened", "stored", stored.String(), "current", d.version.String())
		d.state = InitVersionWidened
		d.loadExisting()

	default:
		m := findMigration(stored, d.version)
		if m == nil {
			d.logger.Warn("tddb no migration path, resetting",
				"stored", stored.String(), "current", d.version.String())
			d.reset()

			return
		}

		d.migrate(m, m.from.spec(), info)
	}
}

// loadExisting loads the index of a store whose version matches, dropping
// inconsistent slots and persisting the repaired index if anything
// changed.
func (d *Directory) loadExisting() {
	idx, err := d.loadIndex()

	switch {
	case errors.Is(err, errNoRecord):
		idx = blankIndex(d.spec.slots)

	case errors.Is(err, ErrReadFailed):
		d.logger.Warn("tddb index malformed, starting empty", "error", err)

		idx = blankIndex(d.spec.slots)

	case err != nil:
		d.logger.Error("tddb index unreadable", "error", err)

		return
	}

	before := d.spec.encodeIndex(idx)

	idx.sanitise()

	after := d.spec.encodeIndex(idx)
	if slices.Equal(before, after) && err == nil {
		d.cache.rebuild(idx)

		return
	}

	err = d.commitIndex(idx)
	if err != nil {
		d.logger.Error("tddb persisting repaired index failed", "error", err)
		d.cache.rebuild(idx)

		return
	}

	d.logger.Info("tddb index repaired", "devices", idx.count)
}

// migrate runs m and settles the init state from its outcome.
func (d *Directory) migrate(m *migration, from *layoutSpec, info SystemInfo) {
	d.logger.Info("tddb migrating", "from", m.from.String(), "to", m.to.String())

	wrote, err := m.run(d, from, info)
	if err == nil {
		d.state = InitMigrated

		return
	}

	if !wrote {
		d.logger.Warn("tddb migration failed before writing, resetting", "error", err)
		d.reset()

		return
	}

	d.logger.Error("tddb migration halted", "from", m.from.String(), "to", m.to.String(), "error", err)
	d.state = InitMigrationHalted

	idx, err := d.loadIndex()
	if err != nil {
		d.logger.Error("tddb no usable index after halted migration", "error", err)
		d.cache = newDeviceCache(d.spec.slots)

		return
	}

	idx.sanitise()
	d.cache.rebuild(idx)
}

type migratedBlob struct {
	slot  int
	src   Source
	key   uint16
	words []uint16
}

// relayout rewrites the index and every attribute from the from layout
// into the directory's layout. Slot indices, ranks, priority and addresses
// carry over. Keys the new layout lacks are dropped.
func (d *Directory) relayout(from *layoutSpec, info SystemInfo) (bool, error) {
	to := d.spec

	idx, err := d.loadIndexAs(from)
	if err != nil {
		return false, fmt.Errorf("relayout: %w", err)
	}

	idx.sanitise()

	var (
		blobs   []migratedBlob
		dropped int
		readErr error
	)

	for _, slot := range idx.byRank() {
		if slot >= to.slots {
			return false, fmt.Errorf("relayout: slot %d beyond %d slots: %w", slot, to.slots, ErrInvalidParams)
		}

		from.eachKey(func(src Source, key uint16) {
			if readErr != nil {
				return
			}

			pk, mapErr := from.mapKey(slot, src, key)
			if mapErr != nil {
				readErr = mapErr

				return
			}

			buf := make([]uint16, ps.MaxWords)

			n, retrieveErr := d.store.Retrieve(pk, buf)
			if retrieveErr != nil {
				readErr = fmt.Errorf("read key 0x%04x: %w", pk, retrieveErr)

				return
			}

			if n == 0 {
				return
			}

			if int(key) >= to.keyCounts[src] {
				dropped++

				return
			}

			blobs = append(blobs, migratedBlob{slot: slot, src: src, key: key, words: buf[:n]})
		})

		if readErr != nil {
			return false, fmt.Errorf("relayout: %w", readErr)
		}
	}

	next := blankIndex(to.slots)
	next.count = idx.count
	copy(next.slots, idx.slots)

	// Everything needed is in memory; from here on the store changes.
	err = d.eraseAttributeRange()
	if err != nil {
		return true, fmt.Errorf("relayout: %w", err)
	}

	err = d.commitIndex(next)
	if err != nil {
		return true, fmt.Errorf("relayout: %w", err)
	}

	for _, b := range blobs {
		pk, mapErr := to.mapKey(b.slot, b.src, b.key)
		if mapErr != nil {
			return true, fmt.Errorf("relayout: %w", mapErr)
		}

		_, err = d.store.Store(pk, b.words)
		if err != nil {
			return true, fmt.Errorf("relayout: write key 0x%04x: %w", pk, err)
		}
	}

	err = d.writeSystemRecord(d.version, &info)
	if err != nil {
		return true, fmt.Errorf("relayout: %w", err)
	}

	d.logger.Info("tddb migrated",
		"devices", next.count, "attributes", len(blobs), "dropped", dropped)

	return true, nil
}

// reset writes a blank system record with the current version, empties
// the index and erases every attribute key. Failures are logged; the
// directory ends up empty either way.
func (d *Directory) reset() {
	d.state = InitReset

	err := d.writeSystemRecord(d.version, &SystemInfo{})
	if err != nil {
		d.logger.Error("tddb reset: system record", "error", err)
	}

	err = d.deleteAll(FilterExcludeNone)
	if err != nil {
		d.logger.Error("tddb reset: index", "error", err)
		d.cache = newDeviceCache(d.spec.slots)
	}

	err = d.eraseAttributeRange()
	if err != nil {
		d.logger.Error("tddb reset: attributes", "error", err)
	}
}
