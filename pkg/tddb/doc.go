// Package tddb implements a trusted device directory: a small persistent
// table of paired peer devices and their security and GATT records, kept
// in a word-addressed [ps.Store].
//
// # Model
//
// The directory has a fixed number of device slots (8 or 12, see
// [Layout]). Every occupied slot has a rank; rank 0 is the most recently
// used device and the ranks of the n devices are exactly 0..n-1. A device
// may be marked priority, which protects it from deletion and from
// eviction.
//
// Each device owns a few attributes, addressed by (source, key). Every
// attribute is a blob of up to 128 bytes stored under its own store key,
// computed from the slot, source and key. The device index and a system
// record live under two more reserved keys.
//
// # Basic Usage
//
//	store, err := ps.OpenFile("/var/lib/bt/tddb.img")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	dir, err := tddb.Open(store, tddb.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer dir.Close()
//
//	dev := tddb.TypedAddr{Type: tddb.AddressPublic, Addr: addr}
//	err = dir.WriteEntry(dev, tddb.SourceSecurity, tddb.KeySecurityBREDR, linkKey)
//	err = dir.PrioritiseDevice(dev, tddb.UpdateMRU)
//
// # Eviction
//
// Writing an attribute for an unknown device adds it at the lowest rank.
// When every slot is taken, the least recently used non-priority device is
// deleted to make room; if all devices are priority devices the write
// fails with [ErrSlotsExhausted].
//
// # Versions and Migration
//
// The system record carries a [Features] bitmask. [Open] compares it with
// the directory's own version: an exact match loads the data, a difference
// in the LE signing bit only is rewritten in place, a legacy store opened
// with the extended layout is migrated, and anything else is reset to an
// empty directory. [Directory.InitState] reports the path taken.
//
// # Concurrency
//
// A [Directory] is safe for concurrent use; each call holds one lock from
// index read to cache rebuild. Only one Directory may use a store at a
// time.
package tddb
