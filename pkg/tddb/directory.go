package tddb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calvinalkan/tddb/pkg/ps"
)

// Options configures [Open].
type Options struct {
	// MaxDevices caps the number of devices held at once.
	//
	// 0 means the layout's slot count. Larger values are clamped to it.
	MaxDevices int

	// Layout selects the persisted schema.
	//
	// Default is [LayoutExtended].
	Layout Layout

	// Features is the version written to the system record.
	//
	// Default is [DefaultFeatures]. The [FeatureExtended] bit is always
	// derived from Layout.
	Features Features

	// Logger receives init, migration and eviction events.
	//
	// Default discards everything.
	Logger *slog.Logger
}

// Directory is an open trusted device directory.
//
// All methods are safe for concurrent use. Each call runs to completion
// under one lock covering the index read, the mutation, the persist and
// the cache rebuild.
type Directory struct {
	_ [0]func() // prevent external construction

	mu sync.Mutex

	store      ps.Store
	spec       *layoutSpec
	version    Features
	maxDevices int
	cache      deviceCache
	logger     *slog.Logger
	state      InitState
	closed     bool
}

// Open initializes a directory on store, migrating or resetting whatever
// the store holds so that it matches opts.
//
// Open only fails for invalid options. Store failures during init are
// logged and leave the directory in some valid state, possibly empty; see
// [Directory.InitState].
//
// The directory does not take ownership of store; Close leaves it open.
func Open(store ps.Store, opts Options) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("open: store is nil: %w", ErrInvalidParams)
	}

	if opts.Layout == 0 {
		opts.Layout = LayoutExtended
	}

	spec := opts.Layout.spec()
	if spec == nil {
		return nil, fmt.Errorf("open: %s: %w", opts.Layout, ErrInvalidParams)
	}

	if opts.MaxDevices < 0 {
		return nil, fmt.Errorf("open: max devices %d: %w", opts.MaxDevices, ErrInvalidParams)
	}

	if opts.MaxDevices == 0 || opts.MaxDevices > spec.slots {
		opts.MaxDevices = spec.slots
	}

	if opts.Features == 0 {
		opts.Features = DefaultFeatures
	}

	if opts.Layout == LayoutExtended {
		opts.Features |= FeatureExtended
	} else {
		opts.Features &^= FeatureExtended
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	d := &Directory{
		store:      store,
		spec:       spec,
		version:    opts.Features,
		maxDevices: opts.MaxDevices,
		cache:      newDeviceCache(spec.slots),
		logger:     opts.Logger,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialize()

	d.logger.Info("tddb initialized",
		"layout", spec.layout.String(),
		"version", d.version.String(),
		"max_devices", d.maxDevices,
		"devices", d.cache.count(),
		"state", d.state.String())

	return d, nil
}

// Close releases the directory. Further calls return [ErrClosed].
// The store is not closed.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	d.closed = true
	d.cache = newDeviceCache(d.spec.slots)

	return nil
}

// Layout returns the active layout.
func (d *Directory) Layout() Layout {
	return d.spec.layout
}

// Version returns the version written to the system record.
func (d *Directory) Version() Features {
	return d.version
}

// MaxDevices returns the effective device limit.
func (d *Directory) MaxDevices() int {
	return d.maxDevices
}

// InitState reports which path [Open] took.
func (d *Directory) InitState() InitState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// lock takes the directory lock and fails if the directory is closed.
// On success the caller must call d.mu.Unlock.
func (d *Directory) lock() error {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()

		return ErrClosed
	}

	return nil
}

// loadIndex reads and decodes the persisted index.
func (d *Directory) loadIndex() (*deviceIndex, error) {
	return d.loadIndexAs(d.spec)
}

func (d *Directory) loadIndexAs(spec *layoutSpec) (*deviceIndex, error) {
	words := make([]uint16, spec.indexWords()+1)

	n, err := d.store.Retrieve(KeyIndex, words)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	if n == 0 {
		return nil, fmt.Errorf("load index: %w", errNoRecord)
	}

	return spec.decodeIndex(words[:n])
}

// commitIndex persists idx and then rebuilds the cache from it. When the
// persist fails the cache is left as it was.
func (d *Directory) commitIndex(idx *deviceIndex) error {
	words := d.spec.encodeIndex(idx)

	n, err := d.store.Store(KeyIndex, words)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	if n != len(words) {
		return fmt.Errorf("persist index: wrote %d of %d words", n, len(words))
	}

	d.cache.rebuild(idx)

	return nil
}

// errNoRecord reports a record that is absent from the store.
var errNoRecord = errors.New("no record")
