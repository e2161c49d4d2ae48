package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calvinalkan/tddb/internal/config"
	"github.com/calvinalkan/tddb/pkg/ps"
	"github.com/calvinalkan/tddb/pkg/tddb"
)

// closableStore is a backend the session owns.
type closableStore interface {
	ps.Store
	Close() error
}

// session holds the resolved config and, once a command needs it, the
// open store and directory. The shell reuses one session for every line.
type session struct {
	cfg    config.Config
	logger *slog.Logger

	store closableStore
	dir   *tddb.Directory
}

func newSession(cfg config.Config, logger *slog.Logger) *session {
	return &session{cfg: cfg, logger: logger}
}

// directory opens the configured backend and directory on first use.
func (s *session) directory(ctx context.Context) (*tddb.Directory, error) {
	if s.dir != nil {
		return s.dir, nil
	}

	store, err := openStore(ctx, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}

	opts := s.cfg.DirectoryOptions()
	opts.Logger = s.logger

	dir, err := tddb.Open(store, opts)
	if err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("open directory: %w", err)
	}

	s.store = store
	s.dir = dir

	return dir, nil
}

// Close closes the directory and then the store.
func (s *session) Close() error {
	if s.dir == nil {
		return nil
	}

	err := errors.Join(s.dir.Close(), s.store.Close())
	s.dir, s.store = nil, nil

	return err
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (closableStore, error) {
	switch cfg.Backend {
	case config.BackendFile:
		store, err := ps.OpenFile(cfg.StoreAbs)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}

		return store, nil

	case config.BackendSQLite:
		store, err := ps.OpenSQLite(ctx, cfg.StoreAbs)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}

		return store, nil

	case config.BackendBolt:
		store, err := ps.OpenBolt(cfg.StoreAbs, ps.WithBoltLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}

		return store, nil

	case config.BackendMem:
		return ps.NewMem(), nil

	default:
		return nil, fmt.Errorf("open store: %w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
