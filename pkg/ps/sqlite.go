package ps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// sqliteSchemaVersion is stored in SQLite's user_version pragma.
// A fresh database (user_version 0) gets the schema created on open; any
// other unknown version is rejected with [ErrIncompatible].
const sqliteSchemaVersion = 1

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
const sqliteBusyTimeout = 10000 // milliseconds

// SQLite is a [Store] backed by a SQLite database with one row per key.
//
// Records are stored as little-endian word bytes in a BLOB column.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if ctx == nil {
		return nil, errors.New("open sqlite store: context is nil")
	}

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	err = ensureSchema(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	return &SQLite{db: db}, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection keeps writes serialized and the WAL pragmas scoped.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	var version int

	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	switch version {
	case sqliteSchemaVersion:
		return nil
	case 0:
	default:
		return fmt.Errorf("user_version %d: %w", version, ErrIncompatible)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ps_keys (
		key INTEGER PRIMARY KEY,
		words BLOB NOT NULL
	) WITHOUT ROWID`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion))
	if err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	return nil
}

// Store implements [Store].
func (s *SQLite) Store(key uint16, words []uint16) (int, error) {
	if len(words) > MaxWords {
		return 0, fmt.Errorf("store key 0x%04x: %d words: %w", key, len(words), ErrTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	ctx := context.Background()

	if len(words) == 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM ps_keys WHERE key = ?", int64(key))
		if err != nil {
			return 0, fmt.Errorf("erase key 0x%04x: %w", key, err)
		}

		return 0, nil
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO ps_keys (key, words) VALUES (?, ?)",
		int64(key), WordsToBytes(words))
	if err != nil {
		return 0, fmt.Errorf("store key 0x%04x: %w", key, err)
	}

	return len(words), nil
}

// Retrieve implements [Store].
func (s *SQLite) Retrieve(key uint16, buf []uint16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var raw []byte

	err := s.db.QueryRowContext(context.Background(),
		"SELECT words FROM ps_keys WHERE key = ?", int64(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("retrieve key 0x%04x: %w", key, err)
	}

	if len(raw)%WordSize != 0 || len(raw) > MaxBytes {
		return 0, fmt.Errorf("retrieve key 0x%04x: %d bytes: %w", key, len(raw), ErrCorrupt)
	}

	return retrieveInto(BytesToWords(raw), buf), nil
}

// Keys implements [Lister].
func (s *SQLite) Keys() ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(context.Background(), "SELECT key FROM ps_keys ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var keys []uint16

	for rows.Next() {
		var k int64

		err = rows.Scan(&k)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}

		keys = append(keys, uint16(k))
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	return keys, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

var (
	_ Store  = (*SQLite)(nil)
	_ Lister = (*SQLite)(nil)
)
