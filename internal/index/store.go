package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the store refuses to open a mismatched database.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("index schema version mismatch")

const fingerprintKey = "fingerprint"

// Entry is one indexed file.
type Entry struct {
	Path    string
	Size    int64
	MtimeNS int64
	Hash    []byte
}

// Store manages index persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the index database in dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Get returns the entry for path, or nil when the path is not indexed.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT path, size, mtime_ns, hash FROM files WHERE path = ?", path)
	var e Entry
	if err := row.Scan(&e.Path, &e.Size, &e.MtimeNS, &e.Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	return &e, nil
}

// Upsert inserts or replaces one entry.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, size, mtime_ns, hash) VALUES (?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET size=excluded.size, mtime_ns=excluded.mtime_ns, hash=excluded.hash`,
		e.Path, e.Size, e.MtimeNS, e.Hash)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", e.Path, err)
	}
	return nil
}

// Entries returns all indexed files ordered by path.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, size, mtime_ns, hash FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.Size, &e.MtimeNS, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of indexed files.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM files").Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// Prune deletes every indexed path not present in keep.
func (s *Store) Prune(ctx context.Context, keep map[string]struct{}) error {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM files")
	if err != nil {
		return fmt.Errorf("list paths: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return fmt.Errorf("scan path: %w", err)
		}
		if _, ok := keep[path]; !ok {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate paths: %w", err)
	}

	for _, path := range stale {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("delete %q: %w", path, err)
		}
	}
	return nil
}

// Fingerprint returns the stored index fingerprint, zero when none has been
// computed yet.
func (s *Store) Fingerprint(ctx context.Context) (uint64, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", fingerprintKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read fingerprint: %w", err)
	}
	fp, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", value, err)
	}
	return fp, nil
}

// SetFingerprint stores the index fingerprint.
func (s *Store) SetFingerprint(ctx context.Context, fp uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		fingerprintKey, strconv.FormatUint(fp, 10))
	if err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}
	return nil
}
