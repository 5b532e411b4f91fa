package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/openkl/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

// sqliteBusy and sqliteLocked are the primary SQLite result codes for
// lock contention.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// DefaultLockTimeout bounds the wait for the writer lock.
const DefaultLockTimeout = 5 * time.Second

// Store is the SQLite-backed graph store. It implements every driven
// persistence port over a single database file.
type Store struct {
	db          *sql.DB
	path        string
	lockTimeout time.Duration

	// writeGate serialises writers inside this process.
	writeGate chan struct{}

	vecMu   sync.RWMutex
	vectors *vectorIndex

	// buildMu serialises lazy vector rebuilds.
	buildMu sync.Mutex
}

var _ driven.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithLockTimeout sets the bounded wait for the writer lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.ok/data/graph.db.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ok", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		path:        filepath.Join(dataDir, "graph.db"),
		lockTimeout: DefaultLockTimeout,
		writeGate:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	// WAL gives readers a snapshot while a writer commits. Write
	// transactions begin IMMEDIATE so the cross-process lock is taken up front.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_txlock=immediate",
		s.path, s.lockTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Transactions ====================

// write runs fn in a write transaction under the single-writer lock.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.writeGate <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: writer lock not acquired within %s", domain.ErrStoreBusy, s.lockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writeGate }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapBusy(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return mapBusy(err)
	}

	if err := tx.Commit(); err != nil {
		return mapBusy(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// read runs fn in a read-only transaction that sees one snapshot.
func (s *Store) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return mapBusy(fmt.Errorf("beginning read transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	return mapBusy(fn(tx))
}

// mapBusy tags SQLite lock contention with domain.ErrStoreBusy.
func mapBusy(err error) error {
	if err == nil || errors.Is(err, domain.ErrStoreBusy) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		if code == sqliteBusy || code == sqliteLocked {
			return fmt.Errorf("%w: %w", domain.ErrStoreBusy, err)
		}
	}
	return err
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a float32 slice to bytes.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}

	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts bytes to a float32 slice.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}

	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
