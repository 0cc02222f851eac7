package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// QuestionsTable is the table every snapshot must carry.
const QuestionsTable = "questions"

// sqliteHeader opens every SQLite 3 database file.
var sqliteHeader = []byte("SQLite format 3\x00")

var (
	// ErrNotSQLite is returned when fetched bytes are not a SQLite database.
	ErrNotSQLite = errors.New("snapshot is not a SQLite database")
	// ErrMissingTable is returned when the snapshot has no questions table.
	ErrMissingTable = errors.New("snapshot has no questions table")
)

// Engine turns raw snapshot bytes into queryable handles. Auxiliary files
// (the materialized snapshot copies) live under its directory.
type Engine struct {
	dir string
}

// NewEngine creates an engine rooted at dir.
func NewEngine(dir string) *Engine {
	if dir == "" {
		dir = DefaultEngineDir()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Engine{dir: dir}
}

// DefaultEngineDir returns $TMPDIR/triviasearch.
func DefaultEngineDir() string {
	return filepath.Join(os.TempDir(), "triviasearch")
}

// Dir returns the auxiliary directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Prepare makes sure the auxiliary directory exists and the SQLite driver
// answers a trivial query.
func (e *Engine) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create engine directory: %w", err)
	}

	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open sqlite driver: %w", err)
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("sqlite driver not responding: %w", err)
	}

	log.Debug().Str("sqlite_version", version).Str("dir", e.dir).Msg("Database engine ready")
	return nil
}

// Open materializes data under the engine directory and opens it read-only.
func (e *Engine) Open(ctx context.Context, data []byte) (*Handle, error) {
	if !bytes.HasPrefix(data, sqliteHeader) {
		return nil, ErrNotSQLite
	}

	f, err := os.CreateTemp(e.dir, "snapshot-*.sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close snapshot file: %w", err)
	}

	db, err := sql.Open(DriverName, readOnlyDSN(path))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	var tables int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", QuestionsTable,
	).Scan(&tables)
	if err == nil && tables == 0 {
		err = ErrMissingTable
	}
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to validate snapshot: %w", err)
	}

	return &Handle{
		db:       db,
		path:     path,
		size:     int64(len(data)),
		loadedAt: time.Now(),
	}, nil
}

func readOnlyDSN(path string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: "mode=ro&immutable=1",
	}
	return u.String()
}

// Handle is a read-only, queryable snapshot. It is safe for concurrent use.
type Handle struct {
	db       *sql.DB
	path     string
	size     int64
	loadedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// QueryContext runs a read query against the snapshot.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.db.QueryContext(ctx, query, args...)
}

// Path returns the materialized snapshot file.
func (h *Handle) Path() string {
	return h.path
}

// Size returns the snapshot size in bytes.
func (h *Handle) Size() int64 {
	return h.size
}

// LoadedAt returns when the handle was constructed.
func (h *Handle) LoadedAt() time.Time {
	return h.loadedAt
}

// Close releases the connection pool and removes the backing file.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		err := h.db.Close()
		if rmErr := os.Remove(h.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
		h.closeErr = err
	})
	return h.closeErr
}
