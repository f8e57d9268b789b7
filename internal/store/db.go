// Package store is the relational persistence layer (spec §4.1): a typed
// handle over a single SQLite database providing begin_tx/read/write/health/
// migrate, with single-writer/many-reader concurrency enforced by a
// process-wide write mutex (ground: internal/project/locks.go's per-key
// sync.Map of *sync.RWMutex, generalized here to one mutex guarding the
// write connection, since spec §5 calls for a single Store-wide writer
// rather than per-project serialization).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dicklesworthstone/agentmail/internal/logger"
)

// DB wraps the two connection handles (write-serialized, read-pooled) plus
// the mutex that makes the write handle effectively single-writer even
// though database/sql itself pools connections.
type DB struct {
	write   *sql.DB
	read    *sql.DB
	writeMu sync.Mutex
	path    string
}

// Open opens (creating if absent) the SQLite database at path, runs
// migrations, and returns a ready DB handle. path is typically derived from
// DATABASE_URL (see internal/config).
func Open(path string) (*DB, error) {
	write, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening write handle: %v", ErrUnavailable, err)
	}
	write.SetMaxOpenConns(1) // single writer discipline enforced at the driver level too

	read, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&mode=ro")
	if err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("%w: opening read handle: %v", ErrUnavailable, err)
	}
	read.SetMaxOpenConns(4)

	db := &DB{write: write, read: read, path: path}

	if err := runMigrations(write); err != nil {
		_ = write.Close()
		_ = read.Close()
		return nil, err
	}

	logger.Printf("store: opened %s", path)
	return db, nil
}

// OpenMemory opens an in-memory database, for tests; it shares a single
// connection across both handles since :memory: databases are
// connection-scoped in SQLite.
func OpenMemory() (*DB, error) {
	write, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	write.SetMaxOpenConns(1)
	if err := runMigrations(write); err != nil {
		_ = write.Close()
		return nil, err
	}
	return &DB{write: write, read: write, path: ":memory:"}, nil
}

// Close releases both connection handles.
func (db *DB) Close() error {
	readErr := db.read.Close()
	if db.read != db.write {
		writeErr := db.write.Close()
		if writeErr != nil {
			return writeErr
		}
	}
	return readErr
}

// Path reports the backing file path ("" or ":memory:" for in-memory databases).
func (db *DB) Path() string {
	return db.path
}

// Health verifies both handles are responsive; used by the HTTP /ready
// endpoint and by `am doctor check`.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.write.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.read.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Write runs fn under the process-wide write mutex against the write
// handle. fn must not block on external I/O (spec §5: "no handler may hold
// the write mutex across an external wait").
func (db *DB) Write(ctx context.Context, fn func(*sql.Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return translateSQLiteErr(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Read runs fn against the read handle, outside the write mutex. fn may run
// concurrently with other Read calls and with at most one Write call.
func (db *DB) Read(ctx context.Context, fn func(*sql.DB) error) error {
	if err := fn(db.read); err != nil {
		return translateSQLiteErr(err)
	}
	return nil
}

// ReadConn exposes the underlying read pool directly for components (views,
// mail search) that build ad-hoc queries; it never takes the write mutex.
func (db *DB) ReadConn() *sql.DB {
	return db.read
}

func translateSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	msg := err.Error()
	if containsAny(msg, "UNIQUE constraint", "CHECK constraint", "NOT NULL constraint", "FOREIGN KEY constraint") {
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}
	if containsAny(msg, "database is locked", "busy") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
