package db

import (
	"database/sql"
	"errors"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB handles all database operations with a shared connection pool.
type DB struct {
	db *sql.DB
}

// NewDB opens the SQLite database at path with WAL mode and foreign key
// enforcement enabled. The schema must already be migrated.
func NewDB(path string) (*DB, error) {
	db, err := connection(path)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Keyset is a decoded pagination bound: only rows strictly less than it
// under the (indexed_at DESC, cid DESC) ordering are returned.
type Keyset struct {
	IndexedAt time.Time
	Cid       string
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure, detected by the driver's structured error code rather than by
// message matching.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
