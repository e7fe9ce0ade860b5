package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"tunesync/internal/shared"
)

// SQLiteStore implements [Store] over a database/sql connection opened with
// the sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore with the given database connection.
// The caller is responsible for running migrations first.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// DB exposes the underlying connection for lifecycle management.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullTime converts an optional timestamp for scanning into a *time.Time.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// timeArg converts a *time.Time into a driver-friendly argument.
func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// nullStr converts an optional string column into its value form.
func nullStr(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}

// strArg stores empty strings as NULL for optional columns.
func strArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func wrapNotFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", shared.ErrNotFound, what)
	}
	return err
}
