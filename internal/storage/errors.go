// Package storage defines the persistence boundary between the matcher
// engine and the backing SQL database: one Storage interface, implemented
// against MySQL (internal/storage/mysql) for production and against SQLite
// (internal/storage/storagetest) for fast package tests.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by every Storage implementation.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a row changed concurrently between read and
	// write (a conditional UPDATE affected zero rows).
	ErrConflict = errors.New("conflict")

	// ErrInvalidItem indicates a caller-supplied item id string did not
	// parse as "Q<digits>".
	ErrInvalidItem = errors.New("invalid item id")
)

// WrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound so callers can use errors.Is uniformly
// across backends.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
