// Package mysql implements storage.Storage against a MySQL database,
// grounded on original_source/src/storage_mysql.rs (the reference SQL) and
// the teacher repo's internal/storage/sqlite package (connection handling,
// conditional-UPDATE idiom, wrapDBError-style error context).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// Store is a MySQL-backed storage.Storage.
type Store struct {
	db *sql.DB
}

// Open connects to MySQL using dsn (a go-sql-driver/mysql DSN, typically
// built by config.MySQLDSN) and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(time.Hour)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB (used by storagetest with a
// non-MySQL driver registered under the same interface).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func wrap(op string, err error) error { return storage.WrapDBError(op, err) }
