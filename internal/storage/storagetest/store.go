// Package storagetest implements storage.Storage against an in-process
// SQLite database, for package tests across internal/matcher,
// internal/jobqueue and internal/wdrc that need a real Storage without a
// MySQL server. Grounded on the teacher repo's
// internal/storage/sqlite/test_helpers.go pattern: one private in-memory
// database per test, schema applied fresh on each New call.
package storagetest

import (
	"context"
	_ "embed"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed storage.Storage used only by tests.
type Store struct {
	db *sql.DB
}

// New opens a fresh, private in-memory SQLite database and applies the
// schema. Each call returns an independent database, so parallel tests
// never interfere.
func New(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=private")
	if err != nil {
		return nil, fmt.Errorf("open test db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func wrap(op string, err error) error { return storage.WrapDBError(op, err) }

var _ storage.Storage = (*Store)(nil)

// InsertCatalog is a test fixture helper, not part of storage.Storage.
func (s *Store) InsertCatalog(ctx context.Context, c model.Catalog) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO catalog (name,url,desc,type_name,wd_prop,wd_qual,search_wp,active,owner,note,source_item,has_person_date,taxon_run) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		c.Name, c.URL, c.Description, c.TypeName, c.WDProp, c.WDQual, c.SearchLanguage, c.Active, c.OwnerUserID, c.Note, c.SourceItem, c.HasPersonDate, c.TaxonRun)
	if err != nil {
		return 0, fmt.Errorf("insert catalog fixture: %w", err)
	}
	return res.LastInsertId()
}
