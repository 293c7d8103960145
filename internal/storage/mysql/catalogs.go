package mysql

import (
	"context"
	"database/sql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

const catalogSelectColumns = "`id`,`name`,`url`,`desc`,`type_name`,`wd_prop`,`wd_qual`,`search_wp`,`active`,`owner`,`note`,`source_item`,`has_person_date`,`taxon_run`"

func scanCatalog(row interface {
	Scan(dest ...any) error
}) (*model.Catalog, error) {
	var c model.Catalog
	var name, url sql.NullString
	var wdProp, wdQual, sourceItem sql.NullInt64
	if err := row.Scan(&c.ID, &name, &url, &c.Description, &c.TypeName, &wdProp, &wdQual,
		&c.SearchLanguage, &c.Active, &c.OwnerUserID, &c.Note, &sourceItem, &c.HasPersonDate, &c.TaxonRun); err != nil {
		return nil, err
	}
	if name.Valid {
		v := name.String
		c.Name = &v
	}
	if url.Valid {
		v := url.String
		c.URL = &v
	}
	if wdProp.Valid {
		v := wdProp.Int64
		c.WDProp = &v
	}
	if wdQual.Valid {
		v := wdQual.Int64
		c.WDQual = &v
	}
	if sourceItem.Valid {
		v := sourceItem.Int64
		c.SourceItem = &v
	}
	return &c, nil
}

func (s *Store) GetCatalog(ctx context.Context, catalogID int64) (*model.Catalog, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+catalogSelectColumns+" FROM `catalog` WHERE `id`=?", catalogID)
	c, err := scanCatalog(row)
	if err != nil {
		return nil, wrap("get catalog", err)
	}
	return c, nil
}

func (s *Store) ListActiveCatalogs(ctx context.Context) ([]model.Catalog, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+catalogSelectColumns+" FROM `catalog` WHERE `active`=1")
	if err != nil {
		return nil, wrap("list active catalogs", err)
	}
	defer rows.Close()
	var out []model.Catalog
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, wrap("list active catalogs: scan", err)
		}
		out = append(out, *c)
	}
	return out, wrap("list active catalogs: rows", rows.Err())
}

// RandomActiveCatalogIDWithProperty grounds on storage_mysql.rs's
// get_random_active_catalog_id_with_property.
func (s *Store) RandomActiveCatalogIDWithProperty(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT `id` FROM `catalog` WHERE `active`=1 AND `wd_prop` IS NOT NULL AND `wd_qual` IS NULL ORDER BY RAND() LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap("random active catalog id with property", err)
	}
	return id, true, nil
}

// SetCatalogTaxonRun flips taxon_run from false to true, matching
// storage_mysql.rs's set_catalog_taxon_run conditional UPDATE so a second
// call after the flag is already set is a harmless no-op.
func (s *Store) SetCatalogTaxonRun(ctx context.Context, catalogID int64, taxonRun bool) error {
	want := 0
	have := 0
	if taxonRun {
		want = 1
	} else {
		have = 1
	}
	_, err := s.db.ExecContext(ctx, "UPDATE `catalog` SET `taxon_run`=? WHERE `id`=? AND `taxon_run`=?", want, catalogID, have)
	return wrap("set catalog taxon run", err)
}
