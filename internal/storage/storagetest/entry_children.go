package storagetest

import (
	"context"
	"database/sql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

func (s *Store) GetAuxiliary(ctx context.Context, entryID int64) ([]model.AuxiliaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id,aux_p,aux_name,in_wikidata,entry_is_matched FROM auxiliary WHERE entry_id=?", entryID)
	if err != nil {
		return nil, wrap("get auxiliary", err)
	}
	defer rows.Close()
	var out []model.AuxiliaryRow
	for rows.Next() {
		var r model.AuxiliaryRow
		if err := rows.Scan(&r.RowID, &r.PropertyNumeric, &r.Value, &r.InKB, &r.EntryIsMatched); err != nil {
			return nil, wrap("get auxiliary: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("get auxiliary: rows", rows.Err())
}

func (s *Store) SetAuxiliaryInKB(ctx context.Context, rowID int64, inKB bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE auxiliary SET in_wikidata=? WHERE id=? AND in_wikidata!=?", inKB, rowID, inKB)
	return wrap("set auxiliary in kb", err)
}

func (s *Store) GetPersonDates(ctx context.Context, entryID int64) (*model.PersonDates, error) {
	var d model.PersonDates
	err := s.db.QueryRowContext(ctx, "SELECT born,died,is_matched FROM person_dates WHERE entry_id=? LIMIT 1", entryID).
		Scan(&d.Born, &d.Died, &d.IsMatched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get person dates", err)
	}
	return &d, nil
}

func (s *Store) SetPersonDates(ctx context.Context, entryID int64, dates model.PersonDates) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO person_dates (entry_id,born,died) VALUES (?,?,?) "+
			"ON CONFLICT(entry_id) DO UPDATE SET born=excluded.born,died=excluded.died",
		entryID, dates.Born, dates.Died)
	return wrap("set person dates", err)
}

func (s *Store) GetCoordinateLocation(ctx context.Context, entryID int64) (*model.CoordinateLocation, error) {
	var loc model.CoordinateLocation
	err := s.db.QueryRowContext(ctx, "SELECT lat,lon FROM location WHERE entry_id=? LIMIT 1", entryID).
		Scan(&loc.Lat, &loc.Lon)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get coordinate location", err)
	}
	return &loc, nil
}

func (s *Store) SetCoordinateLocation(ctx context.Context, entryID int64, loc model.CoordinateLocation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO location (entry_id,lat,lon) VALUES (?,?,?) "+
			"ON CONFLICT(entry_id) DO UPDATE SET lat=excluded.lat,lon=excluded.lon",
		entryID, loc.Lat, loc.Lon)
	return wrap("set coordinate location", err)
}

func (s *Store) GetAliases(ctx context.Context, entryID int64) ([]model.Alias, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT language,label FROM aliases WHERE entry_id=?", entryID)
	if err != nil {
		return nil, wrap("get aliases", err)
	}
	defer rows.Close()
	var out []model.Alias
	for rows.Next() {
		var a model.Alias
		if err := rows.Scan(&a.Language, &a.Label); err != nil {
			return nil, wrap("get aliases: scan", err)
		}
		out = append(out, a)
	}
	return out, wrap("get aliases: rows", rows.Err())
}

func (s *Store) AddAlias(ctx context.Context, entryID int64, a model.Alias) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO aliases (entry_id,language,label) VALUES (?,?,?)", entryID, a.Language, a.Label)
	return wrap("add alias", err)
}

func (s *Store) GetDescriptions(ctx context.Context, entryID int64) ([]model.Description, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT language,label FROM descriptions WHERE entry_id=?", entryID)
	if err != nil {
		return nil, wrap("get descriptions", err)
	}
	defer rows.Close()
	var out []model.Description
	for rows.Next() {
		var d model.Description
		if err := rows.Scan(&d.Language, &d.Text); err != nil {
			return nil, wrap("get descriptions: scan", err)
		}
		out = append(out, d)
	}
	return out, wrap("get descriptions: rows", rows.Err())
}

func (s *Store) SetDescription(ctx context.Context, entryID int64, d model.Description) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO descriptions (entry_id,language,label) VALUES (?,?,?) "+
			"ON CONFLICT(entry_id,language) DO UPDATE SET label=excluded.label",
		entryID, d.Language, d.Text)
	return wrap("set description", err)
}

func (s *Store) UpsertExtendedEntry(ctx context.Context, ext model.ExtendedEntry) (int64, error) {
	existing, err := s.GetEntryByExtID(ctx, ext.Entry.CatalogID, ext.Entry.ExtID)
	var entryID int64
	if err != nil && !storage.IsNotFound(err) {
		return 0, err
	}
	if existing != nil {
		entryID = existing.ID
		// Only overwrite basic fields the scraped record actually carries;
		// see mysql's UpsertExtendedEntry for the grounding note.
		if _, err := s.db.ExecContext(ctx,
			"UPDATE entry SET "+
				"ext_url=COALESCE(NULLIF(?,''),ext_url),"+
				"ext_name=COALESCE(NULLIF(?,''),ext_name),"+
				"ext_desc=COALESCE(NULLIF(?,''),ext_desc),"+
				"type=COALESCE(?,type) WHERE id=?",
			ext.Entry.ExtURL, ext.Entry.ExtName, ext.Entry.ExtDesc, ext.Entry.Type, entryID); err != nil {
			return 0, wrap("upsert extended entry: update", err)
		}
	} else {
		entryID, err = s.CreateEntry(ctx, &ext.Entry)
		if err != nil {
			return 0, err
		}
	}

	for _, a := range ext.Aliases {
		if err := s.AddAlias(ctx, entryID, a); err != nil {
			return 0, err
		}
	}
	for _, d := range ext.Descriptions {
		if err := s.SetDescription(ctx, entryID, d); err != nil {
			return 0, err
		}
	}
	for _, aux := range ext.Aux {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO auxiliary (entry_id,aux_p,aux_name) VALUES (?,?,?) "+
				"ON CONFLICT(entry_id,aux_p) DO UPDATE SET aux_name=excluded.aux_name",
			entryID, aux.PropertyNumeric, aux.Value); err != nil {
			return 0, wrap("upsert extended entry: auxiliary", err)
		}
	}
	if ext.Dates != nil {
		if err := s.SetPersonDates(ctx, entryID, *ext.Dates); err != nil {
			return 0, err
		}
	}
	if ext.Location != nil {
		if err := s.SetCoordinateLocation(ctx, entryID, *ext.Location); err != nil {
			return 0, err
		}
	}
	return entryID, nil
}
