package mysql

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// EntriesForAutomatchBySearch grounds on storage_mysql.rs's
// automatch_by_search_get_results: candidate rows are every not-fully-matched
// entry in the catalog, with its aliases folded into one pipe-joined column
// so the matcher can try each alias as a search string without a second
// round trip.
func (s *Store) EntriesForAutomatchBySearch(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.AutomatchSearchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_name`,`type`,"+
			"IFNULL((SELECT group_concat(DISTINCT `label` SEPARATOR '|') FROM aliases WHERE entry_id=entry.id),'') AS aliases "+
			"FROM `entry` WHERE `catalog`=?"+model.NotFullyMatched().SQLFragment()+
			" LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for automatch by search", err)
	}
	defer rows.Close()
	var out []storage.AutomatchSearchRow
	for rows.Next() {
		var r storage.AutomatchSearchRow
		if err := rows.Scan(&r.EntryID, &r.ExtName, &r.Type, &r.Aliases); err != nil {
			return nil, wrap("entries for automatch by search: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for automatch by search: rows", rows.Err())
}

// EntriesForAutomatchBySitelink grounds on automatch_by_sitelink_get_entries:
// unmatched entries not previously rejected by a human removal (the
// log.action='remove_q' exclusion).
func (s *Store) EntriesForAutomatchBySitelink(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.AutomatchSitelinkRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_name` FROM `entry` WHERE `catalog`=? AND `q` IS NULL "+
			"AND NOT EXISTS (SELECT 1 FROM `log` WHERE `log`.`entry_id`=`entry`.`id` AND `log`.`action`='remove_q')"+
			model.NotFullyMatched().SQLFragment()+
			" ORDER BY `id` LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for automatch by sitelink", err)
	}
	defer rows.Close()
	var out []storage.AutomatchSitelinkRow
	for rows.Next() {
		var r storage.AutomatchSitelinkRow
		if err := rows.Scan(&r.EntryID, &r.ExtName); err != nil {
			return nil, wrap("entries for automatch by sitelink: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for automatch by sitelink: rows", rows.Err())
}

// EntriesForAutomatchFromOtherCatalogs returns the candidate set for the
// cross-catalog automatcher: not-fully-matched entries of this catalog that
// share (ext_name, type) with entries in OTHER catalogs that converge on
// exactly one confirmed item.
func (s *Store) EntriesForAutomatchFromOtherCatalogs(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.OtherCatalogMatchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT e1.`id`, "+
			"(SELECT MIN(e2.`q`) FROM `entry` e2 WHERE e2.`catalog`!=e1.`catalog` AND e2.`ext_name`=e1.`ext_name` "+
			"AND e2.`type`=e1.`type` AND e2.`q` IS NOT NULL AND e2.`q`>0 AND e2.`user`>0 "+
			"GROUP BY e2.`ext_name`,e2.`type` HAVING COUNT(DISTINCT e2.`q`)=1) AS matched_q "+
			"FROM `entry` e1 WHERE e1.`catalog`=?"+model.NotFullyMatched().SQLFragment()+
			" LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for automatch from other catalogs", err)
	}
	defer rows.Close()
	var out []storage.OtherCatalogMatchRow
	for rows.Next() {
		var r storage.OtherCatalogMatchRow
		var matchedQ sql.NullInt64
		if err := rows.Scan(&r.EntryID, &matchedQ); err != nil {
			return nil, wrap("entries for automatch from other catalogs: scan", err)
		}
		if !matchedQ.Valid {
			continue
		}
		r.MatchedQ = matchedQ.Int64
		out = append(out, r)
	}
	return out, wrap("entries for automatch from other catalogs: rows", rows.Err())
}

// EntriesForTaxonMatcher grounds on match_taxa_get_ranked_names_batch: the
// name column is ext_name except for the description-as-name catalogs
// (spec §4.5.4), selected by the caller via nameColumn.
func (s *Store) EntriesForTaxonMatcher(ctx context.Context, catalogID int64, ranks []string, nameColumn string, offset, batchSize int64) ([]storage.TaxonRow, error) {
	placeholders := placeholderList(len(ranks))
	args := make([]any, 0, len(ranks)+3)
	args = append(args, catalogID)
	for _, r := range ranks {
		args = append(args, r)
	}
	args = append(args, batchSize, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`"+nameColumn+"` AS taxon_name,`type` FROM `entry` WHERE `catalog`=?"+
			model.NotFullyMatched().SQLFragment()+
			" AND `type` IN ("+placeholders+") LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, wrap("entries for taxon matcher", err)
	}
	defer rows.Close()
	var out []storage.TaxonRow
	for rows.Next() {
		var r storage.TaxonRow
		if err := rows.Scan(&r.EntryID, &r.TaxonName, &r.TypeName); err != nil {
			return nil, wrap("entries for taxon matcher: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for taxon matcher: rows", rows.Err())
}

// EntriesForCoordinateMatcher grounds on coordinate_matcher_main_query_sql's
// single-catalog branch (the reservoir-sampling cross-catalog branch is out
// of scope for a per-catalog batch job).
func (s *Store) EntriesForCoordinateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.CoordinateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_name`,`type`,`lat`,`lon` FROM `vw_location` WHERE `ext_name`!='' AND `catalog`=?"+
			model.NotFullyMatched().SQLFragment()+
			" LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for coordinate matcher", err)
	}
	defer rows.Close()
	var out []storage.CoordinateRow
	for rows.Next() {
		var r storage.CoordinateRow
		var typeName sql.NullString
		if err := rows.Scan(&r.EntryID, &r.ExtName, &typeName, &r.Lat, &r.Lon); err != nil {
			return nil, wrap("entries for coordinate matcher: scan", err)
		}
		r.Type = typeName.String
		out = append(out, r)
	}
	return out, wrap("entries for coordinate matcher: rows", rows.Err())
}

// EntriesForPersonDateMatcher grounds on match_person_by_dates_get_results:
// not-fully-matched entries with both a birth and death date recorded.
func (s *Store) EntriesForPersonDateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.PersonDateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `entry`.`id`,`entry`.`ext_name`,`born`,`died` FROM (`entry` JOIN `person_dates`) "+
			"WHERE `person_dates`.`entry_id`=`entry`.`id` AND `catalog`=? AND (`q` IS NULL OR `user`=0) "+
			"AND `born`!='' AND `died`!='' LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for person date matcher", err)
	}
	defer rows.Close()
	var out []storage.PersonDateRow
	for rows.Next() {
		var r storage.PersonDateRow
		if err := rows.Scan(&r.EntryID, &r.ExtName, &r.Born, &r.Died); err != nil {
			return nil, wrap("entries for person date matcher: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for person date matcher: rows", rows.Err())
}

// EntriesForSingleDateMatcher grounds on storage_mysql.rs's
// match_person_by_single_date_get_results row shape; entries with exactly
// one of born/died recorded, for the single-date matcher (spec §6.1
// match_on_birthdate).
func (s *Store) EntriesForSingleDateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.PersonDateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `entry`.`id`,`entry`.`ext_name`,`born`,`died` FROM (`entry` JOIN `person_dates`) "+
			"WHERE `person_dates`.`entry_id`=`entry`.`id` AND `catalog`=? AND (`q` IS NULL OR `user`=0) "+
			"AND ((`born`!='' AND `died`='') OR (`born`='' AND `died`!='')) LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for single date matcher", err)
	}
	defer rows.Close()
	var out []storage.PersonDateRow
	for rows.Next() {
		var r storage.PersonDateRow
		if err := rows.Scan(&r.EntryID, &r.ExtName, &r.Born, &r.Died); err != nil {
			return nil, wrap("entries for single date matcher: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for single date matcher: rows", rows.Err())
}

// EntriesForAutomatchSimple grounds on storage_mysql.rs's
// automatch_simple_get_results, whose row shape is identical to
// automatch_by_search_get_results.
func (s *Store) EntriesForAutomatchSimple(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.AutomatchSearchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_name`,`type`,"+
			"IFNULL((SELECT group_concat(DISTINCT `label` SEPARATOR '|') FROM aliases WHERE entry_id=entry.id),'') AS aliases "+
			"FROM `entry` WHERE `catalog`=?"+model.NotFullyMatched().SQLFragment()+
			" LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for automatch simple", err)
	}
	defer rows.Close()
	var out []storage.AutomatchSearchRow
	for rows.Next() {
		var r storage.AutomatchSearchRow
		if err := rows.Scan(&r.EntryID, &r.ExtName, &r.Type, &r.Aliases); err != nil {
			return nil, wrap("entries for automatch simple: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for automatch simple: rows", rows.Err())
}

// EntriesForMicrosync returns every entry of catalogID, matched or not, so
// microsync can build an ext_id->entry lookup map to diff against Wikidata
// values (spec §4.5.8). Grounded on microsync.rs's get_entries_for_ext_ids,
// adapted from per-chunk "WHERE ext_id IN (...)" lookups keyed off SPARQL
// results to one paginated full-catalog load, since building the map once
// in Go is cheaper than one SQL round trip per SPARQL chunk.
func (s *Store) EntriesForMicrosync(ctx context.Context, catalogID int64, offset, batchSize int64) ([]storage.MicrosyncRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_id`,`ext_url`,`q`,`user` FROM `entry` WHERE `catalog`=? LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("entries for microsync", err)
	}
	defer rows.Close()
	var out []storage.MicrosyncRow
	for rows.Next() {
		var r storage.MicrosyncRow
		if err := rows.Scan(&r.EntryID, &r.ExtID, &r.ExtURL, &r.QNumeric, &r.UserID); err != nil {
			return nil, wrap("entries for microsync: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("entries for microsync: rows", rows.Err())
}

// extIDListSeparator joins GROUP_CONCAT'd ext_ids in MultipleQInCatalog.
// Grounded on microsync.rs's EXT_URL_UNIQUE_SEPARATOR, a string unlikely to
// appear inside a real external id; using the ASCII unit separator here
// instead of the original's literal "!@£$%^&|" since that string is not
// actually guaranteed absent from arbitrary catalog data either.
const extIDListSeparator = "\x1f"

// MultipleQInCatalog grounds on microsync.rs's get_multiple_q_in_mnm.
func (s *Store) MultipleQInCatalog(ctx context.Context, catalogID int64) ([]storage.MultipleQInCatalogRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `q`,GROUP_CONCAT(`id`),GROUP_CONCAT(`ext_id` SEPARATOR '"+extIDListSeparator+"') FROM `entry` "+
			"WHERE `catalog`=? AND `q` IS NOT NULL AND `q`>0 AND `user`>0 "+
			"GROUP BY `q` HAVING COUNT(`id`)>1 ORDER BY `q`",
		catalogID)
	if err != nil {
		return nil, wrap("multiple q in catalog", err)
	}
	defer rows.Close()
	var out []storage.MultipleQInCatalogRow
	for rows.Next() {
		var r storage.MultipleQInCatalogRow
		var idList, extIDList string
		if err := rows.Scan(&r.QNumeric, &idList, &extIDList); err != nil {
			return nil, wrap("multiple q in catalog: scan", err)
		}
		r.EntryIDs = splitInt64List(idList, ",")
		r.ExtIDs = strings.Split(extIDList, extIDListSeparator)
		out = append(out, r)
	}
	return out, wrap("multiple q in catalog: rows", rows.Err())
}

// EntryNames grounds on microsync.rs's load_entry_names.
func (s *Store) EntryNames(ctx context.Context, entryIDs []int64) (map[int64]string, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT `id`,`ext_name` FROM `entry` WHERE `id` IN ("+placeholderList(len(entryIDs))+")", args...)
	if err != nil {
		return nil, wrap("entry names", err)
	}
	defer rows.Close()
	out := make(map[int64]string, len(entryIDs))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, wrap("entry names: scan", err)
		}
		out[id] = name
	}
	return out, wrap("entry names: rows", rows.Err())
}

// splitInt64List parses a GROUP_CONCAT'd list of integers, dropping any
// segment that fails to parse.
func splitInt64List(s, sep string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *Store) AuxiliaryRowsForCatalog(ctx context.Context, catalogID int64, propertyNumeric int64, offset, batchSize int64) ([]model.AuxiliaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT `auxiliary`.`id`,`aux_p`,`aux_name`,`in_wikidata`,`entry_is_matched` FROM `auxiliary` "+
			"JOIN `entry` ON `entry`.`id`=`auxiliary`.`entry_id` "+
			"WHERE `entry`.`catalog`=? AND `aux_p`=? LIMIT ? OFFSET ?",
		catalogID, propertyNumeric, batchSize, offset)
	if err != nil {
		return nil, wrap("auxiliary rows for catalog", err)
	}
	defer rows.Close()
	var out []model.AuxiliaryRow
	for rows.Next() {
		var r model.AuxiliaryRow
		if err := rows.Scan(&r.RowID, &r.PropertyNumeric, &r.Value, &r.InKB, &r.EntryIsMatched); err != nil {
			return nil, wrap("auxiliary rows for catalog: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("auxiliary rows for catalog: rows", rows.Err())
}

// AuxiliaryRowsForMatching grounds on auxiliary_matcher.rs's
// match_via_auxiliary SQL: not-fully-matched entries with an
// auxiliary row on one of the caller's whitelisted external-id properties
// that the KB side has not yet confirmed.
func (s *Store) AuxiliaryRowsForMatching(ctx context.Context, catalogID int64, properties []int64, offset, batchSize int64) ([]storage.AuxiliaryMatchRow, error) {
	placeholders := placeholderList(len(properties))
	args := make([]any, 0, len(properties)+3)
	args = append(args, catalogID)
	for _, p := range properties {
		args = append(args, p)
	}
	args = append(args, batchSize, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT `auxiliary`.`id`,`entry`.`id`,`aux_p`,`aux_name` FROM `entry`,`auxiliary` "+
			"WHERE `entry_id`=`entry`.`id` AND `catalog`=?"+model.NotFullyMatched().SQLFragment()+
			" AND `in_wikidata`=0 AND `aux_p` IN ("+placeholders+")"+
			" ORDER BY `auxiliary`.`id` LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, wrap("auxiliary rows for matching", err)
	}
	defer rows.Close()
	var out []storage.AuxiliaryMatchRow
	for rows.Next() {
		var r storage.AuxiliaryMatchRow
		if err := rows.Scan(&r.RowID, &r.EntryID, &r.PropertyNumeric, &r.Value); err != nil {
			return nil, wrap("auxiliary rows for matching: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("auxiliary rows for matching: rows", rows.Err())
}

// AuxiliaryRowsForWrite grounds on auxiliary_matcher.rs's
// add_auxiliary_to_wikidata SQL: fully-matched entries with an auxiliary
// row on a non-blacklisted property the KB side has not yet confirmed.
func (s *Store) AuxiliaryRowsForWrite(ctx context.Context, catalogID int64, excludeProperties []int64, offset, batchSize int64) ([]storage.AuxiliaryWriteRow, error) {
	placeholders := placeholderList(len(excludeProperties))
	args := make([]any, 0, len(excludeProperties)+3)
	args = append(args, catalogID)
	for _, p := range excludeProperties {
		args = append(args, p)
	}
	args = append(args, batchSize, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT `auxiliary`.`id`,`entry`.`id`,`entry`.`q`,`aux_p`,`aux_name` FROM `entry`,`auxiliary` "+
			"WHERE `entry_id`=`entry`.`id` AND `catalog`=?"+model.FullyMatchedState().SQLFragment()+
			" AND `in_wikidata`=0 AND `aux_p` NOT IN ("+placeholders+")"+
			" ORDER BY `auxiliary`.`id` LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, wrap("auxiliary rows for write", err)
	}
	defer rows.Close()
	var out []storage.AuxiliaryWriteRow
	for rows.Next() {
		var r storage.AuxiliaryWriteRow
		if err := rows.Scan(&r.RowID, &r.EntryID, &r.QNumeric, &r.PropertyNumeric, &r.Value); err != nil {
			return nil, wrap("auxiliary rows for write: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("auxiliary rows for write: rows", rows.Err())
}

func placeholderList(n int) string {
	if n == 0 {
		return "NULL"
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
