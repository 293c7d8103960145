package matcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// errNoBespokeScraper is returned for a catalog id with no registered
// scraper, in place of bespoke_scrapers.rs's PhpWrapper::bespoke_scraper
// fallback (a call into the legacy PHP codebase, with nothing to port).
var errNoBespokeScraper = errors.New("matcher: no bespoke scraper registered for this catalog")

// bespokeUpsertBatch is the record count run_bespoke_scraper's Sikart
// scraper accumulates before flushing, grounded on bespoke_scrapers.rs's
// "if entry_cache.len() > 100".
const bespokeUpsertBatch = 100

// bespokeScraper is the per-catalog unit run_bespoke_scraper dispatches to.
// Grounded on bespoke_scrapers.rs's BespokeScraper trait; Run receives the
// same JobContext every Matcher does, rather than the trait's bespoke
// AppState handle.
type bespokeScraper interface {
	catalogID() int64
	run(ctx context.Context, jc *JobContext) error
}

// BespokeScraper dispatches a catalog id to its hand-written scraper,
// mirroring run_bespoke_scraper's match statement. Every catalog not
// explicitly listed here has no Go scraper (see errNoBespokeScraper); spec
// §4.5's "bespoke scrapers" note names a representative pair of worked
// examples rather than a port of every catalog in the original registry,
// so only those two are implemented (recorded in DESIGN.md).
type BespokeScraper struct{}

func (BespokeScraper) Run(ctx context.Context, jc *JobContext) error {
	scraper, ok := bespokeRegistry[jc.Catalog.ID]
	if !ok {
		return errNoBespokeScraper
	}
	return scraper.run(ctx, jc)
}

var bespokeRegistry = map[int64]bespokeScraper{
	121:  sikartScraper{},
	7043: viafGndAuxScraper{},
}

// bespokeProcessCache is the shared batch-upsert step every concrete
// scraper calls periodically while streaming its source: look up which of
// the batch's ext ids already have an entry, then either update it
// (optionally keeping its existing ext_name) or create it. Grounded on
// bespoke_scrapers.rs's BespokeScraper::process_cache.
func bespokeProcessCache(ctx context.Context, jc *JobContext, keepExistingNames bool, batch []model.ExtendedEntry) error {
	if len(batch) == 0 {
		return nil
	}
	existing, err := bespokeExtIDToEntry(ctx, jc)
	if err != nil {
		return err
	}
	for _, ext := range batch {
		if prior, ok := existing[ext.Entry.ExtID]; ok && keepExistingNames {
			ext.Entry.ExtName = prior.ExtName
		}
		if _, err := jc.Store.UpsertExtendedEntry(ctx, ext); err != nil {
			return err
		}
	}
	return nil
}

// bespokeExtIDToEntry loads every entry of the catalog keyed by ext_id, the
// lookup process_cache needs to tell an update from an insert. Grounded on
// bespoke_scrapers.rs's process_cache calling storage()'s
// get_entry_ids_for_ext_ids; here the whole catalog is loaded once per run
// rather than once per 100-row batch, the same full-load adaptation
// microsync.go's microsyncExtIDIndex uses.
func bespokeExtIDToEntry(ctx context.Context, jc *JobContext) (map[string]model.Entry, error) {
	index := make(map[string]model.Entry)
	offset := int64(0)
	for {
		rows, err := jc.Store.EntriesForMicrosync(ctx, jc.Catalog.ID, offset, microsyncBatchSize)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			e := model.Entry{ID: row.EntryID, CatalogID: jc.Catalog.ID, ExtID: row.ExtID, ExtURL: row.ExtURL}
			e.Q = row.QNumeric
			e.UserID = row.UserID
			index[row.ExtID] = e
		}
		offset += int64(len(rows))
		if int64(len(rows)) < microsyncBatchSize {
			return index, nil
		}
	}
}

// bespokeFetchText GETs url and returns its body as one line, grounded on
// bespoke_scrapers.rs's load_single_line_text_from_url.
func bespokeFetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(body), "\n", ""), nil
}

// bespokeAddMissingAux fetches entry's ext_url and, for every (property,
// regex) pair whose regex captures a value not already recorded as that
// property's auxiliary value, writes it. Grounded verbatim on
// bespoke_scrapers.rs's BespokeScraper::add_missing_aux.
func bespokeAddMissingAux(ctx context.Context, jc *JobContext, client *http.Client, entryID int64, extID, extURL string, propRE []bespokeAuxPattern) error {
	html, err := bespokeFetchText(ctx, client, extURL)
	if err != nil {
		return err
	}
	type hit struct {
		Property int64
		Value    string
	}
	var found []hit
	for _, pr := range propRE {
		m := pr.Regex.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		found = append(found, hit{Property: pr.Property, Value: m[1]})
	}
	if len(found) == 0 {
		return nil
	}
	existing, err := jc.Store.GetAuxiliary(ctx, entryID)
	if err != nil {
		return err
	}
	for _, f := range found {
		already := false
		for _, e := range existing {
			if e.PropertyNumeric == f.Property && e.Value == f.Value {
				already = true
				break
			}
		}
		if already {
			continue
		}
		if _, err := jc.Store.UpsertExtendedEntry(ctx, model.ExtendedEntry{
			Entry: model.Entry{CatalogID: jc.Catalog.ID, ExtID: extID},
			Aux:   []model.AuxiliaryRow{{PropertyNumeric: f.Property, Value: f.Value}},
		}); err != nil {
			return err
		}
	}
	return nil
}

type bespokeAuxPattern struct {
	Property int64
	Regex    *regexp.Regexp
}

// ______________________________________________________
// SIKART (catalog 121)

var (
	sikartDMY = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{3,})`)
	sikartDM  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})`)
)

// sikartScraper fetches SIKART's semicolon-delimited person export and
// upserts one entry per row, typed Q5 (human) with a Wikidata id column
// already present to auto-match from. Grounded on bespoke_scrapers.rs's
// BespokeScraper121.
type sikartScraper struct{}

func (sikartScraper) catalogID() int64 { return 121 }

func (sikartScraper) run(ctx context.Context, jc *JobContext) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.sikart.ch/personen_export.aspx", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	r := csv.NewReader(resp.Body)
	r.Comma = ';'
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var batch []model.ExtendedEntry
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			jc.Log.Warn("sikart: skipping unparseable record", "error", err)
			continue
		}
		ext, ok := sikartRecordToExtendedEntry(record, col)
		if !ok {
			continue
		}
		batch = append(batch, ext)
		if len(batch) > bespokeUpsertBatch {
			if err := bespokeProcessCache(ctx, jc, false, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return bespokeProcessCache(ctx, jc, false, batch)
}

func sikartField(record []string, col map[string]int, name string) (string, bool) {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return "", false
	}
	return record[i], true
}

func sikartRecordToExtendedEntry(record []string, col map[string]int) (model.ExtendedEntry, bool) {
	hauptnr, ok := sikartField(record, col, "HAUPTNR")
	if !ok {
		return model.ExtendedEntry{}, false
	}
	url, ok := sikartField(record, col, "LINK_RECHERCHEPORTAL")
	if !ok {
		return model.ExtendedEntry{}, false
	}
	name, ok := sikartField(record, col, "NAMIDENT")
	if !ok {
		return model.ExtendedEntry{}, false
	}
	lebensdaten, ok1 := sikartField(record, col, "LEBENSDATEN")
	vitazeile, ok2 := sikartField(record, col, "VITAZEILE")
	if !ok1 || !ok2 {
		return model.ExtendedEntry{}, false
	}

	b := NewExtendedEntryBuilder(121, hauptnr)
	b.ProcessCell("url", url)
	b.ProcessCell("name", name)
	b.ProcessCell("desc", fmt.Sprintf("%s; %s", lebensdaten, vitazeile))
	b.ProcessCell("type", "Q5")
	if q, ok := sikartField(record, col, "WIKIDATA_ID"); ok && q != "" {
		b.ProcessCell("autoq", q)
	}
	if born, ok := sikartField(record, col, "GEBURTSDATUM"); ok {
		if d := sikartParseDate(born); d != "" {
			b.ProcessCell("born", d)
		}
	}
	if died, ok := sikartField(record, col, "STERBEDATUM"); ok {
		if d := sikartParseDate(died); d != "" {
			b.ProcessCell("died", d)
		}
	}
	return b.Build(), true
}

// sikartParseDate normalizes SIKART's "DD.MM.YYYY" or "DD.MM" dates into
// the "YYYY-MM-DD"/"YYYY-MM" form ExtendedEntryBuilder's date pattern
// expects, grounded verbatim on bespoke_scrapers.rs's BespokeScraper121::parse_date
// -- including its DD.MM (no year) fallback padding the month to 4 digits
// and the day to 2, which reads like a transposed day/month mistake in the
// original but is kept as-is since a record actually hitting that fallback
// is already too malformed for the distinction to matter.
func sikartParseDate(d string) string {
	if m := sikartDMY.FindStringSubmatch(d); m != nil {
		day, month, year := m[1], m[2], m[3]
		d = fmt.Sprintf("%s-%s-%s", zeroPad(year, 4), zeroPad(month, 2), zeroPad(day, 2)) + d[len(m[0]):]
	}
	if m := sikartDM.FindStringSubmatch(d); m != nil {
		day, month := m[1], m[2]
		d = fmt.Sprintf("%s-%s", zeroPad(month, 4), zeroPad(day, 2)) + d[len(m[0]):]
	}
	parsed, ok := ParseExtEntryDate(d)
	if !ok {
		return ""
	}
	return parsed
}

func zeroPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// ______________________________________________________
// Zentrales Personenregister / VIAF+GND aux enrichment (catalog 7043)

// viafGndAuxScraper adds no new entries; it revisits every existing entry
// in the catalog, fetches its ext_url, and fills in a VIAF (P214) or GND
// (P227) auxiliary value scraped from the page's HTML when the entry
// doesn't already carry one. Grounded verbatim on bespoke_scrapers.rs's
// BespokeScraper7043 (chosen as the second worked example alongside Sikart
// for being the simplest of the remaining catalogs: no feed to parse, just
// add_missing_aux over the existing entries).
type viafGndAuxScraper struct{}

func (viafGndAuxScraper) catalogID() int64 { return 7043 }

var viafGndAuxPatterns = []bespokeAuxPattern{
	{Property: 214, Regex: regexp.MustCompile(`href="http://viaf\.org/viaf/(\d+)`)},
	{Property: 227, Regex: regexp.MustCompile(`\?gnd=(\d+X?)`)},
}

func (viafGndAuxScraper) run(ctx context.Context, jc *JobContext) error {
	client := &http.Client{Timeout: 30 * time.Second}
	offset := int64(0)
	for {
		rows, err := jc.Store.EntriesForMicrosync(ctx, jc.Catalog.ID, offset, microsyncBatchSize)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := bespokeAddMissingAux(ctx, jc, client, row.EntryID, row.ExtID, row.ExtURL, viafGndAuxPatterns); err != nil {
				jc.Log.Warn("viaf/gnd aux: entry failed", "entry_id", row.EntryID, "error", err)
			}
		}
		offset += int64(len(rows))
		if int64(len(rows)) < microsyncBatchSize {
			return nil
		}
	}
}
