package autoscrape

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var simpleSpaceRE = regexp.MustCompile(`\s+`)

// regexReplacement is one (pattern, replacement) pair applied in order
// after template substitution. Grounded on AutoscrapeResolve's regexs
// field; replacement uses Go's regexp $1-style syntax, same as Rust's
// regex crate.
type regexReplacement struct {
	Regex       *regexp.Regexp
	Replacement string
}

// Resolve builds one output string (an entry's ext_id, ext_name, …) from a
// "$1"/"$2"/… capture-group template plus an ordered list of regex
// substitutions, finished off by HTML-entity decoding, tag stripping and
// whitespace collapsing. Grounded on AutoscrapeResolve::replace_vars.
type Resolve struct {
	UsePattern string
	Regexs     []regexReplacement
}

// ReplaceVars substitutes every key in vars into UsePattern, applies each
// configured regex replacement in order, then normalizes the result as
// plain text.
func (r Resolve) ReplaceVars(vars map[string]string) string {
	ret := r.UsePattern
	for key, value := range vars {
		ret = strings.ReplaceAll(ret, key, value)
	}
	for _, rr := range r.Regexs {
		ret = rr.Regex.ReplaceAllString(ret, rr.Replacement)
	}
	return fixHTML(ret)
}

// fixHTML decodes HTML entities, strips tags and collapses whitespace,
// grounded on AutoscrapeResolve::fix_html. Tag-stripping and entity
// decoding both fall out of tokenizing with golang.org/x/net/html: a
// TextToken's Text() is already entity-decoded, so concatenating text
// tokens and dropping every tag token does both jobs in one pass.
func fixHTML(s string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(z.Text())
		} else {
			sb.WriteByte(' ')
		}
	}
	return strings.TrimSpace(simpleSpaceRE.ReplaceAllString(sb.String(), " "))
}

// ResolveAux resolves one (property, id-template) pair into an auxiliary
// value. Grounded on AutoscrapeResolveAux.
type ResolveAux struct {
	Property int64
	ID       string
}

// ReplaceVars substitutes vars into ID and normalizes the result the same
// way Resolve does, returning the property number and resolved value.
func (a ResolveAux) ReplaceVars(vars map[string]string) (int64, string) {
	ret := a.ID
	for key, value := range vars {
		ret = strings.ReplaceAll(ret, key, value)
	}
	return a.Property, fixHTML(ret)
}

// parsePropertyNumber turns "P123" (or "123") into 123.
func parsePropertyNumber(s string) (int64, bool) {
	s = strings.TrimPrefix(s, "P")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
