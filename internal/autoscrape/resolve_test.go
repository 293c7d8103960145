package autoscrape

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveReplaceVars(t *testing.T) {
	r := Resolve{UsePattern: "$1 born $2"}
	got := r.ReplaceVars(map[string]string{"$1": "Hans Muster", "$2": "1900"})
	require.Equal(t, "Hans Muster born 1900", got)
}

func TestResolveAppliesRegexAfterTemplate(t *testing.T) {
	r := Resolve{
		UsePattern: "$1",
		Regexs: []regexReplacement{
			{Regex: regexp.MustCompile(`\s+von\s+`), Replacement: " "},
		},
	}
	got := r.ReplaceVars(map[string]string{"$1": "Hans von Muster"})
	require.Equal(t, "Hans Muster", got)
}

func TestResolveStripsTagsAndDecodesEntities(t *testing.T) {
	r := Resolve{UsePattern: "$1"}
	got := r.ReplaceVars(map[string]string{"$1": "<b>Caf&eacute;</b>  au   lait"})
	require.Equal(t, "Café au lait", got)
}

func TestResolveEmptyUsePatternResolvesEmpty(t *testing.T) {
	r := Resolve{}
	require.Equal(t, "", r.ReplaceVars(map[string]string{"$1": "x"}))
}

func TestResolveAuxReplaceVars(t *testing.T) {
	a := ResolveAux{Property: 214, ID: "$1"}
	prop, value := a.ReplaceVars(map[string]string{"$1": "12345"})
	require.Equal(t, int64(214), prop)
	require.Equal(t, "12345", value)
}

func TestParsePropertyNumber(t *testing.T) {
	n, ok := parsePropertyNumber("P214")
	require.True(t, ok)
	require.Equal(t, int64(214), n)

	_, ok = parsePropertyNumber("notanumber")
	require.False(t, ok)
}
