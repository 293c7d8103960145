package wdrc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFeedSkipsBlankAndInvalidLines(t *testing.T) {
	body := strings.Join([]string{
		`{"item":"Q1","target":"Q2","timestamp":"20260101000000"}`,
		``,
		`not json`,
		`{"item":"Q3","timestamp":"20260102000000"}`,
	}, "\n")

	got := ParseFeed(strings.NewReader(body))
	assert.Equal(t, []FeedEvent{
		{Item: "Q1", Target: "Q2", Timestamp: "20260101000000"},
		{Item: "Q3", Timestamp: "20260102000000"},
	}, got)
}

func TestParseFeedEmpty(t *testing.T) {
	assert.Empty(t, ParseFeed(strings.NewReader("")))
}

func TestItemToNumeric(t *testing.T) {
	cases := map[string]int64{
		"Q42":   42,
		"q42":   42,
		"-42":   -42,
		"42":    42,
		"":      0,
		"Qabc":  0,
		"noise": 0,
	}
	for in, want := range cases {
		assert.Equal(t, want, itemToNumeric(in), "itemToNumeric(%q)", in)
	}
}
