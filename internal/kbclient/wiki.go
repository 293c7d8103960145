package kbclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// wbgetentitiesBatchSize caps how many ids one wbgetentities call requests,
// a conservative batch well under the MediaWiki API's own limit.
const wbgetentitiesBatchSize = 50

type entityResponse struct {
	Entities map[string]struct {
		Claims map[string][]struct {
			Mainsnak struct {
				Datavalue struct {
					Value string `json:"value"`
				} `json:"datavalue"`
			} `json:"mainsnak"`
		} `json:"claims"`
	} `json:"entities"`
}

// FormatterURL looks up a property's "formatter URL" (P1630) qualifier, the
// "$1"-templated external-id link pattern microsync renders report rows
// with. Returns "" if the property has none set. Grounded on wikidata.rs's
// get_formatter_url_for_prop.
func (c *Client) FormatterURL(ctx context.Context, property int64) (string, error) {
	if property <= 0 {
		return "", nil
	}
	u := fmt.Sprintf("%s?action=wbgetentities&ids=P%d&format=json", c.cfg.APIURL, property)
	var resp entityResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	entity, ok := resp.Entities[fmt.Sprintf("P%d", property)]
	if !ok {
		return "", nil
	}
	claims := entity.Claims["P1630"]
	if len(claims) == 0 {
		return "", nil
	}
	return claims[0].Mainsnak.Datavalue.Value, nil
}

// GetPropertyValues fetches every P<property> string-valued claim on each of
// items, returning item -> its values. Grounded on wdrc.rs's
// sync_property_propval2item, which loads full entities via the wikibase
// entity_container and filters claims_with_property(P<property>) down to
// string-valued snaks; here the batch fetch goes directly against
// wbgetentities for just that one property instead of loading whole
// entities, reusing the entityResponse shape FormatterURL already decodes.
func (c *Client) GetPropertyValues(ctx context.Context, property int64, items []string) (map[string][]string, error) {
	if property <= 0 || len(items) == 0 {
		return nil, nil
	}
	propKey := fmt.Sprintf("P%d", property)
	out := make(map[string][]string)
	for i := 0; i < len(items); i += wbgetentitiesBatchSize {
		end := i + wbgetentitiesBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[i:end]
		u := fmt.Sprintf("%s?action=wbgetentities&ids=%s&props=claims&format=json",
			c.cfg.APIURL, url.QueryEscape(strings.Join(batch, "|")))
		var resp entityResponse
		if err := c.getJSON(ctx, u, &resp); err != nil {
			return nil, err
		}
		for item, entity := range resp.Entities {
			for _, claim := range entity.Claims[propKey] {
				if claim.Mainsnak.Datavalue.Value == "" {
					continue
				}
				out[item] = append(out[item], claim.Mainsnak.Datavalue.Value)
			}
		}
	}
	return out, nil
}

// SetWikiPage replaces title's wikitext entirely via action=edit. Grounded
// on wikidata.rs's set_wikipage_text, which microsync uses to publish its
// per-catalog report page.
func (c *Client) SetWikiPage(ctx context.Context, title, wikitext, summary string) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	form := url.Values{
		"action":  {"edit"},
		"format":  {"json"},
		"title":   {title},
		"summary": {summary},
		"text":    {wikitext},
		"token":   {c.editToken},
	}
	_, err := c.postForm(ctx, c.cfg.APIURL, form)
	return err
}
