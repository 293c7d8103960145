package kbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/magnusmanske/mixnmatch-go/internal/wikidata"
)

// tokenResponse covers the two token calls this client makes: login token
// and csrf (edit) token.
type tokenResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
			CSRFToken  string `json:"csrftoken"`
		} `json:"tokens"`
	} `json:"query"`
}

// Login authenticates the bot account and caches the edit token, matching
// wikidata.rs's api_log_in. It is idempotent: a second call with a cached
// token is a no-op.
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}
	if c.cfg.BotName == "" || c.cfg.BotPassword == "" {
		return fmt.Errorf("kbclient: bot credentials not configured")
	}

	loginToken, err := c.fetchToken(ctx, "login")
	if err != nil {
		return fmt.Errorf("fetch login token: %w", err)
	}

	form := url.Values{
		"action":         {"clientlogin"},
		"format":         {"json"},
		"username":       {c.cfg.BotName},
		"password":       {c.cfg.BotPassword},
		"logintoken":     {loginToken},
		"loginreturnurl": {c.cfg.APIURL},
	}
	resp, err := c.postForm(ctx, c.cfg.APIURL, form)
	if err != nil {
		return fmt.Errorf("client login: %w", err)
	}
	status, _ := resp["clientlogin"].(map[string]any)["status"].(string)
	if status != "PASS" {
		return fmt.Errorf("kbclient: login failed, status %q", status)
	}

	editToken, err := c.fetchToken(ctx, "csrf")
	if err != nil {
		return fmt.Errorf("fetch edit token: %w", err)
	}
	c.editToken = editToken
	c.loggedIn = true
	return nil
}

func (c *Client) fetchToken(ctx context.Context, kind string) (string, error) {
	u := fmt.Sprintf("%s?action=query&meta=tokens&type=%s&format=json", c.cfg.APIURL, kind)
	var resp tokenResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	if kind == "login" {
		return resp.Query.Tokens.LoginToken, nil
	}
	return resp.Query.Tokens.CSRFToken, nil
}

// ExecuteCommands applies every command via the wbeditentity API, grouping
// commands by item id into a single edit per item (and tolerating
// per-item failure: one bad item does not abort the rest). Grounded on
// wikidata.rs's execute_commands / execute_item_command.
func (c *Client) ExecuteCommands(ctx context.Context, commands []wikidata.Command) error {
	if len(commands) == 0 {
		return nil
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	batchID := uuid.NewString()

	byItem := make(map[int64][]wikidata.Command)
	var order []int64
	for _, cmd := range commands {
		if _, ok := byItem[cmd.ItemID]; !ok {
			order = append(order, cmd.ItemID)
		}
		byItem[cmd.ItemID] = append(byItem[cmd.ItemID], cmd)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var firstErr error
	for _, itemID := range order {
		if err := c.executeItemCommands(ctx, itemID, byItem[itemID]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("edit batch %s: %w", batchID, err)
		}
	}
	return firstErr
}

func (c *Client) executeItemCommands(ctx context.Context, itemID int64, commands []wikidata.Command) error {
	entity := map[string]any{}
	comments := make(map[string]struct{})
	for _, cmd := range commands {
		wikidata.AddClaim(entity, cmd)
		if cmd.Comment != "" {
			comments[cmd.Comment] = struct{}{}
		}
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity Q%d: %w", itemID, err)
	}
	data := string(raw)

	var commentList []string
	for comment := range comments {
		commentList = append(commentList, comment)
	}
	sort.Strings(commentList)

	form := url.Values{
		"action": {"wbeditentity"},
		"format": {"json"},
		"id":     {"Q" + strconv.FormatInt(itemID, 10)},
		"data":   {data},
		"token":  {c.editToken},
	}
	if len(commentList) > 0 {
		form.Set("summary", strings.Join(commentList, ";"))
	}
	_, err = c.postForm(ctx, c.cfg.APIURL, form)
	if err != nil {
		return fmt.Errorf("wbeditentity Q%d: %w", itemID, err)
	}
	return nil
}
