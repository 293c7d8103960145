package kbclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/wikidata"
)

// fakeMediaWiki stands in for the KB web API's login/token/wbeditentity
// surface, just enough to drive Login and ExecuteCommands end to end.
func fakeMediaWiki(t *testing.T, onEdit func(data string, values url.Values)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("action") == "query" && r.URL.Query().Get("type") == "login":
			w.Write([]byte(`{"query":{"tokens":{"logintoken":"LOGINTOKEN"}}}`))
		case r.URL.Query().Get("action") == "query" && r.URL.Query().Get("type") == "csrf":
			w.Write([]byte(`{"query":{"tokens":{"csrftoken":"EDITTOKEN"}}}`))
		case r.Method == http.MethodPost:
			require.NoError(t, r.ParseForm())
			switch r.PostForm.Get("action") {
			case "clientlogin":
				assert.Equal(t, "LOGINTOKEN", r.PostForm.Get("logintoken"))
				w.Write([]byte(`{"clientlogin":{"status":"PASS"}}`))
			case "wbeditentity":
				if onEdit != nil {
					onEdit(r.PostForm.Get("data"), r.PostForm)
				}
				w.Write([]byte(`{"entity":{"id":"` + r.PostForm.Get("id") + `"}}`))
			default:
				t.Fatalf("unexpected action %q", r.PostForm.Get("action"))
			}
		default:
			t.Fatalf("unexpected request %s", r.URL.String())
		}
	}))
}

func TestLoginCachesEditToken(t *testing.T) {
	srv := fakeMediaWiki(t, nil)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.cfg.BotName = "bot"
	c.cfg.BotPassword = "secret"

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "EDITTOKEN", c.editToken)
	assert.True(t, c.loggedIn)

	// Second call must not re-hit the network for tokens (loggedIn short-circuits).
	require.NoError(t, c.Login(context.Background()))
}

func TestLoginMissingCredentials(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	err := c.Login(context.Background())
	assert.Error(t, err)
}

// TestExecuteCommandsGroupsByItem mirrors execute_commands/
// execute_item_command: commands for the same item id are merged into one
// wbeditentity call with both claims present.
func TestExecuteCommandsGroupsByItem(t *testing.T) {
	var editedData string
	srv := fakeMediaWiki(t, func(data string, values url.Values) {
		editedData = data
		assert.Equal(t, "Q42", values.Get("id"))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.cfg.BotName = "bot"
	c.cfg.BotPassword = "secret"

	commands := []wikidata.Command{
		{ItemID: 42, Property: 31, Value: wikidata.ItemValue(5), Comment: "instance of"},
		{ItemID: 42, Property: 21, Value: wikidata.ItemValue(6)},
	}
	require.NoError(t, c.ExecuteCommands(context.Background(), commands))

	var entity map[string]any
	require.NoError(t, json.Unmarshal([]byte(editedData), &entity))
	claims, _ := entity["claims"].([]any)
	assert.Len(t, claims, 2)
}

func TestExecuteCommandsNoOpOnEmpty(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	require.NoError(t, c.ExecuteCommands(context.Background(), nil))
}
