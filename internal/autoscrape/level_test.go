package autoscrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysLevelTick(t *testing.T) {
	ctx := context.Background()
	l := NewKeysLevel([]string{"a", "b", "c"})
	require.NoError(t, l.Init(ctx, nil))
	require.Equal(t, "a", l.Current())

	done, err := l.Tick(ctx, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, "b", l.Current())

	done, err = l.Tick(ctx, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, "c", l.Current())

	done, err = l.Tick(ctx, nil)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "", l.Current())
}

func TestRangeLevelTick(t *testing.T) {
	ctx := context.Background()
	l := NewRangeLevel(1, 3, 1)
	require.NoError(t, l.Init(ctx, nil))
	require.Equal(t, "1", l.Current())

	done, _ := l.Tick(ctx, nil)
	require.False(t, done)
	require.Equal(t, "2", l.Current())

	done, _ = l.Tick(ctx, nil)
	require.False(t, done)
	require.Equal(t, "3", l.Current())

	done, _ = l.Tick(ctx, nil)
	require.True(t, done)
	require.Equal(t, "4", l.Current())
}

func TestRangeLevelStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewRangeLevel(1, 10, 1)
	require.NoError(t, l.Init(ctx, nil))
	l.Tick(ctx, nil)
	l.Tick(ctx, nil)
	state := l.MarshalState()

	restored := NewRangeLevel(1, 10, 1)
	restored.UnmarshalState(state)
	require.Equal(t, l.Current(), restored.Current())
}

func TestFollowLevelRefillsAndPops(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/x/1">one</a><a href="/x/2">two</a>`))
	}))
	t.Cleanup(srv.Close)

	rx := regexp.MustCompile(`href="(/x/\d+)"`)
	l := NewFollowLevel(srv.URL, rx)
	client := srv.Client()
	require.NoError(t, l.Init(ctx, client))

	var seen []string
	for {
		seen = append(seen, l.Current())
		done, err := l.Tick(ctx, client)
		require.NoError(t, err)
		if done {
			break
		}
	}
	require.Contains(t, seen, "/x/1")
	require.Contains(t, seen, "/x/2")
}

func TestMediaWikiLevelPaginates(t *testing.T) {
	ctx := context.Background()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"query":{"allpages":[{"title":"Alpha"},{"title":"Beta"}]}}`))
		} else {
			w.Write([]byte(`{"query":{"allpages":[]}}`))
		}
	}))
	t.Cleanup(srv.Close)

	l := NewMediaWikiLevel(srv.URL)
	client := srv.Client()
	require.NoError(t, l.Init(ctx, client))

	done, err := l.Tick(ctx, client)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, "Alpha", l.Current())

	done, err = l.Tick(ctx, client)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, "Beta", l.Current())

	done, _ = l.Tick(ctx, client)
	require.True(t, done)
}

func TestOdometerCascadesCarry(t *testing.T) {
	ctx := context.Background()
	outer := NewKeysLevel([]string{"x", "y"})
	inner := NewKeysLevel([]string{"1", "2"})
	o := Odometer{Levels: []Level{outer, inner}}
	require.NoError(t, o.Init(ctx, nil))

	require.Equal(t, []string{"x", "1"}, o.Current())

	done, err := o.Tick(ctx, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, []string{"x", "2"}, o.Current())

	done, err = o.Tick(ctx, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, []string{"y", "1"}, o.Current())

	done, err = o.Tick(ctx, nil)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, []string{"y", "2"}, o.Current())

	done, err = o.Tick(ctx, nil)
	require.NoError(t, err)
	require.True(t, done)
}

func TestOdometerEmptyIsImmediatelyDone(t *testing.T) {
	ctx := context.Background()
	o := Odometer{}
	done, err := o.Tick(ctx, nil)
	require.NoError(t, err)
	require.True(t, done)
}
