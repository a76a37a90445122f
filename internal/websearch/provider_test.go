package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTavilyWithoutKeyIsUnavailable(t *testing.T) {
	ok, res := NewTavily("", "", ProviderOptions{}).Search(context.Background(), "q", 5)
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestTavilySearch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "k", body["api_key"])
		assert.Equal(t, "advanced", body["search_depth"])
		_, _ = w.Write([]byte(`{"results":[
			{"title":"ML Syllabus","url":"https://a","content":"` + strings.Repeat("x", 300) + `","score":0.95},
			{"title":"No score","url":"https://b","content":"c"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("k", "advanced", ProviderOptions{Endpoint: srv.URL, Logger: zaptest.NewLogger(t)})
	tv.delay = time.Millisecond
	ok, res := tv.Search(context.Background(), "machine learning", 5)
	require.True(t, ok)
	require.Len(t, res, 2)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, 0.95, res[0].RelevanceScore)
	assert.Len(t, res[0].Snippet, 200)
	assert.Equal(t, 0.5, res[1].RelevanceScore)
	assert.Equal(t, ProviderTavily, res[1].Provider)
}

func TestTavilyServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	ok, _ := NewTavily("k", "", ProviderOptions{Endpoint: srv.URL}).Search(context.Background(), "q", 5)
	assert.False(t, ok)
}

const liteHTML = `<html><body><table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Flearn&amp;rut=x" class='result-link'>Learn Go</a></td></tr>
<tr><td class='result-snippet'>The <b>Go</b> programming   language tour.</td></tr>
<tr><td><a rel="nofollow" href="https://gobyexample.com/" class='result-link'>Go by Example</a></td></tr>
<tr><td class='result-snippet'>Hands-on introduction.</td></tr>
<tr><td><a href="https://duckduckgo.com/settings" class='result-link'>Settings</a></td></tr>
</table></body></html>`

func TestDuckDuckGoParsesLitePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "golang education curriculum course", r.PostForm.Get("q"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(liteHTML))
	}))
	defer srv.Close()

	ok, res := NewDuckDuckGo(ProviderOptions{Endpoint: srv.URL}).Search(context.Background(), "golang", 5)
	require.True(t, ok)
	require.Len(t, res, 2)
	assert.Equal(t, "https://go.dev/learn", res[0].URL)
	assert.Equal(t, "Learn Go", res[0].Title)
	assert.Equal(t, "The Go programming language tour.", res[0].Snippet)
	assert.Equal(t, 0.7, res[0].RelevanceScore)
	assert.Equal(t, "https://gobyexample.com/", res[1].URL)
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://x.org/a", resolveLink("/l/?uddg=https%3A%2F%2Fx.org%2Fa"))
	assert.Equal(t, "", resolveLink("https://duckduckgo.com/about"))
	assert.Equal(t, "https://x.org", resolveLink(" https://x.org "))
	assert.Equal(t, "", resolveLink(""))
}

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rust", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"organic_results":[{"title":"Rust Book","link":"https://r","snippet":"s"},{"title":"T","link":"https://t","snippet":"s","score":0.9}]}`))
	}))
	defer srv.Close()

	ok, res := NewSerpAPI("key", ProviderOptions{Endpoint: srv.URL}).Search(context.Background(), "rust", 1)
	require.True(t, ok)
	require.Len(t, res, 1)
	assert.Equal(t, 0.6, res[0].RelevanceScore)
	assert.Equal(t, ProviderSerpAPI, res[0].Provider)

	ok, _ = NewSerpAPI("", ProviderOptions{Endpoint: srv.URL}).Search(context.Background(), "rust", 1)
	assert.False(t, ok)
}
