package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgPage = `<html><body>
<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=x">Go docs</a></h2>
  <a class="result__snippet" href="#">The Go programming language documentation.</a>
</div>
<div class="result result--ad"><a class="result__a" href="https://ads.example">Ad</a></div>
<div class="result"><a class="result__a" href="https://example.com/b">Second</a><div class="result__snippet">B snippet</div></div>
<div class="result"><a class="result__a" href="https://example.com/c">Third</a></div>
</body></html>`

func TestDuckDuckGoParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("q") != "golang" {
			t.Errorf("unexpected request %s q=%q", r.Method, r.FormValue("q"))
		}
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	e, err := NewDuckDuckGoEngine(EngineConfig{Name: "web", BaseURL: srv.URL})
	require.NoError(t, err)

	results, err := e.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL)
	assert.Equal(t, "Go docs", results[0].Title)
	assert.Equal(t, "The Go programming language documentation.", results[0].Snippet)
	assert.Equal(t, "https://example.com/b", results[1].URL)
	assert.Equal(t, "web", results[1].Source)
}

func TestDuckDuckGoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, _ := NewDuckDuckGoEngine(EngineConfig{BaseURL: srv.URL})
	_, err := e.Search(context.Background(), "x", 5)
	assert.Error(t, err)
}

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models are based on complex recurrent networks. </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func TestArxivParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:transformers", r.URL.Query().Get("search_query"))
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		_, _ = w.Write([]byte(arxivFeedXML))
	}))
	defer srv.Close()

	e, err := NewArxivEngine(EngineConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	results, err := e.Search(context.Background(), "transformers", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Attention Is All You Need", r.Title)
	assert.Equal(t, "http://arxiv.org/abs/1706.03762v7", r.URL)
	assert.Equal(t, "The dominant sequence transduction models are based on complex recurrent networks.", r.Snippet)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, r.Authors)
	assert.Equal(t, 2017, r.PublishedAt.Year())
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", r.Metadata["pdf_url"])
	assert.Equal(t, "cs.CL,cs.LG", r.Metadata["categories"])
	assert.Equal(t, "cs.CL", r.Metadata["primary_category"])
	assert.Equal(t, "arxiv", r.Source)
}

func TestTavilySendsKeyAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "tv-key", body["api_key"])
		assert.Equal(t, "/search", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[{"title":"T","url":"https://t.io","content":"c","score":0.9,"published_date":"2024-01-02T03:04:05Z"}]}`))
	}))
	defer srv.Close()

	e, err := NewTavilyEngine(EngineConfig{Name: "tavily", APIKey: "tv-key", BaseURL: srv.URL})
	require.NoError(t, err)
	results, err := e.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, 2024, results[0].PublishedAt.Year())

	_, err = NewTavilyEngine(EngineConfig{})
	assert.Error(t, err)
}

func TestBraveAndSearxng(t *testing.T) {
	brave := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bk", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"B","url":"https://b.io","description":"d"}]}}`))
	}))
	defer brave.Close()
	searx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`{"results":[{"title":"S","url":"https://s.io","content":"c","engine":"bing"}]}`))
	}))
	defer searx.Close()

	b, err := NewBraveEngine(EngineConfig{APIKey: "bk", BaseURL: brave.URL})
	require.NoError(t, err)
	rs, err := b.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, "https://b.io", rs[0].URL)

	s, err := NewSearxngEngine(EngineConfig{BaseURL: searx.URL})
	require.NoError(t, err)
	rs, err = s.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, "bing", rs[0].Metadata["engine"])
}

func TestMetasoParsesToolResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mk", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{\"webpages\":[{\"title\":\"M\",\"link\":\"https://m.cn\",\"snippet\":\"s\"}]}"}]}}`))
	}))
	defer srv.Close()

	e, err := NewMetasoEngine(EngineConfig{APIKey: "mk", BaseURL: srv.URL})
	require.NoError(t, err)
	rs, err := e.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "https://m.cn", rs[0].URL)
}

func TestRegistryKnowsEngines(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []string{"duckduckgo", "arxiv", "tavily", "brave", "metaso", "searxng"} {
		assert.Contains(t, r.ListTypes(), typ)
	}
	_, err := r.CreateEngine(EngineConfig{Type: "bing"})
	assert.Error(t, err)

	e, err := r.CreateEngine(EngineConfig{Type: "arxiv", Name: "papers"})
	require.NoError(t, err)
	assert.Equal(t, "papers", e.Name())
}
