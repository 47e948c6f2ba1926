package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MetasoEngine calls Metaso's MCP endpoint with a JSON-RPC tools/call.
type MetasoEngine struct {
	name     string
	apiKey   string
	endpoint string
	scope    string
	priority int
	client   *http.Client
}

type rpcCall struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  rpcToolParams `json:"params"`
}

type rpcToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcToolReply struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// metasoPage covers both field spellings the tool has returned.
type metasoPage struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
	Summary string `json:"summary,omitempty"`
}

func NewMetasoEngine(config EngineConfig) (Engine, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("metaso: API key is required")
	}
	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = "https://metaso.cn/api/mcp"
	}
	return &MetasoEngine{
		name:     nameOr(config.Name, "metaso"),
		apiKey:   config.APIKey,
		endpoint: endpoint,
		scope:    config.stringOption("scope", "webpage"),
		priority: config.Priority,
		client:   config.httpClient(),
	}, nil
}

func (e *MetasoEngine) Name() string  { return e.name }
func (e *MetasoEngine) Type() string  { return "metaso" }
func (e *MetasoEngine) Priority() int { return e.priority }

func (e *MetasoEngine) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	call := rpcCall{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params: rpcToolParams{
			Name:      "metaso_web_search",
			Arguments: map[string]any{"q": query, "size": limit, "scope": e.scope},
		},
	}
	var reply rpcToolReply
	if err := postJSON(ctx, e.client, e.endpoint, e.apiKey, call, &reply); err != nil {
		return nil, fmt.Errorf("metaso: %w", err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("metaso API error: %s", reply.Error.Message)
	}

	var text strings.Builder
	for _, c := range reply.Result.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return nil, nil
	}
	pages, err := parseMetasoPages([]byte(text.String()))
	if err != nil {
		return nil, err
	}

	retrievedAt := time.Now()
	results := make([]Result, 0, len(pages))
	for _, p := range pages {
		u := firstNonEmpty(p.URL, p.Link)
		if u == "" {
			continue
		}
		results = append(results, Result{
			Title:       p.Title,
			URL:         u,
			Snippet:     firstNonEmpty(p.Snippet, p.Summary),
			Source:      e.name,
			RetrievedAt: retrievedAt,
		})
	}
	return capResults(results, limit), nil
}

// parseMetasoPages accepts a bare list or an object with a webpages list.
func parseMetasoPages(data []byte) ([]metasoPage, error) {
	var pages []metasoPage
	if err := json.Unmarshal(data, &pages); err == nil {
		return pages, nil
	}
	var wrapped struct {
		Webpages []metasoPage `json:"webpages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected metaso payload: %w", err)
	}
	return wrapped.Webpages, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
