// Package mcpserver exposes the panel and the search collector as MCP tools.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/search"
)

// Asker runs one question. *pipeline.Pipeline satisfies it.
type Asker interface {
	RunWith(ctx context.Context, question string, opts pipeline.RunOptions, observers ...pipeline.Observer) (*pipeline.Result, error)
}

// Searcher runs a search-only pass. *pipeline.Pipeline satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Outcome, error)
}

// Recorder is called with every run answered through ask_panel.
type Recorder func(res *pipeline.Result)

type Server struct {
	asker    Asker
	searcher Searcher
	recorder Recorder
	version  string
}

func New(asker Asker, searcher Searcher, version string, recorder Recorder) *Server {
	return &Server{asker: asker, searcher: searcher, recorder: recorder, version: version}
}

// MCP builds the tool server.
func (s *Server) MCP() *server.MCPServer {
	srv := server.NewMCPServer("quorum", s.version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("ask_panel",
		mcp.WithDescription("Ask several language models the same question, grounded on web search, and return one synthesized answer with a comparison of the models."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithBoolean("include_answers", mcp.Description("Also return each model's raw answer")),
		mcp.WithString("providers", mcp.Description("Comma-separated provider names to ask instead of the whole panel")),
	), s.AskPanel)

	srv.AddTool(mcp.NewTool("search_web",
		mcp.WithDescription("Search every configured engine with diversified queries and return deduplicated results grouped by source."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
		mcp.WithNumber("limit", mcp.Description("Results to show per source (default 5)")),
	), s.SearchWeb)

	return srv
}

// ServeStdio serves the tools on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	logger.Info("[MCP] serving ask_panel and search_web on stdio")
	return server.ServeStdio(s.MCP())
}

func (s *Server) AskPanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, _ := req.Params.Arguments["question"].(string)
	question = strings.TrimSpace(question)
	if question == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	if s.asker == nil {
		return mcp.NewToolResultError("no providers configured"), nil
	}
	includeAnswers, _ := req.Params.Arguments["include_answers"].(bool)

	opts := pipeline.RunOptions{Providers: providerList(req.Params.Arguments["providers"])}

	res, err := s.asker.RunWith(ctx, question, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	if s.recorder != nil {
		s.recorder(res)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(res.Report.Content))
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(res.Report.ComparisonTable())
	if res.Search != nil {
		sb.WriteString(fmt.Sprintf("\n\nSearch: %d unique results, %d duplicates dropped", res.Search.Corpus.Len(), res.Search.Duplicates))
	}
	if includeAnswers {
		sb.WriteString("\n\n## Individual answers\n\n")
		sb.WriteString(aggregate.FormatResponses(res.Responses))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// providerList accepts "a, b" or ["a", "b"].
func providerList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case string:
		raw = strings.Split(x, ",")
	case []any:
		for _, item := range x {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = x
	}
	var out []string
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (s *Server) SearchWeb(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, _ := req.Params.Arguments["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if s.searcher == nil {
		return mcp.NewToolResultError("no search engines configured"), nil
	}

	limit := 5
	if l, ok := req.Params.Arguments["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	out, err := s.searcher.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if out.AllFailed {
		return mcp.NewToolResultError("every search engine failed"), nil
	}
	text := search.FormatContext(out.Corpus, limit)
	if text == "" {
		text = "No results."
	}
	return mcp.NewToolResultText(text), nil
}
