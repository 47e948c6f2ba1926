package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/search"
)

type fakeAsker struct {
	err  error
	seen *pipeline.RunOptions
}

func (f fakeAsker) RunWith(_ context.Context, question string, opts pipeline.RunOptions, _ ...pipeline.Observer) (*pipeline.Result, error) {
	if f.seen != nil {
		*f.seen = opts
	}
	if f.err != nil {
		return nil, f.err
	}
	rs := llm.NewResponses(llm.Response{ProviderID: "a", Model: "m", Content: "raw a"})
	return &pipeline.Result{
		ID:        "r1",
		Question:  question,
		Responses: rs,
		Report: aggregate.Report{
			Content:    "merged answer",
			Outcome:    aggregate.OutcomeSynthesized,
			Comparison: aggregate.Compare(rs),
		},
	}, nil
}

type fakeSearcher struct{}

func (fakeSearcher) Search(_ context.Context, query string) (*search.Outcome, error) {
	corpus, _ := search.Merge(search.NewCorpus(), []search.Result{
		{Title: "one", URL: "https://one.example", Source: "web"},
		{Title: "two", URL: "https://two.example", Source: "web"},
	})
	return &search.Outcome{Query: query, Corpus: corpus}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

func TestAskPanel(t *testing.T) {
	var recorded int
	s := New(fakeAsker{}, fakeSearcher{}, "test", func(*pipeline.Result) { recorded++ })

	res, err := s.AskPanel(context.Background(), call(map[string]any{"question": "why?", "include_answers": true}))
	if err != nil {
		t.Fatalf("AskPanel returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	out := text(t, res)
	for _, want := range []string{"merged answer", "| a/m |", "raw a"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if recorded != 1 {
		t.Fatalf("recorder called %d times", recorded)
	}
}

func TestAskPanelErrors(t *testing.T) {
	s := New(fakeAsker{err: errors.New("boom")}, nil, "test", nil)

	res, _ := s.AskPanel(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Fatal("expected error for missing question")
	}
	res, _ = s.AskPanel(context.Background(), call(map[string]any{"question": "q"}))
	if !res.IsError || !strings.Contains(text(t, res), "boom") {
		t.Fatal("expected runner error to surface as tool error")
	}
}

func TestAskPanelProviderSelection(t *testing.T) {
	cases := []struct {
		name string
		arg  any
		want []string
	}{
		{"absent", nil, nil},
		{"comma string", "gpt, claude,", []string{"gpt", "claude"}},
		{"array", []any{"gpt", " ", "gemini"}, []string{"gpt", "gemini"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen pipeline.RunOptions
			s := New(fakeAsker{seen: &seen}, nil, "test", nil)
			args := map[string]any{"question": "q"}
			if tc.arg != nil {
				args["providers"] = tc.arg
			}
			res, err := s.AskPanel(context.Background(), call(args))
			if err != nil || res.IsError {
				t.Fatalf("AskPanel failed: %v", err)
			}
			if strings.Join(seen.Providers, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("providers = %v, want %v", seen.Providers, tc.want)
			}
		})
	}
}

func TestAskPanelUnknownProviderIsToolError(t *testing.T) {
	pa := llm.NewProvider("a", nil, llm.Settings{})
	p, err := pipeline.New(pipeline.Settings{}, pipeline.Deps{Providers: []*llm.Provider{pa}})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := New(p, nil, "test", nil).AskPanel(context.Background(), call(map[string]any{"question": "q", "providers": "nope"}))
	if !res.IsError || !strings.Contains(text(t, res), "nope") {
		t.Fatalf("expected unknown provider to surface as tool error, got %+v", res)
	}
}

func TestSearchWeb(t *testing.T) {
	s := New(nil, fakeSearcher{}, "test", nil)

	res, err := s.SearchWeb(context.Background(), call(map[string]any{"query": "go", "limit": float64(1)}))
	if err != nil || res.IsError {
		t.Fatalf("SearchWeb failed: %v", err)
	}
	out := text(t, res)
	if !strings.Contains(out, "[From WEB]") || !strings.Contains(out, "one") || strings.Contains(out, "two.example") {
		t.Fatalf("unexpected search output:\n%s", out)
	}

	res, _ = New(nil, nil, "test", nil).SearchWeb(context.Background(), call(map[string]any{"query": "go"}))
	if !res.IsError {
		t.Fatal("expected error without searcher")
	}
}

func TestMCPRegistersTools(t *testing.T) {
	if New(nil, nil, "test", nil).MCP() == nil {
		t.Fatal("expected server")
	}
}
