package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/llm"
	"github.com/kayz/quorum/internal/persist"
	"github.com/kayz/quorum/internal/pipeline"
)

type fakeAsker struct{}

func (fakeAsker) Run(_ context.Context, question string, observers ...pipeline.Observer) (*pipeline.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &pipeline.ConfigError{Reason: "empty question"}
	}
	now := time.Now()
	for _, obs := range observers {
		obs(pipeline.Event{RunID: "run-1", Transition: pipeline.Transition{From: pipeline.StateIdle, To: pipeline.StateQuerying, At: now}})
		obs(pipeline.Event{RunID: "run-1", Transition: pipeline.Transition{From: pipeline.StateQuerying, To: pipeline.StateDone, At: now}})
	}
	return &pipeline.Result{
		ID:        "run-1",
		Question:  question,
		Responses: llm.NewResponses(llm.Response{ProviderID: "a", Model: "m", Content: "answer: " + question}),
		Report:    aggregate.Report{Content: "answer: " + question, Outcome: aggregate.OutcomeRaw},
		State:     pipeline.StateDone,
		StartedAt: now,
	}, nil
}

// blockingAsker holds every run until its context ends.
type blockingAsker struct {
	started chan struct{}
	ended   chan error
}

func (b blockingAsker) Run(ctx context.Context, question string, _ ...pipeline.Observer) (*pipeline.Result, error) {
	close(b.started)
	<-ctx.Done()
	b.ended <- ctx.Err()
	return nil, ctx.Err()
}

type fakeHistory struct{}

func (fakeHistory) ListRuns(limit int) ([]persist.RunSummary, error) {
	return []persist.RunSummary{{ID: "run-1", Question: "q"}}, nil
}

func TestStatusEndpoint(t *testing.T) {
	server := NewServer(fakeAsker{}, WithInfo([]string{"openai", "gemini"}, true))
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"ok\":true") || !strings.Contains(body, "\"gemini\"") {
		t.Fatalf("unexpected status payload: %s", body)
	}
}

func TestAskEndpoint(t *testing.T) {
	var recorded []string
	server := NewServer(fakeAsker{}, WithRecorder(func(res *pipeline.Result) { recorded = append(recorded, res.ID) }))
	handler := server.Handler()

	data, _ := json.Marshal(map[string]string{"question": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "answer: hello") {
		t.Fatalf("unexpected ask response: %s", rr.Body.String())
	}
	if len(recorded) != 1 || recorded[0] != "run-1" {
		t.Fatalf("recorder not called: %v", recorded)
	}
}

func TestAskEndpointRejectsBadInput(t *testing.T) {
	handler := NewServer(fakeAsker{}).Handler()

	cases := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{"question":"   "}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/ask", strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s %q: expected %d, got %d", tc.method, tc.body, tc.want, rr.Code)
		}
	}
}

func TestHistoryEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	NewServer(fakeAsker{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without archive, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewServer(fakeAsker{}, WithHistory(fakeHistory{})).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "run-1") {
		t.Fatalf("unexpected history response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestStreamEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(fakeAsker{}).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(StreamMessage{Type: "ask", Question: "why?"}); err != nil {
		t.Fatal(err)
	}

	var got []StreamMessage
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		got = append(got, msg)
		if msg.Type == "result" || msg.Type == "error" {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("expected 2 state frames and a result, got %+v", got)
	}
	if got[0].Type != "state" || got[0].State != pipeline.StateQuerying || got[1].State != pipeline.StateDone {
		t.Fatalf("unexpected state frames: %+v", got[:2])
	}
	if got[2].Result == nil || got[2].Result.Content != "answer: why?" {
		t.Fatalf("unexpected result frame: %+v", got[2])
	}

	if err := conn.WriteJSON(StreamMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	var pong StreamMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != "pong" {
		t.Fatalf("expected pong, got %+v err=%v", pong, err)
	}
}

func TestStreamDisconnectCancelsAsk(t *testing.T) {
	asker := blockingAsker{started: make(chan struct{}), ended: make(chan error, 1)}
	ts := httptest.NewServer(NewServer(asker).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := conn.WriteJSON(StreamMessage{Type: "ask", Question: "slow?"}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-asker.started:
	case <-time.After(5 * time.Second):
		t.Fatal("ask never started")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(StreamMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	var pong StreamMessage
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != "pong" {
		t.Fatalf("read loop should keep serving during an ask, got %+v err=%v", pong, err)
	}

	conn.Close()

	select {
	case err := <-asker.ended:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ask context was not cancelled after the client went away")
	}
}
