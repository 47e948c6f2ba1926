package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/persist"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/report"
)

// Asker runs one question. *pipeline.Pipeline satisfies it.
type Asker interface {
	Run(ctx context.Context, question string, observers ...pipeline.Observer) (*pipeline.Result, error)
}

// History lists archived runs. *persist.Store satisfies it.
type History interface {
	ListRuns(limit int) ([]persist.RunSummary, error)
}

// Recorder is called with every finished run, e.g. to write and archive it.
type Recorder func(res *pipeline.Result)

type Option func(*Server)

func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithInfo sets what /api/status reports about the panel.
func WithInfo(providers []string, searchEnabled bool) Option {
	return func(s *Server) {
		s.providers = append([]string(nil), providers...)
		s.searchEnabled = searchEnabled
	}
}

type Server struct {
	asker         Asker
	history       History
	recorder      Recorder
	providers     []string
	searchEnabled bool
	startedAt     time.Time
	upgrader      websocket.Upgrader
}

func NewServer(asker Asker, opts ...Option) *Server {
	s := &Server{
		asker:     asker,
		startedAt: time.Now().UTC(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/history", s.handleHistory)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(defaultIndexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"started_at":     s.startedAt.Format(time.RFC3339),
		"uptime_sec":     int(time.Since(s.startedAt).Seconds()),
		"providers":      s.providers,
		"search_enabled": s.searchEnabled,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.asker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline is not initialized"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	doc, err := s.ask(r.Context(), req.Question)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) ask(ctx context.Context, question string, observers ...pipeline.Observer) (report.Document, error) {
	res, err := s.asker.Run(ctx, question, observers...)
	if err != nil {
		return report.Document{}, err
	}
	if s.recorder != nil {
		s.recorder(res)
	}
	return report.NewDocument(res), nil
}

func statusFor(err error) int {
	if errors.Is(err, pipeline.ErrInvalidConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run archive is disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []persist.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// StreamMessage is one websocket frame on /api/stream.
type StreamMessage struct {
	Type     string           `json:"type"` // ask, state, result, error, ping, pong
	Question string           `json:"question,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
	From     pipeline.State   `json:"from,omitempty"`
	State    pipeline.State   `json:"state,omitempty"`
	Note     string           `json:"note,omitempty"`
	At       *time.Time       `json:"at,omitempty"`
	Result   *report.Document `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) send(msg StreamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// handleStream answers questions over a websocket: every pipeline transition
// is pushed as a "state" frame, then the final document as "result".
// Asks run one at a time off the read loop; the running ask is cancelled
// once the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[WebUI] websocket upgrade failed: %v", err)
		return
	}
	client := &streamConn{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())

	asks := make(chan string)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for question := range asks {
			s.streamAsk(ctx, client, question)
		}
	}()

	defer conn.Close()
	defer wg.Wait()
	defer close(asks)
	defer cancel()

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("[WebUI] stream read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			_ = client.send(StreamMessage{Type: "pong"})
		case "ask":
			select {
			case asks <- msg.Question:
			default:
				_ = client.send(StreamMessage{Type: "error", Error: "busy: wait for the current answer"})
			}
		default:
			_ = client.send(StreamMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) streamAsk(ctx context.Context, client *streamConn, question string) {
	question = strings.TrimSpace(question)
	if s.asker == nil || question == "" {
		_ = client.send(StreamMessage{Type: "error", Error: "question is required"})
		return
	}

	doc, err := s.ask(ctx, question, func(e pipeline.Event) {
		at := e.At
		_ = client.send(StreamMessage{Type: "state", RunID: e.RunID, From: e.From, State: e.To, Note: e.Note, At: &at})
	})
	if err != nil {
		_ = client.send(StreamMessage{Type: "error", Error: err.Error()})
		return
	}
	_ = client.send(StreamMessage{Type: "result", RunID: doc.ID, Result: &doc})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const defaultIndexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>quorum</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: linear-gradient(145deg,#f7fafc,#e9eef7); color: #1f2937; }
    .wrap { max-width: 900px; margin: 0 auto; padding: 20px; }
    .panel { background: #fff; border-radius: 12px; box-shadow: 0 8px 30px rgba(15,23,42,.08); padding: 16px; }
    #stages { color: #64748b; font-size: 13px; margin: 8px 0; }
    #answer { min-height: 320px; max-height: 60vh; overflow: auto; white-space: pre-wrap; border: 1px solid #d1d5db; border-radius: 8px; padding: 12px; background: #f9fafb; }
    .row { display: flex; gap: 8px; margin-top: 10px; }
    input { flex: 1; padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    button { padding: 10px 16px; border: 0; border-radius: 8px; background: #0f766e; color: #fff; cursor: pointer; }
    button:hover { background: #0d9488; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="panel">
      <h2>quorum</h2>
      <div class="row">
        <input id="q" placeholder="Ask the panel..." />
        <button id="ask">Ask</button>
      </div>
      <div id="stages"></div>
      <div id="answer"></div>
    </div>
  </div>
  <script>
    const q = document.getElementById('q');
    const stages = document.getElementById('stages');
    const answer = document.getElementById('answer');
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(proto + location.host + '/api/stream');
    ws.onmessage = (ev) => {
      const m = JSON.parse(ev.data);
      if (m.type === 'state') stages.textContent += ' → ' + m.state + (m.note ? ' (' + m.note + ')' : '');
      if (m.type === 'result') answer.textContent = m.result.content + '\n\n' + m.result.comparison_table;
      if (m.type === 'error') answer.textContent = 'Error: ' + m.error;
    };
    function ask() {
      const text = q.value.trim();
      if (!text) return;
      stages.textContent = 'idle';
      answer.textContent = '';
      ws.send(JSON.stringify({ type: 'ask', question: text }));
    }
    document.getElementById('ask').addEventListener('click', ask);
    q.addEventListener('keydown', (e) => { if (e.key === 'Enter') ask(); });
  </script>
</body>
</html>`
