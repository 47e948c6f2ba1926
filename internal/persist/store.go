// Package persist keeps an append-only archive of finished runs in SQLite.
// The pipeline never reads it; only the history commands do.
package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/report"
)

// startedLayout has fixed width so started_at sorts as text.
const startedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no run matches an id.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned when an id prefix matches several runs.
var ErrAmbiguous = errors.New("run id prefix is ambiguous")

// Store handles persistence of run documents using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new SQLite-backed archive at the given path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                  TEXT PRIMARY KEY,
			question            TEXT NOT NULL,
			outcome             TEXT NOT NULL,
			state               TEXT NOT NULL,
			synthesis_succeeded INTEGER NOT NULL DEFAULT 0,
			providers           INTEGER NOT NULL DEFAULT 0,
			succeeded           INTEGER NOT NULL DEFAULT 0,
			elapsed_seconds     REAL NOT NULL DEFAULT 0,
			output_dir          TEXT,
			document            TEXT NOT NULL,
			started_at          TEXT NOT NULL,
			created_at          TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS responses (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           TEXT NOT NULL,
			position         INTEGER NOT NULL,
			provider         TEXT NOT NULL,
			model            TEXT,
			chars            INTEGER NOT NULL DEFAULT 0,
			elapsed_seconds  REAL NOT NULL DEFAULT 0,
			total_tokens     INTEGER NOT NULL DEFAULT 0,
			error_kind       TEXT,
			error            TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_responses_run ON responses(run_id);
		CREATE INDEX IF NOT EXISTS idx_responses_provider ON responses(provider);
	`)
	return err
}

// SaveRun archives doc. Saving the same run id twice replaces it.
func (s *Store) SaveRun(doc report.Document, outputDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	succeeded := 0
	for _, r := range doc.Responses {
		if r.OK() {
			succeeded++
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM responses WHERE run_id = ?`, doc.ID); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs (id, question, outcome, state, synthesis_succeeded, providers, succeeded,
			elapsed_seconds, output_dir, document, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Question, doc.Outcome, doc.State, boolToInt(doc.SynthesisSucceeded), len(doc.Responses), succeeded,
		doc.ElapsedSeconds, outputDir, toJSON(doc), doc.StartedAt.UTC().Format(startedLayout), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for i, r := range doc.Responses {
		tokens := 0
		if r.Usage != nil {
			tokens = r.Usage.TotalTokens
		}
		_, err := tx.Exec(`
			INSERT INTO responses (run_id, position, provider, model, chars, elapsed_seconds, total_tokens, error_kind, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.ID, i, r.Provider, r.Model, utf8.RuneCountInString(r.Content), r.ElapsedSeconds, tokens, r.ErrorKind, r.Error)
		if err != nil {
			return fmt.Errorf("failed to save response %s: %w", r.Provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	Log("archived run %s (%d responses)", doc.ID, len(doc.Responses))
	return nil
}

const summaryColumns = `id, question, outcome, state, synthesis_succeeded, providers, succeeded,
	elapsed_seconds, output_dir, started_at, created_at`

func scanSummary(row scanner) (RunSummary, error) {
	var r RunSummary
	var synth int
	var outputDir sql.NullString
	var startedAt, createdAt string
	err := row.Scan(&r.ID, &r.Question, &r.Outcome, &r.State, &synth, &r.Providers, &r.Succeeded,
		&r.ElapsedSeconds, &outputDir, &startedAt, &createdAt)
	if err != nil {
		return r, err
	}
	r.SynthesisSucceeded = synth != 0
	r.OutputDir = outputDir.String
	if t, err := time.Parse(startedLayout, startedAt); err == nil {
		r.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	return s.queryRuns(`SELECT `+summaryColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, normalizeLimit(limit))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchRuns finds runs whose question or answer contains keyword.
func (s *Store) SearchRuns(keyword string, limit int) ([]RunSummary, error) {
	pattern := "%" + likeEscaper.Replace(keyword) + "%"
	return s.queryRuns(`SELECT `+summaryColumns+` FROM runs
		WHERE question LIKE ? ESCAPE '\' OR document LIKE ? ESCAPE '\'
		ORDER BY started_at DESC LIMIT ?`, pattern, pattern, normalizeLimit(limit))
}

func (s *Store) queryRuns(query string, args ...any) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run by id or unique id prefix.
func (s *Store) GetRun(id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+summaryColumns+`, document FROM runs
		WHERE substr(id, 1, length(?)) = ?
		ORDER BY id = ? DESC LIMIT 2`, id, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		var run Run
		var startedAt, createdAt, document string
		var synth int
		var outputDir sql.NullString
		err := rows.Scan(&run.ID, &run.Question, &run.Outcome, &run.State, &synth, &run.Providers, &run.Succeeded,
			&run.ElapsedSeconds, &outputDir, &startedAt, &createdAt, &document)
		if err != nil {
			return nil, err
		}
		run.SynthesisSucceeded = synth != 0
		run.OutputDir = outputDir.String
		if t, err := time.Parse(startedLayout, startedAt); err == nil {
			run.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			run.CreatedAt = t
		}
		if err := fromJSON(document, &run.Document); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", run.ID, err)
		}
		found = append(found, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, ErrNotFound
	case len(found) > 1 && found[0].ID != id && found[1].ID != id:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
	run := found[0]
	if len(found) > 1 && found[1].ID == id {
		run = found[1]
	}

	run.Responses, err = s.responsesInternal(run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) responsesInternal(runID string) ([]ResponseRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, provider, model, chars, elapsed_seconds, total_tokens, error_kind, error
		FROM responses
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResponseRow
	for rows.Next() {
		var r ResponseRow
		var model, kind, msg sql.NullString
		if err := rows.Scan(&r.RunID, &r.Provider, &model, &r.Chars, &r.ElapsedSeconds, &r.TotalTokens, &kind, &msg); err != nil {
			return nil, err
		}
		r.Model, r.ErrorKind, r.Error = model.String, kind.String, msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProviderStats aggregates every archived response per provider, sorted by
// provider name.
func (s *Store) ProviderStats() ([]ProviderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT provider, model, elapsed_seconds, error_kind, error
		FROM responses
		ORDER BY provider ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderStats
	var total float64
	for rows.Next() {
		var provider string
		var model, kind, msg sql.NullString
		var elapsed float64
		if err := rows.Scan(&provider, &model, &elapsed, &kind, &msg); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Provider != provider {
			total = 0
			out = append(out, ProviderStats{Provider: provider, FailureByKinds: map[string]int{}})
		}
		ps := &out[len(out)-1]
		ps.Calls++
		ps.LastModel = model.String
		total += elapsed
		ps.AvgSeconds = total / float64(ps.Calls)
		if kind.String != "" || msg.String != "" {
			ps.Failures++
			ps.FailureByKinds[kind.String]++
		}
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Log logs a message with the persist prefix
func Log(format string, v ...interface{}) {
	logger.Debug("[PERSIST] "+format, v...)
}
