package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/pipeline"
)

// File names inside a run directory.
const (
	ResultJSON    = "result.json"
	ResultMD      = "result.md"
	SynthesisMD   = "synthesis.md"
	dirTimeLayout = "20060102_150405"
)

// Writer saves run documents under a base directory, one subdirectory per run.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) *Writer {
	if baseDir == "" {
		baseDir = "output"
	}
	return &Writer{baseDir: baseDir}
}

// BaseDir returns the directory runs are written under.
func (w *Writer) BaseDir() string {
	return w.baseDir
}

// RunDir is the directory a document is written to.
func (w *Writer) RunDir(doc Document) string {
	name := doc.StartedAt.Format(dirTimeLayout) + "-" + pipeline.ShortID(doc.ID)
	return filepath.Join(w.baseDir, name)
}

// Write stores the result and returns the run directory.
func (w *Writer) Write(res *pipeline.Result) (string, error) {
	return w.WriteDocument(NewDocument(res))
}

// WriteDocument stores doc as JSON plus two markdown views.
func (w *Writer) WriteDocument(doc Document) (string, error) {
	dir := w.RunDir(doc)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{ResultJSON, data},
		{ResultMD, []byte(Markdown(doc))},
		{SynthesisMD, []byte(strings.TrimSpace(doc.Content) + "\n")},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	logger.Info("[REPORT] run %s written to %s", pipeline.ShortID(doc.ID), dir)
	return dir, nil
}

// ReadDocument loads a result.json written by WriteDocument.
func ReadDocument(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}
