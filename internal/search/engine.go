package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Engine is one search backend.
type Engine interface {
	Name() string
	Type() string
	Priority() int
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

type EngineFactory func(config EngineConfig) (Engine, error)

// EngineConfig is the per-engine part of the search configuration.
type EngineConfig struct {
	Name       string
	Type       string
	APIKey     string
	BaseURL    string
	Priority   int
	Options    map[string]interface{}
	HTTPClient *http.Client
}

func (c EngineConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c EngineConfig) stringOption(key, fallback string) string {
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// postJSON sends payload as a JSON POST and decodes a 200 reply into out.
func postJSON(ctx context.Context, client *http.Client, endpoint, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return doJSON(client, req, out)
}

// doJSON runs req and decodes a 200 reply into out. Other statuses become
// errors carrying the start of the body.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncateRunes(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
