// Package memory is a client for the long-term per-user memory service.
// Results are advisory personalization context only; every failure path
// degrades to an empty result so coaching never depends on this service.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/config"
)

// Insight is one relevant snippet recalled for a user
type Insight struct {
	ID        string  `json:"id"`
	Text      string  `json:"memory"`
	Category  string  `json:"category"`
	Relevance float64 `json:"score"`
}

// Service reads and writes per-user coaching memories
type Service interface {
	Search(ctx context.Context, userID, query string, limit int) ([]Insight, error)
	Write(ctx context.Context, userID, category, payload string) error
}

// Client talks to the memory service over HTTP
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a memory service client. Returns nil if the service is
// not configured; callers treat a nil client as "no personalization".
func NewClient(logger zerolog.Logger, cfg config.MemoryConfig) *Client {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Results []struct {
		ID       string         `json:"id"`
		Memory   string         `json:"memory"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"results"`
}

// Search returns memories relevant to the query, most relevant first
func (c *Client) Search(ctx context.Context, userID, query string, limit int) ([]Insight, error) {
	body, err := json.Marshal(searchRequest{Query: query, UserID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/memories/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("memory search status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode memory search: %w", err)
	}

	insights := make([]Insight, 0, len(sr.Results))
	for _, r := range sr.Results {
		in := Insight{ID: r.ID, Text: r.Memory, Relevance: r.Score, Category: "general"}
		if cat, ok := r.Metadata["category"].(string); ok && cat != "" {
			in.Category = cat
		}
		insights = append(insights, in)
	}
	return insights, nil
}

type writeRequest struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Payload  string `json:"payload"`
}

// Write stores a new memory for the user
func (c *Client) Write(ctx context.Context, userID, category, payload string) error {
	body, err := json.Marshal(writeRequest{UserID: userID, Category: category, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal memory write: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/memories", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build memory write: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory write: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory write status %d", resp.StatusCode)
	}
	return nil
}

// CollectInsights runs a small set of coaching-oriented searches and merges
// the results, deduplicated by text and capped at five.
func CollectInsights(ctx context.Context, svc Service, logger zerolog.Logger, userID string, queries []string) []Insight {
	if svc == nil {
		return nil
	}

	if len(queries) > 3 {
		queries = queries[:3]
	}

	var all []Insight
	for _, q := range queries {
		found, err := svc.Search(ctx, userID, q, 3)
		if err != nil {
			logger.Warn().Err(err).Str("query", q).Msg("memory search failed, continuing without")
			continue
		}
		all = append(all, found...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Relevance > all[j].Relevance })

	seen := make(map[string]bool, len(all))
	unique := all[:0]
	for _, in := range all {
		if seen[in.Text] {
			continue
		}
		seen[in.Text] = true
		unique = append(unique, in)
		if len(unique) == 5 {
			break
		}
	}
	return unique
}
