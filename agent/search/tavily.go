package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderTavily   = "tavily"
	tavilyMaxBody    = 2 << 20
	defaultMaxResult = 15
	maxMaxResult     = 30
)

var ErrMissingQuery = errors.New("missing query")

type Config struct {
	URL        string        `envconfig:"URL" default:"https://api.tavily.com"`
	APIKey     string        `envconfig:"API_KEY"`
	Timeout    time.Duration `split_words:"true" default:"15s"`
	MaxResults int           `split_words:"true" default:"15"`
}

type Request struct {
	Query      string
	MaxResults int
}

type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type Provider interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

// TavilyClient calls the Tavily search REST API.
type TavilyClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

var _ Provider = (*TavilyClient)(nil)

func NewTavilyClient(cfg Config, httpClient *http.Client) (*TavilyClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("missing tavily api key")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		base = "https://api.tavily.com"
	}
	return &TavilyClient{
		baseURL:    base,
		apiKey:     apiKey,
		maxResults: cfg.MaxResults,
		httpClient: httpClient,
	}, nil
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (c *TavilyClient) Search(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrMissingQuery
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = c.maxResults
	}
	if limit <= 0 {
		limit = defaultMaxResult
	}
	limit = min(limit, maxMaxResult)

	payload, err := json.Marshal(tavilyRequest{Query: query, MaxResults: limit})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, tavilyMaxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("tavily search failed (status %d): %s", resp.StatusCode, msg)
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.New("invalid tavily search response")
	}

	out := make([]Result, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		u := strings.TrimSpace(item.URL)
		if u == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = u
		}
		out = append(out, Result{
			Title:   title,
			URL:     u,
			Content: strings.TrimSpace(item.Content),
			Score:   item.Score,
		})
	}
	return out, nil
}
