package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Bhaumik-99/research-agents/config"
)

// WebSearchUnavailable is returned by the placeholder web tool.
const WebSearchUnavailable = "Web search not available - please configure Tavily API key"

// Tavily queries the Tavily search API and returns results as JSON.
type Tavily struct {
	cfg  config.TavilyConfig
	http *HTTPClient
}

func NewTavily(cfg config.TavilyConfig, client *HTTPClient) *Tavily {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.tavily.com/search"
	}
	return &Tavily{cfg: cfg, http: client}
}

func (t *Tavily) Name() string { return "tavily_search_results_json" }

func (t *Tavily) Description() string {
	return "A search engine optimized for comprehensive, accurate, and trusted results. Useful for when you need to answer questions about current events. Input should be a search query."
}

type tavilyResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]Source, error) {
	var resp struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	depth := t.cfg.SearchDepth
	if depth == "" {
		depth = "advanced"
	}
	body := map[string]any{
		"api_key":      t.cfg.APIKey,
		"query":        query,
		"max_results":  max1(t.cfg.MaxResults, 3),
		"search_depth": depth,
	}
	headers := map[string]string{"Authorization": "Bearer " + t.cfg.APIKey}
	if err := t.http.DoJSON(ctx, "POST", t.cfg.Endpoint, headers, body, &resp); err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	out := make([]Source, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Source{Title: r.Title, URL: r.URL, Type: "web", Content: strings.TrimSpace(r.Content), Origin: "tavily"})
	}
	return out, nil
}

// Call returns a JSON array of {url, content} objects.
func (t *Tavily) Call(ctx context.Context, input string) (string, error) {
	srcs, err := t.Search(ctx, input)
	if err != nil {
		return "", err
	}
	results := make([]tavilyResult, 0, len(srcs))
	for _, s := range srcs {
		results = append(results, tavilyResult{URL: s.URL, Content: s.Content})
	}
	b, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Placeholder is a tool that always answers with a fixed message.
type Placeholder struct {
	name        string
	description string
	reply       func(input string) string
}

func (p *Placeholder) Name() string        { return p.name }
func (p *Placeholder) Description() string { return p.description }

func (p *Placeholder) Call(ctx context.Context, input string) (string, error) {
	return p.reply(input), nil
}

// NewWebSearchPlaceholder stands in for Tavily when no key is configured.
func NewWebSearchPlaceholder() *Placeholder {
	return &Placeholder{
		name:        "web_search",
		description: "Search the web for information",
		reply:       func(string) string { return WebSearchUnavailable },
	}
}
