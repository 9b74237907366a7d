package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Bhaumik-99/research-agents/config"
)

// Brave queries the Brave Search API
type Brave struct {
	cfg  config.WebSearchConfig
	http *HTTPClient
}

func NewBrave(cfg config.WebSearchConfig, client *HTTPClient) *Brave {
	if cfg.BraveEndpoint == "" {
		cfg.BraveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	return &Brave{cfg: cfg, http: client}
}

func (b *Brave) Name() string { return "brave_search" }

func (b *Brave) Description() string {
	return "Brave web search. Useful for finding pages, statistics and reports on the open web. Input should be a search query."
}

func (b *Brave) Search(ctx context.Context, query string) ([]Source, error) {
	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": b.cfg.BraveAPIKey}
	params := url.Values{"q": {query}, "count": {strconv.Itoa(max1(b.cfg.MaxResults, 5))}}
	if err := b.http.DoJSON(ctx, "GET", withQuery(b.cfg.BraveEndpoint, params), headers, nil, &resp); err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	var out []Source
	for _, r := range resp.Web.Results {
		out = append(out, Source{Title: r.Title, URL: r.URL, Type: "web", Summary: r.Description, Origin: "brave"})
	}
	return DeduplicateSources(out), nil
}

func (b *Brave) Call(ctx context.Context, input string) (string, error) {
	srcs, err := b.Search(ctx, input)
	if err != nil {
		return "", err
	}
	if len(srcs) == 0 {
		return "No results found", nil
	}
	return formatSources(srcs), nil
}

// Serper queries Google results through serper.dev
type Serper struct {
	cfg  config.WebSearchConfig
	http *HTTPClient
}

func NewSerper(cfg config.WebSearchConfig, client *HTTPClient) *Serper {
	if cfg.SerperEndpoint == "" {
		cfg.SerperEndpoint = "https://google.serper.dev/search"
	}
	return &Serper{cfg: cfg, http: client}
}

func (s *Serper) Name() string { return "serper_search" }

func (s *Serper) Description() string {
	return "Google search through Serper. Useful for broad web lookups. Input should be a search query."
}

func (s *Serper) Search(ctx context.Context, query string) ([]Source, error) {
	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.cfg.SerperAPIKey}
	body := map[string]any{"q": query, "num": max1(s.cfg.MaxResults, 5)}
	if err := s.http.DoJSON(ctx, "POST", s.cfg.SerperEndpoint, headers, body, &resp); err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	var out []Source
	for _, r := range resp.Organic {
		out = append(out, Source{Title: r.Title, URL: r.Link, Type: "web", Summary: r.Snippet, Origin: "serper"})
	}
	return DeduplicateSources(out), nil
}

func (s *Serper) Call(ctx context.Context, input string) (string, error) {
	srcs, err := s.Search(ctx, input)
	if err != nil {
		return "", err
	}
	if len(srcs) == 0 {
		return "No results found", nil
	}
	return formatSources(srcs), nil
}
