package sources

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
)

// NewsSearch finds recent articles through NewsAPI. Without a key it
// answers with a canned hint, and failures are reported as text.
type NewsSearch struct {
	cfg    config.NewsAPIConfig
	http   *HTTPClient
	logger *log.Logger
}

func NewNewsSearch(cfg config.NewsAPIConfig, client *HTTPClient) *NewsSearch {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://newsapi.org/v2/everything"
	}
	return &NewsSearch{cfg: cfg, http: client, logger: log.New(log.Writer(), "[NEWSAPI] ", log.LstdFlags)}
}

func (n *NewsSearch) Name() string { return "news_search" }

func (n *NewsSearch) Description() string { return "Search for latest news articles" }

func (n *NewsSearch) Search(ctx context.Context, query string) ([]Source, error) {
	var resp struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Content     string `json:"content"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	params := url.Values{
		"q":        {query},
		"language": {"en"},
		"sortBy":   {"publishedAt"},
		"pageSize": {strconv.Itoa(max1(n.cfg.MaxResults, 10))},
	}
	headers := map[string]string{"X-Api-Key": n.cfg.APIKey}
	if err := n.http.DoJSON(ctx, "GET", withQuery(n.cfg.Endpoint, params), headers, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("newsapi: %s", resp.Message)
	}
	out := make([]Source, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		ts, _ := time.Parse(time.RFC3339, a.PublishedAt)
		out = append(out, Source{
			Title: a.Title, URL: a.URL, Type: "news", PublishedAt: ts, Origin: a.Source.Name,
			Content: strings.TrimSpace(a.Content), Summary: strings.TrimSpace(a.Description),
		})
	}
	return DeduplicateSources(out), nil
}

func (n *NewsSearch) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if n.cfg.APIKey == "" {
		return fmt.Sprintf("Latest news about %s: Recent developments and trends (Configure NewsAPI for real data)", query), nil
	}
	srcs, err := n.Search(ctx, query)
	if err != nil {
		n.logger.Printf("search %q failed: %v", query, err)
		return fmt.Sprintf("Unable to fetch news about %s", query), nil
	}
	if len(srcs) == 0 {
		return fmt.Sprintf("No recent news found about %s", query), nil
	}
	return formatSources(srcs), nil
}
