package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Bhaumik-99/research-agents/config"
)

const noWikipediaResult = "No good Wikipedia Search Result was found"

// Wikipedia searches MediaWiki and returns the intro extract of the top pages.
type Wikipedia struct {
	cfg  config.WikipediaConfig
	http *HTTPClient
}

func NewWikipedia(cfg config.WikipediaConfig, client *HTTPClient) *Wikipedia {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://en.wikipedia.org/w/api.php"
	}
	return &Wikipedia{cfg: cfg, http: client}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Description() string {
	return "A wrapper around Wikipedia. Useful for when you need to answer general questions about people, places, companies, facts, historical events, or other subjects. Input should be a search query."
}

func (w *Wikipedia) headers() map[string]string {
	return map[string]string{"User-Agent": w.cfg.UserAgent}
}

// Call returns "Page: <title>\nSummary: <extract>" blocks, truncated to max_chars.
func (w *Wikipedia) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return noWikipediaResult, nil
	}
	var search struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(max1(w.cfg.TopK, 3))},
		"format":   {"json"},
	}
	if err := w.http.DoJSON(ctx, "GET", withQuery(w.cfg.Endpoint, params), w.headers(), nil, &search); err != nil {
		return "", fmt.Errorf("wikipedia search: %w", err)
	}

	var pages []string
	for _, hit := range search.Query.Search {
		extract, err := w.extract(ctx, hit.Title)
		if err != nil || extract == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("Page: %s\nSummary: %s", hit.Title, extract))
	}
	if len(pages) == 0 {
		return noWikipediaResult, nil
	}
	return truncate(strings.Join(pages, "\n\n"), max1(w.cfg.MaxChars, 4000)), nil
}

func (w *Wikipedia) extract(ctx context.Context, title string) (string, error) {
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {title},
		"format":      {"json"},
	}
	if err := w.http.DoJSON(ctx, "GET", withQuery(w.cfg.Endpoint, params), w.headers(), nil, &resp); err != nil {
		return "", err
	}
	for _, p := range resp.Query.Pages {
		if s := strings.TrimSpace(p.Extract); s != "" {
			return s, nil
		}
	}
	return "", nil
}
