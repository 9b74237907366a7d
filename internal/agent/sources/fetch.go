package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// FetchPage downloads a page and returns its readable text.
type FetchPage struct {
	http     *HTTPClient
	maxChars int
}

func NewFetchPage(client *HTTPClient, maxChars int) *FetchPage {
	return &FetchPage{http: client, maxChars: max1(maxChars, 6000)}
}

func (f *FetchPage) Name() string { return "fetch_page" }

func (f *FetchPage) Description() string {
	return "Fetch a web page and return its main readable text. Input should be an absolute http(s) URL taken from a search result."
}

func (f *FetchPage) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{"type": "string", "description": "absolute http(s) URL"},
		},
		"required": []string{"url"},
	}
}

func (f *FetchPage) Call(ctx context.Context, input string) (string, error) {
	raw := strings.TrimSpace(input)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	body, final, err := f.http.Get(ctx, u.String(), map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	if parsed, err := url.Parse(final); err == nil {
		u = parsed
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", u, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(article.Excerpt)
	}
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", u)
	}
	var b strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", article.Title)
	}
	fmt.Fprintf(&b, "URL: %s\n\n", u)
	b.WriteString(truncate(text, f.maxChars))
	return b.String(), nil
}
