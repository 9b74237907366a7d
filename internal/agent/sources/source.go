package sources

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source is one search hit from any backend
type Source struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Type        string    `json:"type"` // news, web, encyclopedia
	PublishedAt time.Time `json:"published_at,omitempty"`
	Content     string    `json:"content,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Origin      string    `json:"origin,omitempty"` // publisher or backend name
}

// formatSources renders hits as a numbered plain text list for the model.
func formatSources(srcs []Source) string {
	var b strings.Builder
	for i, s := range srcs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s.Title)
		if s.Origin != "" {
			fmt.Fprintf(&b, " (%s", s.Origin)
			if !s.PublishedAt.IsZero() {
				fmt.Fprintf(&b, ", %s", s.PublishedAt.Format("2006-01-02"))
			}
			b.WriteString(")")
		}
		if s.URL != "" {
			fmt.Fprintf(&b, "\n   URL: %s", s.URL)
		}
		text := s.Summary
		if text == "" {
			text = s.Content
		}
		if text != "" {
			fmt.Fprintf(&b, "\n   %s", text)
		}
	}
	return b.String()
}

// DeduplicateSources merges sources by URL (or title fallback), keeping the first
func DeduplicateSources(in []Source) []Source {
	seen := make(map[string]bool, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		k := s.URL
		if k == "" {
			k = strings.ToLower(s.Title)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func withQuery(endpoint string, params url.Values) string {
	if strings.Contains(endpoint, "?") {
		return endpoint + "&" + params.Encode()
	}
	return endpoint + "?" + params.Encode()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func max1(a, def int) int {
	if a > 0 {
		return a
	}
	return def
}
