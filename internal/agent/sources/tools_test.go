package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/google/go-cmp/cmp"
)

func testClient() *HTTPClient { return NewHTTPClient(2*time.Second, 0, time.Millisecond, 0, 1) }

func TestWikipediaReturnsPageSummaries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			if q.Get("srsearch") != "Go language" || q.Get("srlimit") != "2" {
				t.Errorf("unexpected search params %v", q)
			}
			fmt.Fprint(w, `{"query":{"search":[{"title":"Go (programming language)"},{"title":"Gopher"}]}}`)
		case q.Get("prop") == "extracts":
			title := q.Get("titles")
			fmt.Fprintf(w, `{"query":{"pages":{"1":{"title":%q,"extract":"About %s."}}}}`, title, title)
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
	}))
	defer srv.Close()

	wiki := NewWikipedia(config.WikipediaConfig{Endpoint: srv.URL, TopK: 2, MaxChars: 4000}, testClient())
	got, err := wiki.Call(context.Background(), "Go language")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := "Page: Go (programming language)\nSummary: About Go (programming language).\n\nPage: Gopher\nSummary: About Gopher."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wikipedia output mismatch (-want +got):\n%s", diff)
	}
}

func TestWikipediaTruncatesAndHandlesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("srsearch") == "nothing" {
			fmt.Fprint(w, `{"query":{"search":[]}}`)
			return
		}
		if r.URL.Query().Get("list") == "search" {
			fmt.Fprint(w, `{"query":{"search":[{"title":"Long"}]}}`)
			return
		}
		fmt.Fprintf(w, `{"query":{"pages":{"1":{"title":"Long","extract":%q}}}}`, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	wiki := NewWikipedia(config.WikipediaConfig{Endpoint: srv.URL, MaxChars: 30}, testClient())
	got, err := wiki.Call(context.Background(), "long")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("expected output truncated to 30 chars, got %d", len(got))
	}
	got, err = wiki.Call(context.Background(), "nothing")
	if err != nil || got != noWikipediaResult {
		t.Fatalf("expected %q, got %q (%v)", noWikipediaResult, got, err)
	}
}

func TestTavilyReturnsJSONResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["query"] != "ai chips" || body["max_results"] != float64(3) || body["api_key"] != "tv-key" {
			t.Errorf("unexpected body %v", body)
		}
		fmt.Fprint(w, `{"results":[{"title":"A","url":"https://a.example","content":" chips are up "}]}`)
	}))
	defer srv.Close()

	tv := NewTavily(config.TavilyConfig{APIKey: "tv-key", Endpoint: srv.URL, MaxResults: 3}, testClient())
	got, err := tv.Call(context.Background(), "ai chips")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != `[{"url":"https://a.example","content":"chips are up"}]` {
		t.Fatalf("unexpected tavily output %s", got)
	}
}

func TestNewsSearchFallbacks(t *testing.T) {
	ns := NewNewsSearch(config.NewsAPIConfig{}, testClient())
	got, _ := ns.Call(context.Background(), "fusion")
	if got != "Latest news about fusion: Recent developments and trends (Configure NewsAPI for real data)" {
		t.Fatalf("unexpected keyless output %q", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()
	ns = NewNewsSearch(config.NewsAPIConfig{APIKey: "k", Endpoint: srv.URL}, testClient())
	got, err := ns.Call(context.Background(), "fusion")
	if err != nil {
		t.Fatalf("news failures must not error: %v", err)
	}
	if got != "Unable to fetch news about fusion" {
		t.Fatalf("unexpected failure output %q", got)
	}
}

func TestNewsSearchFormatsArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" || r.URL.Query().Get("sortBy") != "publishedAt" {
			t.Errorf("unexpected request %s %v", r.URL, r.Header)
		}
		fmt.Fprint(w, `{"status":"ok","articles":[
			{"title":"Fusion record","url":"https://n.example/1","publishedAt":"2026-02-01T10:00:00Z","description":"Plasma held longer.","source":{"name":"Wire"}},
			{"title":"Fusion record","url":"https://n.example/1","publishedAt":"2026-02-01T10:00:00Z","description":"dup","source":{"name":"Wire"}}
		]}`)
	}))
	defer srv.Close()

	ns := NewNewsSearch(config.NewsAPIConfig{APIKey: "k", Endpoint: srv.URL}, testClient())
	got, err := ns.Call(context.Background(), "fusion")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	want := "1. Fusion record (Wire, 2026-02-01)\n   URL: https://n.example/1\n   Plasma held longer."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("news output mismatch (-want +got):\n%s", diff)
	}
}

func TestBraveAndSerper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/brave":
			if r.Header.Get("X-Subscription-Token") != "bk" {
				t.Errorf("missing brave token")
			}
			fmt.Fprint(w, `{"web":{"results":[{"title":"B","url":"https://b.example","description":"brave hit"}]}}`)
		case "/serper":
			if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "sk" {
				t.Errorf("unexpected serper request")
			}
			fmt.Fprint(w, `{"organic":[{"title":"S","link":"https://s.example","snippet":"serper hit"}]}`)
		}
	}))
	defer srv.Close()

	cfg := config.WebSearchConfig{BraveAPIKey: "bk", BraveEndpoint: srv.URL + "/brave", SerperAPIKey: "sk", SerperEndpoint: srv.URL + "/serper"}
	got, err := NewBrave(cfg, testClient()).Call(context.Background(), "q")
	if err != nil || !strings.Contains(got, "brave hit") {
		t.Fatalf("brave: %q %v", got, err)
	}
	got, err = NewSerper(cfg, testClient()).Call(context.Background(), "q")
	if err != nil || !strings.Contains(got, "https://s.example") {
		t.Fatalf("serper: %q %v", got, err)
	}
}

func TestFetchPageExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Solar Report</title></head><body>
			<nav>menu menu menu</nav>
			<article><h1>Solar Report</h1>
			<p>Solar capacity grew strongly last year, driven by falling module prices and new policy support across many regions of the world.</p>
			<p>Analysts expect installations to keep rising as storage costs decline and grid operators adapt to higher shares of variable generation.</p>
			</article></body></html>`)
	}))
	defer srv.Close()

	fp := NewFetchPage(testClient(), 6000)
	got, err := fp.Call(context.Background(), srv.URL+"/report")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(got, "Solar capacity grew strongly") {
		t.Fatalf("expected article text, got %q", got)
	}
	if _, err := fp.Call(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected invalid url error")
	}
}

func TestRegistryResolvesGroups(t *testing.T) {
	r := NewRegistry(config.SourcesConfig{Fetch: config.FetchConfig{Enabled: false}})
	tools, err := r.Resolve("wikipedia", "web", "reader", "news", "web")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	if diff := cmp.Diff([]string{"wikipedia", "web_search", "news_search"}, names); diff != "" {
		t.Fatalf("resolved tools mismatch (-want +got):\n%s", diff)
	}
	out, _ := tools[1].Call(context.Background(), "x")
	if out != WebSearchUnavailable {
		t.Fatalf("unexpected placeholder output %q", out)
	}

	r = NewRegistry(config.SourcesConfig{
		Tavily:    config.TavilyConfig{APIKey: "t"},
		WebSearch: config.WebSearchConfig{BraveAPIKey: "b"},
		Fetch:     config.FetchConfig{Enabled: true},
	})
	tools, err = r.Resolve("web", "reader")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	names = names[:0]
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	if diff := cmp.Diff([]string{"tavily_search_results_json", "brave_search", "fetch_page"}, names); diff != "" {
		t.Fatalf("resolved tools mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Resolve("calculator"); err == nil {
		t.Fatalf("expected unknown tool error")
	}
}

func TestRegistrySkipsPlaceholderWithOtherWebBackend(t *testing.T) {
	r := NewRegistry(config.SourcesConfig{WebSearch: config.WebSearchConfig{BraveAPIKey: "k"}})
	tools, err := r.Resolve("web")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, tl := range tools {
		names = append(names, tl.Name())
	}
	if diff := cmp.Diff([]string{"brave_search"}, names); diff != "" {
		t.Fatalf("resolved tools mismatch (-want +got):\n%s", diff)
	}
	for _, n := range r.Names() {
		if n == "web_search" {
			t.Fatalf("placeholder registered alongside brave: %v", r.Names())
		}
	}
}
