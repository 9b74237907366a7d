package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/google/go-cmp/cmp"
)

func sample() Report {
	start := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	res := core.Results{
		Order: []string{core.KeyResearcher, core.KeyAnalyst, core.KeyNewsTracker, core.KeySynthesis},
		Outputs: map[string]string{
			core.KeyResearcher:  "Background **facts**.",
			core.KeyAnalyst:     "Growth of 12%.",
			core.KeyNewsTracker: "Launch announced. <script>alert(1)</script>",
			core.KeySynthesis:   "Overall summary.",
			"extra":             "appendix",
		},
		TokensUsed: 1200,
		Cost:       0.0042,
	}
	return New("run-1", "quantum computing", core.PipelineTeam, res, start, start.Add(90*time.Second))
}

func TestSectionsFollowPipelineOrder(t *testing.T) {
	var titles []string
	for _, s := range sample().Sections() {
		titles = append(titles, s.Title)
	}
	want := []string{"🔍 Primary Research", "📊 Data Analysis", "📰 Recent News", "🔄 Comprehensive Summary", "Extra"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Fatalf("section titles mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionsForDecomposeKeys(t *testing.T) {
	r := Report{Results: map[string]string{"q2": "b", "plan": "p", "q1": "a", "summary": "s"}, Order: []string{"plan", "q1", "q2", "summary"}}
	var titles []string
	for _, s := range r.Sections() {
		titles = append(titles, s.Title)
	}
	want := []string{"🧭 Research Plan", "❓ Question 1", "❓ Question 2", "🔄 Comprehensive Summary"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Fatalf("section titles mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONCarriesDownloadFields(t *testing.T) {
	b, err := sample().JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"topic\": \"quantum computing\"") {
		t.Fatalf("expected two space indentation:\n%s", b)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"topic", "timestamp", "results"} {
		if _, ok := doc[k]; !ok {
			t.Fatalf("missing %s in %v", k, doc)
		}
	}
	if doc["duration_ms"] != float64(90000) {
		t.Fatalf("unexpected duration %v", doc["duration_ms"])
	}
}

func TestMarkdown(t *testing.T) {
	md := sample().Markdown()
	for _, want := range []string{
		"# Research Report: quantum computing\n",
		"\n## 🔍 Primary Research\n\nBackground **facts**.\n",
		"\n## 🔄 Comprehensive Summary\n\nOverall summary.\n",
		"1200 tokens, estimated cost $0.0042",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Index(md, "Data Analysis") > strings.Index(md, "Recent News") {
		t.Fatalf("sections out of order:\n%s", md)
	}
}

func TestHTMLIsRenderedAndSanitised(t *testing.T) {
	out := sample().HTML()
	if !strings.Contains(out, "<strong>facts</strong>") {
		t.Fatalf("expected rendered markdown, got:\n%s", out)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("script survived sanitising:\n%s", out)
	}
	if !strings.Contains(out, "<title>Research Report: quantum computing</title>") {
		t.Fatalf("missing title:\n%s", out)
	}
}

func TestFilename(t *testing.T) {
	cases := []struct{ topic, ext, want string }{
		{"quantum computing", "json", "research_report_quantum_computing.json"},
		{"AI / ML trends", ".md", "research_report_AI__ML_trends.md"},
		{"", "html", "research_report_untitled.html"},
	}
	for _, tc := range cases {
		if got := Filename(tc.topic, tc.ext); got != tc.want {
			t.Fatalf("Filename(%q, %q) = %q, want %q", tc.topic, tc.ext, got, tc.want)
		}
	}
}
