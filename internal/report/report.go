// Package report turns pipeline results into downloadable documents.
package report

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/helpers"
	"github.com/russross/blackfriday/v2"
)

// Report is the finished output of one run.
type Report struct {
	ID         string            `json:"id,omitempty"`
	Topic      string            `json:"topic"`
	Pipeline   string            `json:"pipeline,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Results    map[string]string `json:"results"`
	Order      []string          `json:"order,omitempty"`
	Usage      Usage             `json:"usage"`
	DurationMS int64             `json:"duration_ms"`
}

// Usage totals LLM consumption for the run.
type Usage struct {
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Section is one headed block of a rendered report.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// New builds a report from pipeline results.
func New(id, topic, pipeline string, res core.Results, started, finished time.Time) Report {
	results := make(map[string]string, len(res.Outputs))
	for k, v := range res.Outputs {
		results[k] = v
	}
	return Report{
		ID:         id,
		Topic:      topic,
		Pipeline:   pipeline,
		Timestamp:  finished.UTC(),
		Results:    results,
		Order:      append([]string(nil), res.Order...),
		Usage:      Usage{Tokens: res.TokensUsed, CostUSD: res.Cost},
		DurationMS: finished.Sub(started).Milliseconds(),
	}
}

var titles = map[string]string{
	core.KeyResearcher:  "🔍 Primary Research",
	core.KeyAnalyst:     "📊 Data Analysis",
	core.KeyNewsTracker: "📰 Recent News",
	core.KeySynthesis:   "🔄 Comprehensive Summary",
	core.KeyPlan:        "🧭 Research Plan",
	core.KeySummary:     "🔄 Comprehensive Summary",
}

// canonical orders keys when a stored report carries no explicit order.
var canonical = []string{core.KeyResearcher, core.KeyAnalyst, core.KeyNewsTracker, core.KeySynthesis, core.KeyPlan}

func titleFor(key string) string {
	if t, ok := titles[key]; ok {
		return t
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(key, "q")); err == nil && strings.HasPrefix(key, "q") {
		return fmt.Sprintf("❓ Question %d", n)
	}
	return strings.Title(strings.ReplaceAll(key, "_", " ")) //nolint:staticcheck // ASCII keys only
}

// Sections returns the report blocks in pipeline order; keys missing from
// that order follow alphabetically.
func (r Report) Sections() []Section {
	order := r.Order
	if len(order) == 0 {
		order = canonical
	}
	seen := map[string]bool{}
	var out []Section
	for _, k := range order {
		body, ok := r.Results[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Section{Key: k, Title: titleFor(k), Body: body})
	}
	var rest []string
	for k := range r.Results {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Section{Key: k, Title: titleFor(k), Body: r.Results[k]})
	}
	return out
}

// JSON renders the report with two space indentation.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders a titled document with one heading per section.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", r.Topic)
	fmt.Fprintf(&b, "*Generated %s", r.Timestamp.Format(time.RFC1123))
	if r.Pipeline != "" {
		fmt.Fprintf(&b, " by the %s pipeline", r.Pipeline)
	}
	b.WriteString("*\n")
	for _, s := range r.Sections() {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Title, strings.TrimSpace(s.Body))
	}
	if r.Usage.Tokens > 0 {
		fmt.Fprintf(&b, "\n---\n\n%d tokens, estimated cost $%.4f\n", r.Usage.Tokens, r.Usage.CostUSD)
	}
	return b.String()
}

// HTML renders the markdown and sanitises it into a standalone page.
func (r Report) HTML() string {
	body := blackfriday.Run([]byte(r.Markdown()), blackfriday.WithExtensions(blackfriday.CommonExtensions))
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Research Report: %s</title>\n", html.EscapeString(r.Topic))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(helpers.SanitizeReportHTML(string(body)))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// Filename is the download name for a report on topic, e.g.
// research_report_quantum_computing.json.
func Filename(topic, ext string) string {
	return "research_report_" + helpers.SafeFilename(topic) + "." + strings.TrimPrefix(ext, ".")
}
