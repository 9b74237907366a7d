// Package search keeps a full text index over finished reports.
package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/blevesearch/bleve"
)

// Hit is one matching report.
type Hit struct {
	RunID     string    `json:"run_id"`
	Topic     string    `json:"topic"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type document struct {
	Topic    string `json:"topic"`
	Pipeline string `json:"pipeline"`
	Body     string `json:"body"`
}

// entry is what a hit needs besides the score.
type entry struct {
	Topic     string
	Timestamp time.Time
}

// Index is an in-memory bleve index of reports keyed by run id.
type Index struct {
	bleve bleve.Index
	mu    sync.RWMutex
	meta  map[string]entry
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]entry)}, nil
}

// Add indexes rep under its run id, replacing any earlier version.
func (i *Index) Add(rep report.Report) error {
	if rep.ID == "" {
		return fmt.Errorf("report has no run id")
	}
	var body strings.Builder
	for _, s := range rep.Sections() {
		body.WriteString(s.Body)
		body.WriteString("\n")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.meta[rep.ID] = entry{Topic: rep.Topic, Timestamp: rep.Timestamp}
	return i.bleve.Index(rep.ID, document{Topic: rep.Topic, Pipeline: rep.Pipeline, Body: body.String()})
}

// Search runs a query string query and returns up to limit hits, best first.
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		e, ok := i.meta[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{RunID: h.ID, Topic: e.Topic, Score: h.Score, Timestamp: e.Timestamp})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	return hits, nil
}

// Len returns the number of indexed reports.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.meta)
}

func (i *Index) Close() error { return i.bleve.Close() }
