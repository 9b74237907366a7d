package search

import (
	"testing"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/report"
)

func TestIndexSearch(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()

	docs := []report.Report{
		{ID: "r1", Topic: "solar power", Results: map[string]string{"synthesis": "Photovoltaic panels keep getting cheaper."}},
		{ID: "r2", Topic: "quantum computing", Results: map[string]string{"synthesis": "Qubits and error correction."}},
	}
	for _, d := range docs {
		if err := idx.Add(d); err != nil {
			t.Fatalf("Add(%s): %v", d.ID, err)
		}
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 docs, got %d", idx.Len())
	}

	hits, err := idx.Search("photovoltaic", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].RunID != "r1" || hits[0].Topic != "solar power" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	hits, err = idx.Search("quantum", 5)
	if err != nil || len(hits) != 1 || hits[0].RunID != "r2" {
		t.Fatalf("topic search = %+v, %v", hits, err)
	}

	if hits, _ := idx.Search("  ", 5); hits != nil {
		t.Fatalf("blank query should return nothing, got %+v", hits)
	}
}

func TestIndexReplacesExisting(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()
	_ = idx.Add(report.Report{ID: "r1", Topic: "old", Results: map[string]string{"summary": "tidal"}})
	_ = idx.Add(report.Report{ID: "r1", Topic: "new", Results: map[string]string{"summary": "geothermal"}})

	if hits, _ := idx.Search("tidal", 5); len(hits) != 0 {
		t.Fatalf("stale content still indexed: %+v", hits)
	}
	if hits, _ := idx.Search("geothermal", 5); len(hits) != 1 || hits[0].Topic != "new" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if err := idx.Add(report.Report{}); err == nil {
		t.Fatalf("expected error for report without id")
	}
}

func TestHitCarriesTopicAndTimestamp(t *testing.T) {
	idx, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	_ = idx.Add(report.Report{ID: "r1", Topic: "wind", Timestamp: first, Results: map[string]string{"summary": "offshore turbines"}})
	_ = idx.Add(report.Report{ID: "r1", Topic: "wind farms", Timestamp: second, Results: map[string]string{"summary": "offshore turbines"}})

	hits, err := idx.Search("turbines", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search = %+v, %v", hits, err)
	}
	if hits[0].Topic != "wind farms" || !hits[0].Timestamp.Equal(second) {
		t.Fatalf("hit = %+v, want latest topic and timestamp", hits[0])
	}
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1", idx.Len())
	}
}
