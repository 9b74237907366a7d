package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Bhaumik-99/research-agents/internal/report"
)

// Memory keeps runs in process. It backs the service when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]Run
	reports map[string]report.Report
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[string]Run), reports: make(map[string]report.Report)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateRun(_ context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id must be provided")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	run.Topic, run.Pipeline, run.CreatedAt = prev.Topic, prev.Pipeline, prev.CreatedAt
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) SaveReport(_ context.Context, runID string, rep report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	m.reports[runID] = rep
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) GetReport(_ context.Context, runID string) (report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[runID]
	if !ok {
		return report.Report{}, fmt.Errorf("report %s: %w", runID, ErrNotFound)
	}
	return rep, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
