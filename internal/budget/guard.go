package budget

import (
	"context"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
)

// Guarded is an LLMProvider that refuses calls once its Monitor is over budget.
type Guarded struct {
	core.LLMProvider
	monitor *Monitor
}

// Guard wraps llm so every response is charged to m.
func Guard(llm core.LLMProvider, m *Monitor) *Guarded {
	return &Guarded{LLMProvider: llm, monitor: m}
}

// Chat fails fast when the budget is spent; the call that crosses a limit
// still returns its response so in-flight work is not lost.
func (g *Guarded) Chat(ctx context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	if err := g.monitor.Check(); err != nil {
		return core.ChatResponse{}, err
	}
	resp, err := g.LLMProvider.Chat(ctx, req)
	if err != nil {
		return resp, err
	}
	_ = g.monitor.Add(g.CalculateCost(resp.InputTokens, resp.OutputTokens, req.Model), resp.InputTokens+resp.OutputTokens)
	return resp, nil
}
