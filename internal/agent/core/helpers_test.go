package core

import (
	"context"
	"strings"
	"sync"

	"github.com/Bhaumik-99/research-agents/config"
)

// scriptedLLM answers with a function of the request and records every call.
type scriptedLLM struct {
	mu    sync.Mutex
	reply func(req ChatRequest) (ChatResponse, error)
	reqs  []ChatRequest
}

func (s *scriptedLLM) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return ChatResponse{}, err
	}
	return s.reply(req)
}

func (s *scriptedLLM) requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.reqs...)
}

func (s *scriptedLLM) GetAvailableModels() []string { return []string{"fake"} }

func (s *scriptedLLM) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model, CostPer1KInput: 1, CostPer1KOutput: 2, MaxTokens: 256}, nil
}

func (s *scriptedLLM) CalculateCost(in, out int64, model string) float64 {
	return float64(in)/1000 + float64(out)/1000*2
}

// fakeTool records its inputs.
type fakeTool struct {
	name string
	mu   sync.Mutex
	seen []string
	out  string
	err  error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }

func (f *fakeTool) Call(ctx context.Context, input string) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, input)
	f.mu.Unlock()
	return f.out, f.err
}

// fakeResolver hands out one fakeTool per requested name.
type fakeResolver struct {
	mu    sync.Mutex
	tools map[string]*fakeTool
}

func (r *fakeResolver) Resolve(names ...string) ([]Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]*fakeTool{}
	}
	var out []Tool
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			t = &fakeTool{name: n, out: n + " result"}
			r.tools[n] = t
		}
		out = append(out, t)
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{Fallback: "fake"}},
		Agents: config.AgentsConfig{
			Parallel:        true,
			MaxConcurrency:  3,
			MaxIterations:   4,
			MaxSubquestions: 3,
			Temperature:     0.1,
		},
	}
}

// eventLog is a concurrency safe EventSink.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func systemOf(req ChatRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[0].Content
}

func lastUser(req ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func persona(req ChatRequest) string {
	s := systemOf(req)
	s = strings.TrimPrefix(s, "You are ")
	if i := strings.Index(s, ","); i > 0 {
		return s[:i]
	}
	return s
}
