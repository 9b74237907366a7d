package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
	"github.com/google/go-cmp/cmp"
)

func TestExecuteRunsToolLoop(t *testing.T) {
	llm := &scriptedLLM{reply: func(req ChatRequest) (ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == RoleTool {
			return ChatResponse{Content: "  Final answer using " + last.Content + "  ", InputTokens: 20, OutputTokens: 10}, nil
		}
		return ChatResponse{
			ToolCalls:   []ToolCall{{ID: "call_1", Name: "wikipedia", Arguments: `{"query":"quantum computing"}`}},
			InputTokens: 10, OutputTokens: 5,
		}, nil
	}}
	wiki := &fakeTool{name: "wikipedia", out: "Page: Quantum computing"}
	tel := telemetry.NewTelemetry(config.TelemetryConfig{Enabled: true})
	a := NewResearchAgent("researcher", "Primary Researcher", "Gather facts", "fake", []Tool{wiki}, llm, tel, AgentOptions{MaxIterations: 3})

	res, err := a.Execute(context.Background(), AgentTask{ID: "t1", Description: "Research quantum computing"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "Final answer using Page: Quantum computing" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if res.TokensUsed != 45 || res.Iterations != 2 {
		t.Fatalf("unexpected usage tokens=%d iterations=%d", res.TokensUsed, res.Iterations)
	}
	if diff := cmp.Diff([]string{"quantum computing"}, wiki.seen); diff != "" {
		t.Fatalf("tool input mismatch (-want +got):\n%s", diff)
	}

	reqs := llm.requests()
	if !strings.HasPrefix(systemOf(reqs[0]), "You are Primary Researcher, a specialized research agent with the role: Gather facts.") {
		t.Fatalf("unexpected system prompt %q", systemOf(reqs[0]))
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "wikipedia" {
		t.Fatalf("expected wikipedia tool spec, got %+v", reqs[0].Tools)
	}
	second := reqs[1].Messages
	if second[2].Role != RoleAssistant || len(second[2].ToolCalls) != 1 || second[3].ToolCallID != "call_1" {
		t.Fatalf("unexpected transcript %+v", second)
	}
	if tel.GetMetrics().ToolCalls["wikipedia"] != 1 {
		t.Fatalf("tool call not recorded in telemetry")
	}
}

func TestToolErrorsAreFedBackToModel(t *testing.T) {
	llm := &scriptedLLM{reply: func(req ChatRequest) (ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == RoleTool {
			return ChatResponse{Content: "saw: " + last.Content}, nil
		}
		return ChatResponse{ToolCalls: []ToolCall{
			{ID: "1", Name: "news", Arguments: `{"query":"x"}`},
			{ID: "2", Name: "calculator", Arguments: `{}`},
		}}, nil
	}}
	news := &fakeTool{name: "news", err: errors.New("quota exceeded")}
	a := NewResearchAgent("analyst", "Data Analyst", "Analyze", "fake", []Tool{news}, llm, nil, AgentOptions{})

	res, err := a.Execute(context.Background(), AgentTask{Description: "go"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(res.Output, "saw: Error: calculator is not a valid tool") {
		t.Fatalf("unexpected output %q", res.Output)
	}
	msgs := llm.requests()[1].Messages
	if msgs[3].Content != "Error: quota exceeded" {
		t.Fatalf("expected tool error text, got %q", msgs[3].Content)
	}
}

func TestResearchReportsIterationLimit(t *testing.T) {
	llm := &scriptedLLM{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{ToolCalls: []ToolCall{{ID: "x", Name: "web", Arguments: `{"query":"again"}`}}}, nil
	}}
	a := NewResearchAgent("news_tracker", "News Tracker", "News", "fake", []Tool{&fakeTool{name: "web"}}, llm, nil, AgentOptions{MaxIterations: 2})

	out, res := a.Research(context.Background(), "loop forever")
	if out != "Error in research: agent stopped due to iteration limit" {
		t.Fatalf("unexpected output %q", out)
	}
	if res.Success || res.Iterations != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := a.Execute(context.Background(), AgentTask{}); !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
}

func TestResearchWrapsLLMErrors(t *testing.T) {
	llm := &scriptedLLM{reply: func(req ChatRequest) (ChatResponse, error) {
		return ChatResponse{}, errors.New("401 invalid api key")
	}}
	a := NewResearchAgent("researcher", "Primary Researcher", "Gather", "fake", nil, llm, nil, AgentOptions{})
	out, _ := a.Research(context.Background(), "topic")
	if out != "Error in research: llm call: 401 invalid api key" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestToolInput(t *testing.T) {
	cases := map[string]string{
		`{"query":"solar power"}`:          "solar power",
		`{"url":"https://example.com"}`:     "https://example.com",
		`"plain string"`:                    "plain string",
		`not json at all`:                   "not json at all",
		`{"a":"1","b":"2"}`:                 `{"a":"1","b":"2"}`,
		`  {"query":"trimmed", "n": 3}   `:  "trimmed",
	}
	for in, want := range cases {
		if got := toolInput(in); got != want {
			t.Fatalf("toolInput(%s) = %q, want %q", in, got, want)
		}
	}
}
