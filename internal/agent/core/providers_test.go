package core

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

func TestOpenAIProviderChatWithTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer run-key" {
			t.Errorf("expected per-run key, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"wikipedia","arguments":"{\"query\":\"go\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMProvider{
		Type:    "openai",
		APIKey:  "cfg-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Models: map[string]config.LLMModel{
			"gpt-3.5-turbo": {Name: "gpt-3.5-turbo", MaxTokens: 512, CostPer1K: 1, CostPer1KOutput: 2},
		},
	})
	temp := 0.1
	resp, err := p.Chat(WithAPIKey(context.Background(), "run-key"), ChatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Tools:       []ToolSpec{{Name: "wikipedia", Description: "wiki", Parameters: map[string]interface{}{"type": "object"}}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	want := []ToolCall{{ID: "c1", Name: "wikipedia", Arguments: `{"query":"go"}`}}
	if diff := cmp.Diff(want, resp.ToolCalls); diff != "" {
		t.Fatalf("tool calls mismatch (-want +got):\n%s", diff)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 || resp.StopReason != "tool_calls" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got["model"] != "gpt-3.5-turbo" || got["max_tokens"] != float64(512) {
		t.Fatalf("unexpected request %v", got)
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool in request, got %v", got["tools"])
	}
	if cost := p.CalculateCost(1000, 1000, "gpt-3.5-turbo"); cost != 3 {
		t.Fatalf("unexpected cost %v", cost)
	}
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p := NewOpenAIProvider(config.LLMProvider{Models: map[string]config.LLMModel{"m": {Name: "m"}}})
	if _, err := p.Chat(context.Background(), ChatRequest{Model: "m"}); err == nil || !strings.Contains(err.Error(), "API key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestAnthropicProviderChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"Checking news."},{"type":"tool_use","id":"tu_1","name":"news_search","input":{"query":"ai"}}],"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":7,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.LLMProvider{
		Type:    "anthropic",
		APIKey:  "ak",
		BaseURL: srv.URL,
		Models:  map[string]config.LLMModel{"claude-test": {MaxTokens: 1024}},
	})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "claude-test",
		Messages: []Message{{Role: RoleSystem, Content: "persona"}, {Role: RoleUser, Content: "news please"}},
		Tools:    []ToolSpec{{Name: "news_search", Description: "news", Parameters: map[string]interface{}{"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}}, "required": []string{"query"}}}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Checking news." || len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "news_search" {
		t.Fatalf("unexpected response %+v", resp)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Arguments), &args); err != nil || args["query"] != "ai" {
		t.Fatalf("unexpected arguments %q", resp.ToolCalls[0].Arguments)
	}
	if resp.InputTokens != 7 || resp.OutputTokens != 4 {
		t.Fatalf("unexpected usage %+v", resp)
	}
	system, _ := got["system"].([]any)
	if len(system) != 1 || got["max_tokens"] != float64(1024) {
		t.Fatalf("unexpected request %v", got)
	}
}

func TestToAnthropicMessagesMergesToolResults(t *testing.T) {
	system, msgs, err := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "task"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "wikipedia", Arguments: `{"query":"x"}`}, {ID: "b", Name: "web", Arguments: ""}}},
		{Role: RoleTool, ToolCallID: "a", Content: "wiki text"},
		{Role: RoleTool, ToolCallID: "b", Content: "Error: down"},
	})
	if err != nil {
		t.Fatalf("toAnthropicMessages: %v", err)
	}
	if len(system) != 1 || system[0].Text != "sys" {
		t.Fatalf("unexpected system blocks %+v", system)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected user/assistant/user, got %d messages", len(msgs))
	}
	if len(msgs[1].Content) != 2 || len(msgs[2].Content) != 2 {
		t.Fatalf("expected two tool uses and two merged tool results, got %d and %d", len(msgs[1].Content), len(msgs[2].Content))
	}

	if _, _, err := toAnthropicMessages([]Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "x", Arguments: "{broken"}}}}); err == nil {
		t.Fatalf("expected error for malformed tool arguments")
	}
}

func TestMultiProviderRoutesByModel(t *testing.T) {
	mp, err := NewLLMProvider(config.LLMConfig{Providers: map[string]config.LLMProvider{
		"openai":    {Type: "openai", APIKey: "k", Models: map[string]config.LLMModel{"gpt-4o-mini": {Name: "gpt-4o-mini", CostPer1K: 1}}},
		"anthropic": {Type: "anthropic", Models: map[string]config.LLMModel{"claude-haiku": {Name: "claude-haiku", CostPer1KOutput: 4}}},
	}})
	if err != nil {
		t.Fatalf("NewLLMProvider: %v", err)
	}
	if diff := cmp.Diff([]string{"claude-haiku", "gpt-4o-mini"}, mp.GetAvailableModels()); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
	if info, err := mp.GetModelInfo("claude-haiku"); err != nil || info.Provider != "anthropic" {
		t.Fatalf("unexpected info %+v %v", info, err)
	}
	if !mp.HasAPIKey("gpt-4o-mini") || mp.HasAPIKey("claude-haiku") {
		t.Fatalf("unexpected key flags")
	}
	if mp.ProviderType("claude-haiku") != "anthropic" {
		t.Fatalf("unexpected provider type")
	}
	if cost := mp.CalculateCost(0, 1000, "claude-haiku"); cost != 4 {
		t.Fatalf("unexpected cost %v", cost)
	}
	if _, err := mp.Chat(context.Background(), ChatRequest{Model: "nope"}); err == nil {
		t.Fatalf("expected unknown model error")
	}

	_, err = NewLLMProvider(config.LLMConfig{Providers: map[string]config.LLMProvider{
		"a": {Type: "openai", Models: map[string]config.LLMModel{"m": {Name: "m"}}},
		"b": {Type: "openai", Models: map[string]config.LLMModel{"m": {Name: "m"}}},
	}})
	if err == nil {
		t.Fatalf("expected duplicate model error")
	}
	if _, err := NewLLMProvider(config.LLMConfig{Providers: map[string]config.LLMProvider{"x": {Type: "cohere"}}}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}
