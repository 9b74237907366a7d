package core

import (
	"context"
	"time"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a provider-neutral chat transcript
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolSpec describes a tool to the model
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON schema object
}

// ChatRequest is a single completion request
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
}

// ChatResponse is the model's reply to a ChatRequest
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int64
	OutputTokens int64
	Model        string
	StopReason   string
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	SupportsTools   bool    `json:"supports_tools"`
}

// LLMProvider interface for different LLM providers
type LLMProvider interface {
	// Chat sends the transcript and returns the next assistant turn
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost prices a call from its token counts
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// Tool is a single-input function an agent may call.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// ToolResolver looks tools up by name.
type ToolResolver interface {
	Resolve(names ...string) ([]Tool, error)
}

// AgentTask represents a task for an agent to execute
type AgentTask struct {
	ID          string        `json:"id"`
	Key         string        `json:"key"` // result key, e.g. "researcher" or "q2"
	Description string        `json:"description"`
	Timeout     time.Duration `json:"timeout"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AgentResult represents the result of an agent execution
type AgentResult struct {
	ID             string        `json:"id"`
	TaskID         string        `json:"task_id"`
	AgentType      string        `json:"agent_type"`
	Success        bool          `json:"success"`
	Output         string        `json:"output"`
	Error          string        `json:"error,omitempty"`
	ToolCalls      []string      `json:"tool_calls,omitempty"`
	Iterations     int           `json:"iterations"`
	ProcessingTime time.Duration `json:"processing_time"`
	Cost           float64       `json:"cost"`
	TokensUsed     int64         `json:"tokens_used"`
	ModelUsed      string        `json:"model_used"`
	CreatedAt      time.Time     `json:"created_at"`
}

// AgentInfo is the public description of a team member.
type AgentInfo struct {
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Role  string   `json:"role"`
	Tools []string `json:"tools"`
	Model string   `json:"model"`
}

// Results collects the text every agent produced, keyed in pipeline order.
type Results struct {
	Order      []string               `json:"order"`
	Outputs    map[string]string      `json:"outputs"`
	Agents     map[string]AgentResult `json:"agents"`
	TokensUsed int64                  `json:"tokens_used"`
	Cost       float64                `json:"cost"`
}

func newResults() Results {
	return Results{Outputs: map[string]string{}, Agents: map[string]AgentResult{}}
}

func (r *Results) add(key string, res AgentResult) {
	if _, ok := r.Outputs[key]; !ok {
		r.Order = append(r.Order, key)
	}
	r.Outputs[key] = res.Output
	r.Agents[key] = res
	r.TokensUsed += res.TokensUsed
	r.Cost += res.Cost
}

// Pipeline turns a topic into results, reporting progress to sink.
type Pipeline interface {
	Name() string
	Roster() []AgentInfo
	Run(ctx context.Context, topic string, sink EventSink) (Results, error)
}
