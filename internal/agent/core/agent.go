package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrIterationLimit is returned when the model keeps calling tools past the
// configured number of turns.
var ErrIterationLimit = errors.New("agent stopped due to iteration limit")

var agentTracer trace.Tracer = otel.Tracer("research-agents/internal/agent/core")

// ResearchAgent is an LLM with a persona, a model and a set of tools.
type ResearchAgent struct {
	key         string
	name        string
	role        string
	model       string
	tools       []Tool
	llm         LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
	maxIter     int
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// AgentOptions tune the tool loop.
type AgentOptions struct {
	MaxIterations int
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// NewResearchAgent builds an agent. tools may be empty.
func NewResearchAgent(key, name, role, model string, tools []Tool, llm LLMProvider, tel *telemetry.Telemetry, opts AgentOptions) *ResearchAgent {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 6
	}
	return &ResearchAgent{
		key:         key,
		name:        name,
		role:        role,
		model:       model,
		tools:       tools,
		llm:         llm,
		telemetry:   tel,
		logger:      log.New(log.Writer(), fmt.Sprintf("[AGENT:%s] ", strings.ToUpper(key)), log.LstdFlags),
		maxIter:     opts.MaxIterations,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
	}
}

func (a *ResearchAgent) Key() string   { return a.key }
func (a *ResearchAgent) Name() string  { return a.name }
func (a *ResearchAgent) Model() string { return a.model }

// Info describes the agent for rosters.
func (a *ResearchAgent) Info() AgentInfo {
	names := make([]string, 0, len(a.tools))
	for _, t := range a.tools {
		names = append(names, t.Name())
	}
	return AgentInfo{Key: a.key, Name: a.name, Role: a.role, Tools: names, Model: a.model}
}

// SystemPrompt is the persona sent as the first message.
func (a *ResearchAgent) SystemPrompt() string {
	return systemPrompt(a.name, a.role)
}

// Research runs query through Execute and folds any failure into the
// returned text, so callers always get something to show.
func (a *ResearchAgent) Research(ctx context.Context, query string) (string, AgentResult) {
	res, err := a.Execute(ctx, AgentTask{ID: uuid.NewString(), Key: a.key, Description: query, CreatedAt: time.Now()})
	if err != nil {
		res.Output = "Error in research: " + err.Error()
	}
	return res.Output, res
}

// Execute runs the tool loop until the model answers without tool calls.
func (a *ResearchAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	start := time.Now()
	ctx, span := agentTracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("agent.key", a.key),
		attribute.String("agent.model", a.model),
		attribute.String("task.id", task.ID),
	))
	defer span.End()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := AgentResult{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		AgentType: a.key,
		ModelUsed: a.model,
		CreatedAt: start,
	}
	finish := func(err error) (AgentResult, error) {
		result.ProcessingTime = time.Since(start)
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.logger.Printf("failed after %d iteration(s): %v", result.Iterations, err)
		}
		span.SetAttributes(attribute.Int64("agent.tokens", result.TokensUsed), attribute.Int("agent.iterations", result.Iterations))
		telemetry.ObserveAgent(a.key, result.Success, result.ProcessingTime)
		if a.telemetry != nil {
			a.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
				ID:         result.ID,
				AgentType:  a.key,
				StartTime:  start,
				EndTime:    time.Now(),
				Duration:   result.ProcessingTime,
				Success:    result.Success,
				Error:      result.Error,
				Cost:       result.Cost,
				TokensUsed: result.TokensUsed,
				ModelUsed:  a.model,
			})
		}
		return result, err
	}

	messages := []Message{
		{Role: RoleSystem, Content: a.SystemPrompt()},
		{Role: RoleUser, Content: task.Description},
	}
	specs := toolSpecs(a.tools)
	temp := a.temperature

	for i := 0; i < a.maxIter; i++ {
		resp, err := a.llm.Chat(ctx, ChatRequest{
			Model:       a.model,
			Messages:    messages,
			Tools:       specs,
			Temperature: &temp,
			MaxTokens:   a.maxTokens,
		})
		result.Iterations = i + 1
		if err != nil {
			return finish(fmt.Errorf("llm call: %w", err))
		}
		result.TokensUsed += resp.InputTokens + resp.OutputTokens
		cost := a.llm.CalculateCost(resp.InputTokens, resp.OutputTokens, a.model)
		result.Cost += cost
		if a.telemetry != nil {
			a.telemetry.RecordLLMUsage(a.model, resp.InputTokens, resp.OutputTokens, cost)
		}

		if len(resp.ToolCalls) == 0 {
			result.Output = strings.TrimSpace(resp.Content)
			return finish(nil)
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			out := a.callTool(ctx, call)
			result.ToolCalls = append(result.ToolCalls, call.Name)
			messages = append(messages, Message{Role: RoleTool, Content: out, ToolCallID: call.ID})
		}
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
	}
	return finish(ErrIterationLimit)
}

// callTool never fails the loop: errors go back to the model as text.
func (a *ResearchAgent) callTool(ctx context.Context, call ToolCall) string {
	tool := a.findTool(call.Name)
	if tool == nil {
		return fmt.Sprintf("Error: %s is not a valid tool, try one of [%s].", call.Name, strings.Join(a.Info().Tools, ", "))
	}
	ctx, span := agentTracer.Start(ctx, "tool.call", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	start := time.Now()
	input := toolInput(call.Arguments)
	out, err := tool.Call(ctx, input)
	if a.telemetry != nil {
		ev := telemetry.SourceEvent{ID: call.ID, Source: call.Name, StartTime: start, EndTime: time.Now(), Duration: time.Since(start), Success: err == nil}
		if err != nil {
			ev.Error = err.Error()
		}
		a.telemetry.RecordSourceEvent(ctx, ev)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Printf("tool %s failed: %v", call.Name, err)
		return "Error: " + err.Error()
	}
	return out
}

func (a *ResearchAgent) findTool(name string) Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// parameterized tools publish their own argument schema.
type parameterized interface {
	Parameters() map[string]interface{}
}

func toolSpecs(tools []Tool) []ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		params := map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "search query"},
			},
			"required": []string{"query"},
		}
		if p, ok := t.(parameterized); ok {
			params = p.Parameters()
		}
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: params})
	}
	return specs
}

// toolInput extracts the single string argument from a tool call. Models
// send {"query": "..."} or some other one-field object; anything else is
// passed through untouched.
func toolInput(raw string) string {
	raw = strings.TrimSpace(raw)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		var s string
		if json.Unmarshal([]byte(raw), &s) == nil {
			return s
		}
		return raw
	}
	if q, ok := obj["query"].(string); ok {
		return q
	}
	if len(obj) == 1 {
		for _, v := range obj {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return raw
}
