package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultAnthropicMaxTokens = 2048

// AnthropicProvider implements LLMProvider for the Anthropic Messages API
type AnthropicProvider struct {
	config    config.LLMProvider
	models    map[string]ModelInfo
	rawModels map[string]config.LLMModel
	client    anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg config.LLMProvider) *AnthropicProvider {
	models, raw := modelInfos("anthropic", cfg.Models)
	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	opts = append(opts, option.WithRequestTimeout(timeout))
	return &AnthropicProvider{
		config:    cfg,
		models:    models,
		rawModels: raw,
		client:    anthropic.NewClient(opts...),
	}
}

// Chat sends one Messages request, tools included
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, span := agentTracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.provider", "anthropic"),
		attribute.String("llm.model", req.Model),
	))
	defer span.End()

	m, ok := p.rawModels[req.Model]
	if !ok {
		return ChatResponse{}, fmt.Errorf("model %s not configured", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	maxTokens := int64(m.MaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	system, messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return ChatResponse{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(apiModel),
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    system,
	}
	temperature := m.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params.Temperature = anthropic.Float(temperature)
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	var opts []option.RequestOption
	if key := APIKeyFromContext(ctx); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}

	msg, err := p.client.Messages.New(ctx, params, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, fmt.Errorf("anthropic chat: %w", err)
	}

	out := ChatResponse{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		Model:        req.Model,
		StopReason:   string(msg.StopReason),
	}
	var text []string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, b.Text)
		case anthropic.ToolUseBlock:
			args := string(b.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	out.Content = strings.Join(text, "")
	span.SetAttributes(attribute.Int64("llm.input_tokens", out.InputTokens), attribute.Int64("llm.output_tokens", out.OutputTokens))
	return out, nil
}

// toAnthropicMessages lifts system turns into system blocks and merges
// consecutive same-role turns, since the API requires strict alternation.
// Tool results travel as user turns.
func toAnthropicMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam
	for _, m := range msgs {
		var param anthropic.MessageParam
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
			continue
		case RoleUser:
			param = anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
		case RoleTool:
			param = anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, strings.HasPrefix(m.Content, "Error:")))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, nil, fmt.Errorf("tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			param = anthropic.NewAssistantMessage(blocks...)
		default:
			return nil, nil, fmt.Errorf("unsupported role: %s", m.Role)
		}
		if n := len(out); n > 0 && out[n-1].Role == param.Role {
			out[n-1].Content = append(out[n-1].Content, param.Content...)
			continue
		}
		out = append(out, param)
	}
	return system, out, nil
}

func toAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if props, ok := s.Parameters["properties"].(map[string]interface{}); ok {
			schema.Properties = props
		}
		switch req := s.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []interface{}:
			for _, r := range req {
				if name, ok := r.(string); ok {
					schema.Required = append(schema.Required, name)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

// GetAvailableModels returns available models
func (p *AnthropicProvider) GetAvailableModels() []string { return sortedKeys(p.models) }

// GetModelInfo returns information about a specific model
func (p *AnthropicProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the cost for a given number of tokens
func (p *AnthropicProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	return costFor(info, inputTokens, outputTokens)
}
