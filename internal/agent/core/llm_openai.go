package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIProvider implements LLMProvider for OpenAI compatible endpoints
type OpenAIProvider struct {
	config    config.LLMProvider
	models    map[string]ModelInfo
	rawModels map[string]config.LLMModel
	client    *openai.Client
	apiKey    string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	models, raw := modelInfos("openai", cfg.Models)
	p := &OpenAIProvider{
		config:    cfg,
		models:    models,
		rawModels: raw,
		apiKey:    cfg.APIKey,
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	p.client = p.newClient(p.apiKey)
	return p
}

func (p *OpenAIProvider) newClient(key string) *openai.Client {
	oc := openai.DefaultConfig(key)
	if p.config.BaseURL != "" {
		oc.BaseURL = p.config.BaseURL
	}
	timeout := p.config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc)
}

// Chat sends one chat completion request, tools included
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, span := agentTracer.Start(ctx, "llm.chat", trace.WithAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", req.Model),
	))
	defer span.End()

	client := p.client
	if key := APIKeyFromContext(ctx); key != "" && key != p.apiKey {
		client = p.newClient(key)
	} else if p.apiKey == "" {
		return ChatResponse{}, fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.rawModels[req.Model]
	if !ok {
		return ChatResponse{}, fmt.Errorf("model %s not configured", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	temperature := m.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := m.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	creq := openai.ChatCompletionRequest{
		Model:       apiModel,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	retries := p.config.MaxRetries
	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err = client.CreateChatCompletion(ctx, creq)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt < retries {
			select {
			case <-time.After(300 * time.Millisecond * time.Duration(1<<attempt)):
			case <-ctx.Done():
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai chat: no choices")
	}

	choice := resp.Choices[0]
	out := ChatResponse{
		Content:      choice.Message.Content,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		Model:        req.Model,
		StopReason:   string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	span.SetAttributes(attribute.Int64("llm.input_tokens", out.InputTokens), attribute.Int64("llm.output_tokens", out.OutputTokens))
	return out, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, om)
	}
	return out
}

// GetAvailableModels returns available models
func (p *OpenAIProvider) GetAvailableModels() []string { return sortedKeys(p.models) }

// GetModelInfo returns information about a specific model
func (p *OpenAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the cost for a given number of tokens
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	return costFor(info, inputTokens, outputTokens)
}
