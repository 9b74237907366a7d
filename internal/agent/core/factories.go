package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
)

// Pipeline names.
const (
	PipelineTeam      = "team"
	PipelineDecompose = "decompose"
)

// ErrUnknownPipeline is returned by NewPipeline for names it does not know.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// PipelineNames lists every pipeline NewPipeline can build.
func PipelineNames() []string { return []string{PipelineTeam, PipelineDecompose} }

// Deps are the shared collaborators every pipeline needs.
type Deps struct {
	Config    *config.Config
	LLM       LLMProvider
	Tools     ToolResolver
	Telemetry *telemetry.Telemetry
}

func (d Deps) buildAgent(m member) (*ResearchAgent, error) {
	var tools []Tool
	if len(m.tools) > 0 {
		if d.Tools == nil {
			return nil, fmt.Errorf("agent %s needs tools but no resolver is configured", m.key)
		}
		var err error
		tools, err = d.Tools.Resolve(m.tools...)
		if err != nil {
			return nil, fmt.Errorf("resolve tools for %s: %w", m.key, err)
		}
	}
	model := d.Config.LLM.Model(m.modelRole)
	if model == "" {
		return nil, fmt.Errorf("no model routed for role %s", m.modelRole)
	}
	maxTokens := 0
	if info, err := d.LLM.GetModelInfo(model); err == nil {
		maxTokens = info.MaxTokens
	}
	return NewResearchAgent(m.key, m.name, m.role, model, tools, d.LLM, d.Telemetry, AgentOptions{
		MaxIterations: d.Config.Agents.MaxIterations,
		Temperature:   d.Config.Agents.Temperature,
		MaxTokens:     maxTokens,
		Timeout:       d.Config.Agents.AgentTimeout,
	}), nil
}

// NewPipeline builds the named pipeline; an empty name selects the team.
func NewPipeline(name string, deps Deps) (Pipeline, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PipelineTeam:
		return NewTeamPipeline(deps)
	case PipelineDecompose:
		return NewDecomposePipeline(deps)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
}

type apiKeyCtxKey struct{}

// WithAPIKey attaches a caller supplied API key that overrides configured keys.
func WithAPIKey(ctx context.Context, key string) context.Context {
	key = strings.TrimSpace(key)
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyCtxKey{}, key)
}

// APIKeyFromContext returns the key set by WithAPIKey.
func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyCtxKey{}).(string)
	return key
}

// MultiProvider routes each model to the provider that configures it.
type MultiProvider struct {
	providers map[string]LLMProvider // model -> provider
	keyed     map[string]bool        // model -> provider has a configured key
	kinds     map[string]string      // model -> provider type
}

// NewLLMProvider creates a provider covering every configured model
func NewLLMProvider(cfg config.LLMConfig) (*MultiProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	mp := &MultiProvider{
		providers: make(map[string]LLMProvider),
		keyed:     make(map[string]bool),
		kinds:     make(map[string]string),
	}
	for _, pname := range cfg.ProviderNames() {
		pc := cfg.Providers[pname]
		var p LLMProvider
		switch pc.Type {
		case "openai":
			p = NewOpenAIProvider(pc)
		case "anthropic":
			p = NewAnthropicProvider(pc)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", pc.Type)
		}
		for _, m := range p.GetAvailableModels() {
			if _, dup := mp.providers[m]; dup {
				return nil, fmt.Errorf("model %s configured by more than one provider", m)
			}
			mp.providers[m] = p
			mp.keyed[m] = strings.TrimSpace(pc.APIKey) != ""
			mp.kinds[m] = pc.Type
		}
	}
	return mp, nil
}

func (m *MultiProvider) provider(model string) (LLMProvider, error) {
	p, ok := m.providers[model]
	if !ok {
		return nil, fmt.Errorf("model %s not configured", model)
	}
	return p, nil
}

func (m *MultiProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	p, err := m.provider(req.Model)
	if err != nil {
		return ChatResponse{}, err
	}
	return p.Chat(ctx, req)
}

func (m *MultiProvider) GetAvailableModels() []string {
	out := make([]string, 0, len(m.providers))
	for name := range m.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *MultiProvider) GetModelInfo(model string) (ModelInfo, error) {
	p, err := m.provider(model)
	if err != nil {
		return ModelInfo{}, err
	}
	return p.GetModelInfo(model)
}

func (m *MultiProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	p, err := m.provider(model)
	if err != nil {
		return 0
	}
	return p.CalculateCost(inputTokens, outputTokens, model)
}

// HasAPIKey reports whether model can be called without a caller supplied key.
func (m *MultiProvider) HasAPIKey(model string) bool { return m.keyed[model] }

// ProviderType returns the provider type ("openai", "anthropic") serving model.
func (m *MultiProvider) ProviderType(model string) string { return m.kinds[model] }

func modelInfos(kind string, models map[string]config.LLMModel) (map[string]ModelInfo, map[string]config.LLMModel) {
	infos := make(map[string]ModelInfo, len(models))
	raw := make(map[string]config.LLMModel, len(models))
	for key, model := range models {
		if model.Name == "" {
			model.Name = key
		}
		name := model.Name
		infos[name] = ModelInfo{
			Name:            name,
			Provider:        kind,
			MaxTokens:       model.MaxTokens,
			CostPer1KInput:  model.CostPer1K,
			CostPer1KOutput: model.CostPer1KOutput,
			SupportsTools:   true,
		}
		raw[name] = model
	}
	return infos, raw
}

func sortedKeys(m map[string]ModelInfo) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func costFor(info ModelInfo, inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * info.CostPer1KOutput
	return inputCost + outputCost
}
