package telemetry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
)

// Telemetry keeps in-process run, agent and tool statistics plus cost totals
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
	stop        chan struct{}
	stopOnce    sync.Once
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns          int64         `json:"total_runs"`
	SuccessfulRuns     int64         `json:"successful_runs"`
	FailedRuns         int64         `json:"failed_runs"`
	AverageRunDuration time.Duration `json:"average_run_duration"`

	// Agent metrics
	AgentExecutions   map[string]int64         `json:"agent_executions"`
	AgentSuccessRates map[string]float64       `json:"agent_success_rates"`
	AgentAverageTimes map[string]time.Duration `json:"agent_average_times"`

	// LLM metrics
	LLMRequests   map[string]int64 `json:"llm_requests"`
	LLMTokensUsed map[string]int64 `json:"llm_tokens_used"`

	// Tool metrics
	ToolCalls        map[string]int64         `json:"tool_calls"`
	ToolSuccessRates map[string]float64       `json:"tool_success_rates"`
	ToolAverageTimes map[string]time.Duration `json:"tool_average_times"`
}

// CostTracker tracks costs across models, pipelines and days
type CostTracker struct {
	DailyCosts    map[string]float64 // yyyy-mm-dd -> cost
	PipelineCosts map[string]float64 // pipeline -> cost
	ModelCosts    map[string]float64 // model -> cost
	TotalCost     float64
	TotalTokens   int64
}

// RunEvent represents a finished research run
type RunEvent struct {
	ID         string
	Topic      string
	Pipeline   string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	AgentsUsed []string
}

// AgentEvent represents an agent execution event
type AgentEvent struct {
	ID         string
	AgentType  string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// SourceEvent represents a tool call against an external source
type SourceEvent struct {
	ID        string
	Source    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Success   bool
	Error     string
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost     float64            `json:"total_cost"`
	TotalTokens   int64              `json:"total_tokens"`
	DailyCosts    map[string]float64 `json:"daily_costs"`
	ModelCosts    map[string]float64 `json:"model_costs"`
	PipelineCosts map[string]float64 `json:"pipeline_costs"`
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentExecutions:   make(map[string]int64),
			AgentSuccessRates: make(map[string]float64),
			AgentAverageTimes: make(map[string]time.Duration),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
			ToolCalls:         make(map[string]int64),
			ToolSuccessRates:  make(map[string]float64),
			ToolAverageTimes:  make(map[string]time.Duration),
		},
		costTracker: &CostTracker{
			DailyCosts:    make(map[string]float64),
			PipelineCosts: make(map[string]float64),
			ModelCosts:    make(map[string]float64),
		},
		stop: make(chan struct{}),
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
	}
	return t
}

// RecordRunEvent records a complete research run
func (t *Telemetry) RecordRunEvent(ctx context.Context, event RunEvent) {
	ObserveRun(event.Pipeline, event.Success, event.Duration)
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}
	t.metrics.AverageRunDuration = runningAvg(t.metrics.AverageRunDuration, event.Duration, t.metrics.TotalRuns)

	if t.config.CostTracking {
		day := event.EndTime
		if day.IsZero() {
			day = time.Now()
		}
		t.costTracker.DailyCosts[day.UTC().Format("2006-01-02")] += event.Cost
		t.costTracker.PipelineCosts[event.Pipeline] += event.Cost
	}

	t.logger.Printf("Run Event: ID=%s, Pipeline=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.ID, event.Pipeline, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordAgentEvent records an agent execution event
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentExecutions[event.AgentType]++
	executions := t.metrics.AgentExecutions[event.AgentType]
	t.metrics.AgentSuccessRates[event.AgentType] = runningRate(t.metrics.AgentSuccessRates[event.AgentType], event.Success, executions)
	t.metrics.AgentAverageTimes[event.AgentType] = runningAvg(t.metrics.AgentAverageTimes[event.AgentType], event.Duration, executions)

	t.logger.Printf("Agent Event: Type=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.AgentType, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordLLMUsage records one model call
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	ObserveLLM(model, inputTokens, outputTokens, cost)
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[model]++
	t.metrics.LLMTokensUsed[model] += inputTokens + outputTokens
	t.costTracker.TotalTokens += inputTokens + outputTokens
	if t.config.CostTracking {
		t.costTracker.TotalCost += cost
		t.costTracker.ModelCosts[model] += cost
	}
}

// RecordSourceEvent records a tool call
func (t *Telemetry) RecordSourceEvent(ctx context.Context, event SourceEvent) {
	ObserveTool(event.Source, event.Success)
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.ToolCalls[event.Source]++
	calls := t.metrics.ToolCalls[event.Source]
	t.metrics.ToolSuccessRates[event.Source] = runningRate(t.metrics.ToolSuccessRates[event.Source], event.Success, calls)
	t.metrics.ToolAverageTimes[event.Source] = runningAvg(t.metrics.ToolAverageTimes[event.Source], event.Duration, calls)
}

func runningAvg(avg, sample time.Duration, n int64) time.Duration {
	if n <= 1 {
		return sample
	}
	return (avg*time.Duration(n-1) + sample) / time.Duration(n)
}

func runningRate(rate float64, ok bool, n int64) float64 {
	hits := rate * float64(n-1)
	if ok {
		hits++
	}
	return hits / float64(n)
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := *t.metrics
	m.AgentExecutions = copyMap(t.metrics.AgentExecutions)
	m.AgentSuccessRates = copyMap(t.metrics.AgentSuccessRates)
	m.AgentAverageTimes = copyMap(t.metrics.AgentAverageTimes)
	m.LLMRequests = copyMap(t.metrics.LLMRequests)
	m.LLMTokensUsed = copyMap(t.metrics.LLMTokensUsed)
	m.ToolCalls = copyMap(t.metrics.ToolCalls)
	m.ToolSuccessRates = copyMap(t.metrics.ToolSuccessRates)
	m.ToolAverageTimes = copyMap(t.metrics.ToolAverageTimes)
	return m
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return CostSummary{
		TotalCost:     t.costTracker.TotalCost,
		TotalTokens:   t.costTracker.TotalTokens,
		DailyCosts:    copyMap(t.costTracker.DailyCosts),
		ModelCosts:    copyMap(t.costTracker.ModelCosts),
		PipelineCosts: copyMap(t.costTracker.PipelineCosts),
	}
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			metrics := t.GetMetrics()
			costs := t.GetCostSummary()
			t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
				metrics.SuccessfulRuns, metrics.TotalRuns,
				metrics.AverageRunDuration, costs.TotalCost, costs.TotalTokens)
		}
	}
}

// Shutdown stops background logging and prints a final report
func (t *Telemetry) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stop)
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()
		t.logger.Printf("Final Report: runs=%d ok=%d failed=%d cost=$%.4f tokens=%d",
			metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns, costs.TotalCost, costs.TotalTokens)
	})
}

// GetPerformanceReport returns a human readable report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	var b strings.Builder
	fmt.Fprintf(&b, "=== PERFORMANCE REPORT ===\n")
	fmt.Fprintf(&b, "Runs: %d (%d ok, %d failed), avg %v\n", metrics.TotalRuns, metrics.SuccessfulRuns, metrics.FailedRuns, metrics.AverageRunDuration)
	fmt.Fprintf(&b, "Total Cost: $%.4f, Total Tokens: %d\n", costs.TotalCost, costs.TotalTokens)

	b.WriteString("\nAgent Performance:\n")
	for _, agent := range sortedKeys(metrics.AgentExecutions) {
		fmt.Fprintf(&b, "  %s: %d executions, %.2f%% success, %v avg time\n",
			agent, metrics.AgentExecutions[agent], metrics.AgentSuccessRates[agent]*100, metrics.AgentAverageTimes[agent])
	}
	b.WriteString("\nLLM Usage:\n")
	for _, model := range sortedKeys(metrics.LLMRequests) {
		fmt.Fprintf(&b, "  %s: %d requests, %d tokens, $%.4f\n",
			model, metrics.LLMRequests[model], metrics.LLMTokensUsed[model], costs.ModelCosts[model])
	}
	b.WriteString("\nTool Performance:\n")
	for _, tool := range sortedKeys(metrics.ToolCalls) {
		fmt.Fprintf(&b, "  %s: %d calls, %.2f%% success, %v avg time\n",
			tool, metrics.ToolCalls[tool], metrics.ToolSuccessRates[tool]*100, metrics.ToolAverageTimes[tool])
	}
	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
