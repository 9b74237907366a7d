package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_runs_total",
		Help: "Research runs finished, by pipeline and outcome.",
	}, []string{"pipeline", "success"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_run_duration_seconds",
		Help:    "Wall time of finished research runs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"pipeline"})

	agentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_agent_executions_total",
		Help: "Agent executions, by agent and outcome.",
	}, []string{"agent", "success"})

	agentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_agent_duration_seconds",
		Help:    "Agent execution time.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"agent"})

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_llm_tokens_total",
		Help: "LLM tokens consumed, by model and direction.",
	}, []string{"model", "direction"})

	llmCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_llm_cost_usd_total",
		Help: "Estimated LLM spend in USD.",
	}, []string{"model"})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_tool_calls_total",
		Help: "Tool invocations, by tool and outcome.",
	}, []string{"tool", "success"})
)

// ObserveRun records a finished run.
func ObserveRun(pipeline string, success bool, d time.Duration) {
	runsTotal.WithLabelValues(pipeline, strconv.FormatBool(success)).Inc()
	runDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// ObserveAgent records a finished agent execution.
func ObserveAgent(agent string, success bool, d time.Duration) {
	agentExecutions.WithLabelValues(agent, strconv.FormatBool(success)).Inc()
	agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveLLM records token usage and spend of one model call.
func ObserveLLM(model string, inputTokens, outputTokens int64, cost float64) {
	llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if cost > 0 {
		llmCost.WithLabelValues(model).Add(cost)
	}
}

// ObserveTool records one tool call.
func ObserveTool(tool string, success bool) {
	toolCalls.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}
