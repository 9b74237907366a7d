package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAgentEventTracksRatesAndAverages(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
	ctx := context.Background()
	tel.RecordAgentEvent(ctx, AgentEvent{AgentType: "analyst", Success: true, Duration: 2 * time.Second})
	tel.RecordAgentEvent(ctx, AgentEvent{AgentType: "analyst", Success: false, Duration: 4 * time.Second})

	m := tel.GetMetrics()
	if m.AgentExecutions["analyst"] != 2 {
		t.Fatalf("expected 2 executions, got %d", m.AgentExecutions["analyst"])
	}
	if m.AgentSuccessRates["analyst"] != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", m.AgentSuccessRates["analyst"])
	}
	if m.AgentAverageTimes["analyst"] != 3*time.Second {
		t.Fatalf("expected avg 3s, got %v", m.AgentAverageTimes["analyst"])
	}
}

func TestCostSummaryAggregatesModelsAndPipelines(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
	tel.RecordLLMUsage("gpt-3.5-turbo", 1000, 500, 0.25)
	tel.RecordLLMUsage("gpt-3.5-turbo", 10, 10, 0.05)
	tel.RecordRunEvent(context.Background(), RunEvent{ID: "r1", Pipeline: "team", Success: true, Cost: 0.3, EndTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)})

	sum := tel.GetCostSummary()
	if sum.TotalTokens != 1520 {
		t.Fatalf("expected 1520 tokens, got %d", sum.TotalTokens)
	}
	if got := sum.ModelCosts["gpt-3.5-turbo"]; got < 0.2999 || got > 0.3001 {
		t.Fatalf("unexpected model cost %v", got)
	}
	if sum.PipelineCosts["team"] != 0.3 {
		t.Fatalf("unexpected pipeline cost %v", sum.PipelineCosts["team"])
	}
	if sum.DailyCosts["2026-03-01"] != 0.3 {
		t.Fatalf("unexpected daily costs %v", sum.DailyCosts)
	}

	// snapshot must not alias internal state
	sum.ModelCosts["gpt-3.5-turbo"] = 99
	if tel.GetCostSummary().ModelCosts["gpt-3.5-turbo"] == 99 {
		t.Fatalf("cost summary leaked internal map")
	}
}

func TestDisabledTelemetryIgnoresEvents(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: false})
	tel.RecordAgentEvent(context.Background(), AgentEvent{AgentType: "researcher", Success: true})
	if n := tel.GetMetrics().AgentExecutions["researcher"]; n != 0 {
		t.Fatalf("expected no executions recorded, got %d", n)
	}
	tel.Shutdown()
	tel.Shutdown()
}

func TestPerformanceReportListsAgents(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: true})
	tel.RecordAgentEvent(context.Background(), AgentEvent{AgentType: "news_tracker", Success: true, Duration: time.Second})
	tel.RecordSourceEvent(context.Background(), SourceEvent{Source: "wikipedia", Success: true, Duration: time.Millisecond})
	report := tel.GetPerformanceReport()
	for _, want := range []string{"news_tracker: 1 executions", "wikipedia: 1 calls"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

func TestObserveToolIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(toolCalls.WithLabelValues("news_search", "false"))
	ObserveTool("news_search", false)
	if after := testutil.ToFloat64(toolCalls.WithLabelValues("news_search", "false")); after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}
