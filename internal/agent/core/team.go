package core

import (
	"context"
	"fmt"
	"log"

	"github.com/Bhaumik-99/research-agents/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Result keys of the team pipeline.
const (
	KeyResearcher  = "researcher"
	KeyAnalyst     = "analyst"
	KeyNewsTracker = "news_tracker"
	KeySynthesizer = "synthesizer"
	KeySynthesis   = "synthesis"
)

// Tool names agents ask the resolver for. "web" expands to every configured
// web search backend and "reader" to the page fetcher when enabled.
const (
	ToolWikipedia = "wikipedia"
	ToolWeb       = "web"
	ToolNews      = "news"
	ToolReader    = "reader"
)

type member struct {
	key       string
	name      string
	role      string
	modelRole string
	tools     []string
	task      func(topic string) string
}

var teamMembers = []member{
	{KeyResearcher, "Primary Researcher", "Gather comprehensive background information and key facts", config.RoleResearch, []string{ToolWikipedia, ToolWeb, ToolReader}, researcherTask},
	{KeyAnalyst, "Data Analyst", "Analyze trends, statistics, and quantitative aspects", config.RoleAnalysis, []string{ToolWeb, ToolNews}, analystTask},
	{KeyNewsTracker, "News Tracker", "Find recent developments and current events", config.RoleResearch, []string{ToolNews, ToolWeb}, newsTask},
}

var synthesizerMember = member{KeySynthesizer, "Information Synthesizer", "Combine and synthesize findings from all agents", config.RoleSynthesis, nil, nil}

type teamAgent struct {
	agent *ResearchAgent
	task  func(string) string
}

// TeamPipeline runs the researcher, analyst and news tracker, then hands
// their findings to the synthesizer.
type TeamPipeline struct {
	members        []teamAgent
	synthesizer    *ResearchAgent
	parallel       bool
	maxConcurrency int
	logger         *log.Logger
}

// NewTeamPipeline wires the standard team from deps.
func NewTeamPipeline(deps Deps) (*TeamPipeline, error) {
	p := &TeamPipeline{
		parallel:       deps.Config.Agents.Parallel,
		maxConcurrency: deps.Config.Agents.MaxConcurrency,
		logger:         log.New(log.Writer(), "[TEAM] ", log.LstdFlags),
	}
	for _, m := range teamMembers {
		a, err := deps.buildAgent(m)
		if err != nil {
			return nil, err
		}
		p.members = append(p.members, teamAgent{agent: a, task: m.task})
	}
	synth, err := deps.buildAgent(synthesizerMember)
	if err != nil {
		return nil, err
	}
	p.synthesizer = synth
	return p, nil
}

func (p *TeamPipeline) Name() string { return PipelineTeam }

func (p *TeamPipeline) Roster() []AgentInfo {
	out := make([]AgentInfo, 0, len(p.members)+1)
	for _, m := range p.members {
		out = append(out, m.agent.Info())
	}
	return append(out, p.synthesizer.Info())
}

// Run executes phase 1 (fan-out) and phase 2 (synthesis).
func (p *TeamPipeline) Run(ctx context.Context, topic string, sink EventSink) (Results, error) {
	ctx, span := agentTracer.Start(ctx, "research.pipeline", trace.WithAttributes(
		attribute.String("pipeline", PipelineTeam),
		attribute.String("topic", topic),
	))
	defer span.End()

	tracker := newProgressTracker(sink, len(p.members)+1)
	tracker.emit(Event{Type: EventRunStarted, Message: fmt.Sprintf("Starting research on %s", topic)}, false)
	results := newResults()

	outs := make([]AgentResult, len(p.members))
	research := func(ctx context.Context, i int) {
		a := p.members[i].agent
		tracker.emit(Event{Type: EventAgentStarted, Agent: a.Key(), AgentName: a.Name(), Message: fmt.Sprintf("🔍 %s is researching...", a.Name())}, false)
		_, res := a.Research(ctx, p.members[i].task(topic))
		outs[i] = res
		tracker.emit(finishedEvent(a, res), true)
	}

	if p.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.maxConcurrency)
		for i := range p.members {
			i := i
			g.Go(func() error {
				research(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range p.members {
			if ctx.Err() != nil {
				break
			}
			research(ctx, i)
		}
	}
	if err := ctx.Err(); err != nil {
		return results, p.fail(span, tracker, err)
	}
	for i, m := range p.members {
		results.add(m.agent.Key(), outs[i])
	}

	tracker.emit(Event{Type: EventSynthesisStarted, Agent: p.synthesizer.Key(), AgentName: p.synthesizer.Name(), Message: "🔄 Synthesizing findings..."}, false)
	_, res := p.synthesizer.Research(ctx, synthesisPrompt(topic, results.Outputs))
	if err := ctx.Err(); err != nil {
		return results, p.fail(span, tracker, err)
	}
	results.add(KeySynthesis, res)

	span.SetAttributes(attribute.Int64("pipeline.tokens", results.TokensUsed))
	tracker.emit(Event{Type: EventRunCompleted, Message: "Research completed!", Output: res.Output, TokensUsed: results.TokensUsed}, true)
	return results, nil
}

func (p *TeamPipeline) fail(span trace.Span, tracker *progressTracker, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Printf("run aborted: %v", err)
	tracker.emit(Event{Type: EventRunFailed, Message: err.Error()}, false)
	return fmt.Errorf("team pipeline: %w", err)
}

func finishedEvent(a *ResearchAgent, res AgentResult) Event {
	ok := res.Success
	return Event{
		Type:       EventAgentFinished,
		Agent:      a.Key(),
		AgentName:  a.Name(),
		Message:    fmt.Sprintf("%s finished", a.Name()),
		Success:    &ok,
		Output:     res.Output,
		TokensUsed: res.TokensUsed,
		Duration:   res.ProcessingTime,
	}
}
