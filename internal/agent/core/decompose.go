package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/planner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Result keys of the decompose pipeline. Answers are stored under q1..qN.
const (
	KeyPlan       = "plan"
	KeySummary    = "summary"
	KeyDecomposer = "decomposer"
	KeySummarizer = "summarizer"
)

var (
	decomposerMember = member{KeyDecomposer, "Research Planner", "Break research topics into focused, answerable subquestions", config.RolePlanning, nil, nil}
	subResearcher    = member{KeyResearcher, "Primary Researcher", "Gather comprehensive background information and key facts", config.RoleResearch, []string{ToolWikipedia, ToolWeb, ToolReader, ToolNews}, nil}
	summarizerMember = member{KeySummarizer, "Information Synthesizer", "Combine and synthesize findings from all agents", config.RoleSynthesis, nil, nil}
)

// DecomposePipeline plans subquestions, researches each in parallel and
// summarizes the answers.
type DecomposePipeline struct {
	decomposer      *ResearchAgent
	researcher      *ResearchAgent
	summarizer      *ResearchAgent
	maxSubquestions int
	maxConcurrency  int
	logger          *log.Logger
}

// NewDecomposePipeline wires the planner, researcher and summarizer from deps.
func NewDecomposePipeline(deps Deps) (*DecomposePipeline, error) {
	p := &DecomposePipeline{
		maxSubquestions: deps.Config.Agents.MaxSubquestions,
		maxConcurrency:  deps.Config.Agents.MaxConcurrency,
		logger:          log.New(log.Writer(), "[DECOMPOSE] ", log.LstdFlags),
	}
	var err error
	if p.decomposer, err = deps.buildAgent(decomposerMember); err != nil {
		return nil, err
	}
	if p.researcher, err = deps.buildAgent(subResearcher); err != nil {
		return nil, err
	}
	if p.summarizer, err = deps.buildAgent(summarizerMember); err != nil {
		return nil, err
	}
	if p.maxSubquestions < 1 {
		p.maxSubquestions = 4
	}
	return p, nil
}

func (p *DecomposePipeline) Name() string { return PipelineDecompose }

func (p *DecomposePipeline) Roster() []AgentInfo {
	return []AgentInfo{p.decomposer.Info(), p.researcher.Info(), p.summarizer.Info()}
}

// Run executes plan, parallel research and summary.
func (p *DecomposePipeline) Run(ctx context.Context, topic string, sink EventSink) (Results, error) {
	ctx, span := agentTracer.Start(ctx, "research.pipeline", trace.WithAttributes(
		attribute.String("pipeline", PipelineDecompose),
		attribute.String("topic", topic),
	))
	defer span.End()

	// decompose + up to max answers + summary; shrunk once the plan is known
	tracker := newProgressTracker(sink, p.maxSubquestions+2)
	tracker.emit(Event{Type: EventRunStarted, Message: fmt.Sprintf("Starting research on %s", topic)}, false)
	results := newResults()

	d := p.decomposer
	tracker.emit(Event{Type: EventAgentStarted, Agent: d.Key(), AgentName: d.Name(), Message: fmt.Sprintf("🔍 %s is researching...", d.Name())}, false)
	reply, planRes := d.Research(ctx, decomposePrompt(topic, p.maxSubquestions))
	if err := ctx.Err(); err != nil {
		return results, p.fail(span, tracker, err)
	}
	questions := []string{topic}
	if planRes.Success {
		questions = planner.Subquestions(reply, topic, p.maxSubquestions)
	}
	planRes.Output = numbered(questions)
	results.add(KeyPlan, planRes)
	tracker.resize(len(questions) + 2)
	tracker.emit(finishedEvent(d, planRes), true)

	answers := make([]AgentResult, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)
	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			r := p.researcher
			tracker.emit(Event{Type: EventAgentStarted, Agent: questionKey(i), AgentName: r.Name(), Message: fmt.Sprintf("🔍 %s is researching: %s", r.Name(), q)}, false)
			_, res := r.Research(gctx, subquestionTask(topic, q))
			answers[i] = res
			ev := finishedEvent(r, res)
			ev.Agent = questionKey(i)
			tracker.emit(ev, true)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, p.fail(span, tracker, err)
	}
	texts := make([]string, len(answers))
	for i, a := range answers {
		results.add(questionKey(i), a)
		texts[i] = a.Output
	}

	s := p.summarizer
	tracker.emit(Event{Type: EventSynthesisStarted, Agent: s.Key(), AgentName: s.Name(), Message: "🔄 Synthesizing findings..."}, false)
	_, res := s.Research(ctx, summaryPrompt(topic, questions, texts))
	if err := ctx.Err(); err != nil {
		return results, p.fail(span, tracker, err)
	}
	results.add(KeySummary, res)

	span.SetAttributes(attribute.Int("pipeline.subquestions", len(questions)), attribute.Int64("pipeline.tokens", results.TokensUsed))
	tracker.emit(Event{Type: EventRunCompleted, Message: "Research completed!", Output: res.Output, TokensUsed: results.TokensUsed}, true)
	return results, nil
}

func (p *DecomposePipeline) fail(span trace.Span, tracker *progressTracker, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Printf("run aborted: %v", err)
	tracker.emit(Event{Type: EventRunFailed, Message: err.Error()}, false)
	return fmt.Errorf("decompose pipeline: %w", err)
}

func questionKey(i int) string { return fmt.Sprintf("q%d", i+1) }

func numbered(qs []string) string {
	var b strings.Builder
	for i, q := range qs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, q)
	}
	return b.String()
}
