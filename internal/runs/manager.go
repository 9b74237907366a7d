// Package runs owns the lifecycle of research runs: validation, scheduling,
// progress fan-out and persistence of the finished report.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
	"github.com/Bhaumik-99/research-agents/internal/budget"
	"github.com/Bhaumik-99/research-agents/internal/helpers"
	"github.com/Bhaumik-99/research-agents/internal/queue/streams"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/runtime"
	"github.com/Bhaumik-99/research-agents/internal/search"
	"github.com/Bhaumik-99/research-agents/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var runsTracer = otel.Tracer("research-agents/internal/runs")

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid research request")
	// ErrFinished is returned when cancelling a run that already ended.
	ErrFinished = errors.New("run already finished")
)

// ValidationError carries a message meant for the end user.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Request asks for a new run.
type Request struct {
	Topic    string        `json:"topic"`
	Pipeline string        `json:"pipeline"`
	APIKey   string        `json:"api_key,omitempty"`
	Budget   budget.Config `json:"budget,omitempty"`
}

// Snapshot is a point in time view of a run.
type Snapshot struct {
	store.Run
	Report *report.Report `json:"report,omitempty"`
}

// keyChecker is implemented by core.MultiProvider.
type keyChecker interface {
	HasAPIKey(model string) bool
	ProviderType(model string) string
}

// EventSource reads run events recorded by any instance; *streams.Consumer implements it.
type EventSource interface {
	Replay(ctx context.Context, runID string) ([]streams.Message, error)
	Tail(ctx context.Context, runID, fromID string, fn func(streams.Message) error) error
}

// PipelineFactory builds a pipeline by name.
type PipelineFactory func(name string, deps core.Deps) (core.Pipeline, error)

// Options wires a Manager. Store is required; Index, Publisher and Consumer are optional.
type Options struct {
	Config      *config.Config
	LLM         core.LLMProvider
	Tools       core.ToolResolver
	Telemetry   *telemetry.Telemetry
	Store       store.RunStore
	Index       *search.Index
	Publisher   *streams.Publisher
	Consumer    EventSource
	NewPipeline PipelineFactory
	Logger      *log.Logger
}

// Manager runs pipelines in the background and tracks their progress.
type Manager struct {
	opts   Options
	cfg    *config.Config
	sem    *semaphore.Weighted
	logger *log.Logger
	now    func() time.Time

	mu       sync.RWMutex
	runs     map[string]*liveRun
	finished []string
	wg       sync.WaitGroup
}

// maxRetained bounds how many finished runs stay in memory with their history.
const maxRetained = 200

func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("runs: config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("runs: store is required")
	}
	if opts.LLM == nil {
		return nil, fmt.Errorf("runs: llm provider is required")
	}
	if opts.NewPipeline == nil {
		opts.NewPipeline = core.NewPipeline
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[RUNS] ", log.LstdFlags)
	}
	limit := opts.Config.Server.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	return &Manager{
		opts:   opts,
		cfg:    opts.Config,
		sem:    semaphore.NewWeighted(int64(limit)),
		logger: opts.Logger,
		now:    func() time.Time { return time.Now().UTC() },
		runs:   make(map[string]*liveRun),
	}, nil
}

func (m *Manager) deps() core.Deps {
	return core.Deps{Config: m.cfg, LLM: m.opts.LLM, Tools: m.opts.Tools, Telemetry: m.opts.Telemetry}
}

// Roster returns the agents of every pipeline keyed by pipeline name.
func (m *Manager) Roster() map[string][]core.AgentInfo {
	out := make(map[string][]core.AgentInfo)
	for _, name := range core.PipelineNames() {
		p, err := m.opts.NewPipeline(name, m.deps())
		if err != nil {
			m.logger.Printf("roster for %s: %v", name, err)
			continue
		}
		out[name] = p.Roster()
	}
	return out
}

// Tools lists every tool agents can be given, when the resolver can enumerate them.
func (m *Manager) Tools() []string {
	if lister, ok := m.opts.Tools.(interface{ Names() []string }); ok {
		return lister.Names()
	}
	return nil
}

// Validate normalises req and checks it can be served.
func (m *Manager) Validate(req Request) (Request, error) {
	req.Topic = helpers.CleanTopic(req.Topic)
	if req.Topic == "" {
		return req, &ValidationError{Msg: "Please enter a research topic"}
	}
	req.Pipeline = strings.ToLower(strings.TrimSpace(req.Pipeline))
	if req.Pipeline == "" {
		req.Pipeline = core.PipelineTeam
	}
	known := false
	for _, name := range core.PipelineNames() {
		if name == req.Pipeline {
			known = true
		}
	}
	if !known {
		return req, &ValidationError{Msg: fmt.Sprintf("Unknown pipeline %q, choose one of %s", req.Pipeline, strings.Join(core.PipelineNames(), ", "))}
	}
	req.Budget = budget.Merge(budget.FromLimits(m.cfg.Agents.MaxRunCostUSD, m.cfg.Agents.MaxRunTokens), req.Budget)
	if err := req.Budget.Validate(); err != nil {
		return req, &ValidationError{Msg: "Invalid budget: " + err.Error()}
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		if kc, ok := m.opts.LLM.(keyChecker); ok {
			for _, role := range []string{config.RoleResearch, config.RoleAnalysis, config.RoleSynthesis, config.RolePlanning} {
				model := m.cfg.LLM.Model(role)
				if model != "" && !kc.HasAPIKey(model) {
					return req, &ValidationError{Msg: fmt.Sprintf("Please provide your %s API key", providerLabel(kc.ProviderType(model)))}
				}
			}
		}
	}
	return req, nil
}

func providerLabel(kind string) string {
	switch kind {
	case "openai", "":
		return "OpenAI"
	case "anthropic":
		return "Anthropic"
	default:
		return kind
	}
}

// Start validates req, records the run and launches it in the background.
func (m *Manager) Start(ctx context.Context, req Request) (store.Run, error) {
	req, err := m.Validate(req)
	if err != nil {
		return store.Run{}, err
	}
	deps := m.deps()
	if !req.Budget.IsZero() {
		deps.LLM = budget.Guard(deps.LLM, budget.NewMonitor(req.Budget))
	}
	pipe, err := m.opts.NewPipeline(req.Pipeline, deps)
	if err != nil {
		return store.Run{}, fmt.Errorf("build %s pipeline: %w", req.Pipeline, err)
	}
	rec := store.Run{
		ID:        uuid.NewString(),
		Topic:     req.Topic,
		Pipeline:  pipe.Name(),
		Status:    store.StatusPending,
		CreatedAt: m.now(),
	}
	if err := m.opts.Store.CreateRun(ctx, rec); err != nil {
		return store.Run{}, fmt.Errorf("create run: %w", err)
	}

	timeout := m.cfg.Server.RunTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	runCtx = core.WithAPIKey(runCtx, req.APIKey)
	subject, hasSubject := runtime.SubjectFromContext(ctx)
	if hasSubject {
		runCtx = runtime.ContextWithSubject(runCtx, subject)
	}
	r := newLiveRun(rec, cancel, m.cfg.Server.EventBuffer)

	m.mu.Lock()
	m.runs[rec.ID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.execute(runCtx, r, pipe, timeout)
	}()
	if hasSubject {
		m.logger.Printf("run %s started by %s: pipeline=%s topic=%q", rec.ID, subject, rec.Pipeline, rec.Topic)
	} else {
		m.logger.Printf("run %s started: pipeline=%s topic=%q", rec.ID, rec.Pipeline, rec.Topic)
	}
	return rec, nil
}

func (m *Manager) execute(ctx context.Context, r *liveRun, pipe core.Pipeline, timeout time.Duration) {
	ctx, span := runsTracer.Start(ctx, "research.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", r.id), attribute.String("run.pipeline", pipe.Name()))
	if sub, ok := runtime.SubjectFromContext(ctx); ok {
		span.SetAttributes(attribute.String("run.subject", sub))
	}

	if !m.sem.TryAcquire(1) {
		m.setStatus(r, store.StatusQueued)
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.finish(ctx, r, core.Results{}, err, timeout, time.Time{})
			return
		}
	}
	defer m.sem.Release(1)

	started := m.now()
	r.mu.Lock()
	r.rec.StartedAt = &started
	r.mu.Unlock()
	m.setStatus(r, store.StatusRunning)

	sink := core.EventSinkFunc(func(e core.Event) {
		e.RunID = r.id
		if e.Terminal() {
			r.holdTerminal(e)
			return
		}
		m.broadcast(r, e)
	})
	res, err := pipe.Run(ctx, r.topic(), sink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.finish(ctx, r, res, err, timeout, started)
}

// finish persists the outcome and only then releases the terminal event,
// so a subscriber that sees run_completed can fetch the report.
func (m *Manager) finish(ctx context.Context, r *liveRun, res core.Results, runErr error, timeout time.Duration, started time.Time) {
	finished := m.now()
	status := store.StatusCompleted
	msg := ""
	switch {
	case runErr == nil:
	case r.cancelRequested():
		status, msg = store.StatusCancelled, "Research cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status, msg = store.StatusFailed, fmt.Sprintf("Research timed out after %s", timeout)
	default:
		status, msg = store.StatusFailed, fmt.Sprintf("Error during research: %v", runErr)
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rep *report.Report
	if status == store.StatusCompleted {
		if started.IsZero() {
			started = finished
		}
		built := report.New(r.id, r.topic(), r.pipeline(), res, started, finished)
		rep = &built
		if err := m.opts.Store.SaveReport(persistCtx, r.id, built); err != nil {
			m.logger.Printf("run %s: save report: %v", r.id, err)
		}
		if m.opts.Index != nil {
			if err := m.opts.Index.Add(built); err != nil {
				m.logger.Printf("run %s: index report: %v", r.id, err)
			}
		}
	}

	r.mu.Lock()
	r.rec.Status = status
	r.rec.Error = msg
	r.rec.FinishedAt = &finished
	r.rec.TokensUsed = res.TokensUsed
	r.rec.CostUSD = res.Cost
	if status == store.StatusCompleted {
		r.rec.Progress = 100
	}
	r.report = rep
	rec := r.rec
	terminal := r.terminal
	r.mu.Unlock()

	if err := m.opts.Store.UpdateRun(persistCtx, rec); err != nil {
		m.logger.Printf("run %s: update: %v", r.id, err)
	}
	if m.opts.Telemetry != nil {
		var duration time.Duration
		if !started.IsZero() {
			duration = finished.Sub(started)
		}
		m.opts.Telemetry.RecordRunEvent(persistCtx, telemetry.RunEvent{
			ID:         r.id,
			Topic:      rec.Topic,
			Pipeline:   rec.Pipeline,
			StartTime:  started,
			EndTime:    finished,
			Duration:   duration,
			Success:    status == store.StatusCompleted,
			Error:      msg,
			Cost:       res.Cost,
			TokensUsed: res.TokensUsed,
			AgentsUsed: res.Order,
		})
	}

	switch {
	case status != store.StatusCompleted:
		ev := core.Event{Type: core.EventRunFailed, RunID: r.id, Message: msg, Timestamp: finished}
		if terminal != nil {
			ev.Progress = terminal.Progress
		} else {
			ev.Progress = r.lastProgress()
		}
		m.broadcast(r, ev)
	case terminal != nil:
		m.broadcast(r, *terminal)
	default:
		m.broadcast(r, core.Event{Type: core.EventRunCompleted, RunID: r.id, Message: "Research completed!", Progress: 1, Timestamp: finished})
	}
	m.logger.Printf("run %s %s in %s", r.id, status, finished.Sub(rec.CreatedAt).Round(time.Millisecond))
	m.retire(r.id)
}

func (m *Manager) retire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, id)
	for len(m.finished) > maxRetained {
		delete(m.runs, m.finished[0])
		m.finished = m.finished[1:]
	}
}

func (m *Manager) setStatus(r *liveRun, status string) {
	r.mu.Lock()
	r.rec.Status = status
	rec := r.rec
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.opts.Store.UpdateRun(ctx, rec); err != nil {
		m.logger.Printf("run %s: set status %s: %v", r.id, status, err)
	}
}

func (m *Manager) broadcast(r *liveRun, e core.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	for _, dropped := range r.deliver(e) {
		m.logger.Printf("run %s: subscriber %d too slow, dropped %s", r.id, dropped, e.Type)
	}
	if m.opts.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := m.opts.Publisher.Publish(ctx, e); err != nil {
			m.logger.Printf("run %s: publish %s: %v", r.id, e.Type, err)
		}
		cancel()
	}
}

func (m *Manager) live(id string) (*liveRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}

// Get returns the run and, once completed, its report.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	if r, ok := m.live(id); ok {
		return r.snapshot(), nil
	}
	rec, err := m.opts.Store.GetRun(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Run: rec}
	if rec.Status == store.StatusCompleted {
		rep, err := m.opts.Store.GetReport(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
		if err == nil {
			snap.Report = &rep
		}
	}
	return snap, nil
}

// Report returns the finished report of run id.
func (m *Manager) Report(ctx context.Context, id string) (report.Report, error) {
	snap, err := m.Get(ctx, id)
	if err != nil {
		return report.Report{}, err
	}
	if snap.Report == nil {
		return report.Report{}, fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	return *snap.Report, nil
}

// List returns recent runs, newest first, with live progress merged in.
func (m *Manager) List(ctx context.Context, limit int) ([]store.Run, error) {
	recs, err := m.opts.Store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if r, ok := m.live(rec.ID); ok {
			recs[i] = r.snapshot().Run
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

// Cancel stops a pending or running run.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	r, ok := m.live(id)
	if !ok {
		if _, err := m.opts.Store.GetRun(ctx, id); err != nil {
			return err
		}
		return ErrFinished
	}
	if !r.requestCancel() {
		return ErrFinished
	}
	m.logger.Printf("run %s cancel requested", id)
	return nil
}

// Subscribe returns the events so far and a channel of later ones. The
// channel is closed after the terminal event; unsubscribe releases it early.
func (m *Manager) Subscribe(ctx context.Context, id string) ([]core.Event, <-chan core.Event, func(), error) {
	if r, ok := m.live(id); ok {
		history, ch, unsub := r.subscribe()
		return history, ch, unsub, nil
	}
	rec, err := m.opts.Store.GetRun(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	var history []core.Event
	lastID := "0"
	if m.opts.Consumer != nil {
		msgs, err := m.opts.Consumer.Replay(ctx, id)
		if err != nil {
			m.logger.Printf("run %s: replay: %v", id, err)
		}
		for _, msg := range msgs {
			history = append(history, msg.Event)
			lastID = msg.ID
		}
	}
	ch := make(chan core.Event, 16)
	ended := store.Terminal(rec.Status) || (len(history) > 0 && history[len(history)-1].Terminal())
	if m.opts.Consumer == nil || ended {
		close(ch)
		return history, ch, func() {}, nil
	}

	// the run lives on another instance: follow its stream until it ends
	tailCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		err := m.opts.Consumer.Tail(tailCtx, id, lastID, func(msg streams.Message) error {
			select {
			case ch <- msg.Event:
				return nil
			case <-tailCtx.Done():
				return tailCtx.Err()
			}
		})
		if err != nil && tailCtx.Err() == nil {
			m.logger.Printf("run %s: tail: %v", id, err)
		}
	}()
	return history, ch, cancel, nil
}

// Search queries the report index.
func (m *Manager) Search(q string, limit int) ([]search.Hit, error) {
	if m.opts.Index == nil {
		return nil, fmt.Errorf("search index not configured")
	}
	return m.opts.Index.Search(q, limit)
}

// Shutdown cancels live runs and waits for them to finish or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, r := range m.runs {
		r.requestCancel()
	}
	m.mu.RUnlock()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
