package core

import (
	"sync"
	"time"
)

// Event types emitted while a pipeline runs.
const (
	EventRunStarted       = "run_started"
	EventAgentStarted     = "agent_started"
	EventAgentFinished    = "agent_finished"
	EventSynthesisStarted = "synthesis_started"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
)

// Event is a progress notification for a single run.
type Event struct {
	Type       string        `json:"type"`
	RunID      string        `json:"run_id,omitempty"`
	Agent      string        `json:"agent,omitempty"`
	AgentName  string        `json:"agent_name,omitempty"`
	Message    string        `json:"message,omitempty"`
	Progress   float64       `json:"progress"`
	Success    *bool         `json:"success,omitempty"`
	Output     string        `json:"output,omitempty"`
	TokensUsed int64         `json:"tokens_used,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}

// EventSink receives run events. Implementations must be safe for concurrent use.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// DiscardEvents drops everything.
var DiscardEvents EventSink = EventSinkFunc(func(Event) {})

// progressTracker serialises emits and keeps progress from moving backwards
// when parallel agents finish out of order.
type progressTracker struct {
	mu    sync.Mutex
	sink  EventSink
	total int
	done  int
	last  float64
}

func newProgressTracker(sink EventSink, total int) *progressTracker {
	if sink == nil {
		sink = DiscardEvents
	}
	if total < 1 {
		total = 1
	}
	return &progressTracker{sink: sink, total: total}
}

// resize changes the step count without letting progress regress.
func (p *progressTracker) resize(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total < p.done {
		total = p.done
	}
	if total < 1 {
		total = 1
	}
	p.total = total
}

// emit sends e; when step is true one unit of work is counted first.
func (p *progressTracker) emit(e Event, step bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if step && p.done < p.total {
		p.done++
	}
	progress := float64(p.done) / float64(p.total)
	if e.Type == EventRunCompleted {
		progress = 1
	}
	if progress < p.last {
		progress = p.last
	}
	p.last = progress
	e.Progress = progress
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	p.sink.Emit(e)
}
