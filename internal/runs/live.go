package runs

import (
	"context"
	"sync"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/store"
)

const defaultEventBuffer = 256

// liveRun is the in-memory state of a run started by this process.
type liveRun struct {
	id     string
	cancel context.CancelFunc
	buffer int

	mu        sync.Mutex
	rec       store.Run
	report    *report.Report
	history   []core.Event
	subs      map[int]chan core.Event
	nextSub   int
	terminal  *core.Event
	closed    bool
	cancelled bool
	last      float64
}

func newLiveRun(rec store.Run, cancel context.CancelFunc, buffer int) *liveRun {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &liveRun{id: rec.ID, rec: rec, cancel: cancel, buffer: buffer, subs: make(map[int]chan core.Event)}
}

func (r *liveRun) topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Topic
}

func (r *liveRun) pipeline() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Pipeline
}

func (r *liveRun) lastProgress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *liveRun) holdTerminal(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal == nil {
		r.terminal = &e
	}
}

// requestCancel reports false when the run already ended.
func (r *liveRun) requestCancel() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.cancelled = true
	r.mu.Unlock()
	r.cancel()
	return true
}

func (r *liveRun) cancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// deliver records e and fans it out, returning the ids of subscribers whose
// buffer was full. A terminal event closes every subscriber.
func (r *liveRun) deliver(e core.Event) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.history = append(r.history, e)
	if e.Progress > r.last {
		r.last = e.Progress
	}
	if !store.Terminal(r.rec.Status) {
		r.rec.Progress = int(r.last * 100)
	}
	var dropped []int
	for id, ch := range r.subs {
		select {
		case ch <- e:
		default:
			dropped = append(dropped, id)
		}
	}
	if e.Terminal() {
		r.closed = true
		for id, ch := range r.subs {
			close(ch)
			delete(r.subs, id)
		}
	}
	return dropped
}

func (r *liveRun) subscribe() ([]core.Event, <-chan core.Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append([]core.Event(nil), r.history...)
	ch := make(chan core.Event, r.buffer)
	if r.closed {
		close(ch)
		return history, ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	return history, ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			close(c)
			delete(r.subs, id)
		}
	}
}

func (r *liveRun) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{Run: r.rec}
	if r.report != nil {
		rep := *r.report
		snap.Report = &rep
	}
	return snap
}
