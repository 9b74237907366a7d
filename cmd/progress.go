package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
)

const barWidth = 30

// progressBar redraws a single terminal line per event.
type progressBar struct {
	w    io.Writer
	last float64
}

func (p *progressBar) render(e core.Event) {
	if e.Progress > p.last {
		p.last = e.Progress
	}
	filled := int(p.last * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	msg := e.Message
	if msg == "" {
		msg = e.Type
	}
	fmt.Fprintf(p.w, "\r[%s%s] %3d%% %-48.48s", strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), int(p.last*100), msg)
	if e.Terminal() {
		fmt.Fprintln(p.w)
	}
}
