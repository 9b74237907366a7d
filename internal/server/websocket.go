package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/runs"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is every frame the server writes.
type wsMessage struct {
	Type     string           `json:"type"` // started, event, report, error
	RunID    string           `json:"run_id,omitempty"`
	Message  string           `json:"message,omitempty"`
	Event    *core.Event      `json:"event,omitempty"`
	Report   *report.Report   `json:"report,omitempty"`
	Sections []report.Section `json:"sections,omitempty"`
}

const wsWriteWait = 10 * time.Second

// liveResearch runs one research request per connection: the client sends
// {"topic","pipeline","api_key"} and receives progress then the report.
func (s *Server) liveResearch(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	write := func(m wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(m)
	}

	var req runs.Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = write(wsMessage{Type: "error", Message: "Invalid research request"})
		return nil
	}
	ctx := c.Request().Context()
	rec, err := s.runs.Start(ctx, req)
	if err != nil {
		msg := err.Error()
		if !errors.Is(err, runs.ErrValidation) {
			s.logger.Printf("ws start: %v", err)
		}
		_ = write(wsMessage{Type: "error", Message: msg})
		return nil
	}
	if err := write(wsMessage{Type: "started", RunID: rec.ID}); err != nil {
		return nil
	}

	history, ch, unsubscribe, err := s.runs.Subscribe(ctx, rec.ID)
	if err != nil {
		_ = write(wsMessage{Type: "error", RunID: rec.ID, Message: err.Error()})
		return nil
	}
	defer unsubscribe()

	// a read pump notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last core.Event
	forward := func(e core.Event) bool {
		ev := e
		last = e
		return write(wsMessage{Type: "event", RunID: rec.ID, Event: &ev}) == nil
	}
	for _, e := range history {
		if !forward(e) {
			return nil
		}
	}
	if !last.Terminal() {
	loop:
		for {
			select {
			case <-gone:
				return nil
			case e, ok := <-ch:
				if !ok {
					break loop
				}
				if !forward(e) {
					return nil
				}
			}
		}
	}

	if last.Type != core.EventRunCompleted {
		_ = write(wsMessage{Type: "error", RunID: rec.ID, Message: last.Message})
		return nil
	}
	rep, err := s.runs.Report(ctx, rec.ID)
	if err != nil {
		_ = write(wsMessage{Type: "error", RunID: rec.ID, Message: err.Error()})
		return nil
	}
	_ = write(wsMessage{Type: "report", RunID: rec.ID, Report: &rep, Sections: rep.Sections()})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(wsWriteWait))
	return nil
}
