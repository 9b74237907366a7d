package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/labstack/echo/v4"
)

// events streams run progress as server sent events, history first.
func (s *Server) events(c echo.Context) error {
	ctx := c.Request().Context()
	history, ch, unsubscribe, err := s.runs.Subscribe(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	defer unsubscribe()

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	send := func(e core.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	for _, e := range history {
		if err := send(e); err != nil {
			return nil
		}
		if e.Terminal() {
			return nil
		}
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := send(e); err != nil {
				return nil
			}
		}
	}
}
