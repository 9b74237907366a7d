package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/runs"
	"github.com/labstack/echo/v4"
)

// IDResponse is returned when a run is accepted.
type IDResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) create(c echo.Context) error {
	var req runs.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := s.runs.Start(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/research/"+rec.ID)
	return c.JSON(http.StatusAccepted, IDResponse{ID: rec.ID, Status: rec.Status})
}

func queryInt(c echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func (s *Server) list(c echo.Context) error {
	recs, err := s.runs.List(c.Request().Context(), queryInt(c, "limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": recs})
}

func (s *Server) get(c echo.Context) error {
	snap, err := s.runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) cancel(c echo.Context) error {
	if err := s.runs.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	hits, err := s.runs.Search(q, queryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}

// AgentsResponse lists the agents of every pipeline and the tools they can draw on.
type AgentsResponse struct {
	Pipelines map[string][]core.AgentInfo `json:"pipelines"`
	Tools     []string                    `json:"tools"`
}

func (s *Server) agents(c echo.Context) error {
	tools := s.runs.Tools()
	if tools == nil {
		tools = []string{}
	}
	return c.JSON(http.StatusOK, AgentsResponse{Pipelines: s.runs.Roster(), Tools: tools})
}

func (s *Server) metricsSummary(c echo.Context) error {
	if s.telemetry == nil {
		return echo.NewHTTPError(http.StatusNotFound, "telemetry disabled")
	}
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, s.telemetry.GetPerformanceReport())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"metrics": s.telemetry.GetMetrics(),
		"costs":   s.telemetry.GetCostSummary(),
	})
}

func (s *Server) download(format string) echo.HandlerFunc {
	return func(c echo.Context) error {
		rep, err := s.runs.Report(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", report.Filename(rep.Topic, format)))
		switch format {
		case "md":
			return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(rep.Markdown()))
		case "html":
			return c.HTML(http.StatusOK, rep.HTML())
		default:
			body, err := rep.JSON()
			if err != nil {
				return err
			}
			return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, body)
		}
	}
}
