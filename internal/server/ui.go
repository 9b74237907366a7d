package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/labstack/echo/v4"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// agentDuties are the bullet points listed under each team member.
var agentDuties = map[string][]string{
	core.KeyResearcher:  {"Gathers background information", "Provides historical context", "Collects key facts and definitions"},
	core.KeyAnalyst:     {"Analyzes trends and statistics", "Identifies quantitative patterns", "Provides data-driven insights"},
	core.KeyNewsTracker: {"Finds recent developments", "Tracks current events", "Monitors latest updates"},
	core.KeySynthesizer: {"Combines all findings", "Creates comprehensive reports", "Provides unified insights"},
}

var agentIcons = map[string]string{
	core.KeyResearcher:  "🔍",
	core.KeyAnalyst:     "📊",
	core.KeyNewsTracker: "📰",
	core.KeySynthesizer: "🔄",
}

type rosterEntry struct {
	Icon   string
	Name   string
	Duties []string
}

type indexPage struct {
	Pipelines []string
	Team      []rosterEntry
}

func (s *Server) index(c echo.Context) error {
	page := indexPage{Pipelines: core.PipelineNames()}
	for _, a := range s.runs.Roster()[core.PipelineTeam] {
		duties := agentDuties[a.Key]
		if len(duties) == 0 {
			duties = []string{a.Role}
		}
		page.Team = append(page.Team, rosterEntry{Icon: agentIcons[a.Key], Name: a.Name, Duties: duties})
	}
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, page); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
