package sources

import (
	"fmt"
	"sort"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/core"
)

// Registry maps tool names, and the group names agents ask for, to tools.
type Registry struct {
	tools  map[string]core.Tool
	groups map[string][]string
}

// NewRegistry builds every tool the configuration allows.
func NewRegistry(cfg config.SourcesConfig) *Registry {
	client := NewHTTPClient(cfg.HTTP.Timeout, cfg.HTTP.Retries, cfg.HTTP.Backoff, cfg.HTTP.RatePerSec, cfg.HTTP.Burst)
	r := &Registry{tools: map[string]core.Tool{}, groups: map[string][]string{}}

	if !cfg.Wikipedia.Disabled {
		r.Register(core.ToolWikipedia, NewWikipedia(cfg.Wikipedia, client))
	} else {
		r.groups[core.ToolWikipedia] = nil
	}

	if cfg.Tavily.APIKey != "" {
		r.Register(core.ToolWeb, NewTavily(cfg.Tavily, client))
	}
	if cfg.WebSearch.BraveAPIKey != "" {
		r.Register(core.ToolWeb, NewBrave(cfg.WebSearch, client))
	}
	if cfg.WebSearch.SerperAPIKey != "" {
		r.Register(core.ToolWeb, NewSerper(cfg.WebSearch, client))
	}
	if len(r.groups[core.ToolWeb]) == 0 {
		r.Register(core.ToolWeb, NewWebSearchPlaceholder())
	}

	r.Register(core.ToolNews, NewNewsSearch(cfg.NewsAPI, client))

	if cfg.Fetch.Enabled {
		r.Register(core.ToolReader, NewFetchPage(client, cfg.Fetch.MaxChars))
	} else {
		r.groups[core.ToolReader] = nil
	}
	return r
}

// Register adds t under its own name and under group.
func (r *Registry) Register(group string, t core.Tool) {
	r.tools[t.Name()] = t
	if group != "" && group != t.Name() {
		r.groups[group] = append(r.groups[group], t.Name())
	}
}

// Resolve returns the tools for names, expanding groups and dropping duplicates.
func (r *Registry) Resolve(names ...string) ([]core.Tool, error) {
	var out []core.Tool
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, r.tools[name])
		}
	}
	for _, name := range names {
		if members, ok := r.groups[name]; ok {
			for _, m := range members {
				add(m)
			}
			continue
		}
		if _, ok := r.tools[name]; !ok {
			return nil, fmt.Errorf("unknown tool: %s", name)
		}
		add(name)
	}
	return out, nil
}

// Names lists every registered tool.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
