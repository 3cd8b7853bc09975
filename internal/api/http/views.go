package http

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/sandbox"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// ScriptSummary is a script as listed
type ScriptSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Namespace   string      `json:"namespace"`
	Version     string      `json:"version"`
	Description string      `json:"description,omitempty"`
	RunAt       types.RunAt `json:"run_at"`
	Enabled     bool        `json:"enabled"`
	InstalledAt time.Time   `json:"installed_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ScriptDetail adds effective rules and dependencies to a summary
type ScriptDetail struct {
	ScriptSummary
	Author      string           `json:"author,omitempty"`
	Homepage    string           `json:"homepage,omitempty"`
	SourceURL   string           `json:"source_url,omitempty"`
	UpdateURL   string           `json:"update_url,omitempty"`
	RunsAt      []string         `json:"runs_at"`
	NotRunsAt   []string         `json:"not_runs_at"`
	Diagnostics []DiagnosticView `json:"diagnostics"`
	Grants      []string         `json:"grants"`
	Requires    []types.Resource `json:"requires"`
	Resources   []types.Resource `json:"resources"`
}

// DiagnosticView is a pattern that failed to compile
type DiagnosticView struct {
	Rule    string `json:"rule"`
	Pattern string `json:"pattern"`
	Error   string `json:"error"`
}

// InstallView is the response to an install or update
type InstallView struct {
	Outcome     string           `json:"outcome"`
	Script      *ScriptSummary   `json:"script,omitempty"`
	Previous    *ScriptSummary   `json:"previous,omitempty"`
	Diagnostics []DiagnosticView `json:"diagnostics"`
	Error       string           `json:"error,omitempty"`
}

// InjectionView is one selected script
type InjectionView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Requires []string `json:"requires"`
}

// RunView is the result of running one script
type RunView struct {
	ScriptID   string             `json:"script_id"`
	Name       string             `json:"name"`
	Console    []sandbox.LogEntry `json:"console"`
	Turns      int                `json:"turns"`
	DurationMS int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
}

func summarize(sc *types.Script) ScriptSummary {
	return ScriptSummary{
		ID:          sc.ID,
		Name:        sc.Name,
		Namespace:   sc.Namespace,
		Version:     sc.Version,
		Description: sc.Description,
		RunAt:       sc.RunAt,
		Enabled:     sc.Enabled,
		InstalledAt: sc.InstalledAt,
		UpdatedAt:   sc.UpdatedAt,
	}
}

func detail(e store.Entry) ScriptDetail {
	sc := e.Script
	runsAt, notRunsAt := e.Rules.Describe()
	d := ScriptDetail{
		ScriptSummary: summarize(sc),
		Author:        sc.Author,
		Homepage:      sc.Homepage,
		SourceURL:     sc.SourceURL,
		UpdateURL:     sc.UpdateURL,
		RunsAt:        nonNil(runsAt),
		NotRunsAt:     nonNil(notRunsAt),
		Diagnostics:   diagnostics(e.Rules.Diagnostics()),
		Grants:        nonNil(sc.Grants),
		Requires:      sc.Requires,
		Resources:     sc.Resources,
	}
	if d.Requires == nil {
		d.Requires = []types.Resource{}
	}
	if d.Resources == nil {
		d.Resources = []types.Resource{}
	}
	return d
}

func viewInstall(res installer.Result) InstallView {
	v := InstallView{
		Outcome:     res.Outcome.String(),
		Diagnostics: diagnostics(res.Diagnostics),
		Error:       res.Error(),
	}
	if res.Script != nil {
		s := summarize(res.Script)
		v.Script = &s
	}
	if res.Previous != nil {
		p := summarize(res.Previous)
		v.Previous = &p
	}
	return v
}

func viewInjection(inj dispatch.Injection) InjectionView {
	v := InjectionView{ID: inj.Script.ID, Name: inj.Script.Name, Requires: make([]string, 0, len(inj.Resources))}
	for _, r := range inj.Resources {
		v.Requires = append(v.Requires, r.URL)
	}
	return v
}

func viewRun(r *sandbox.Result) RunView {
	v := RunView{
		ScriptID:   r.ScriptID,
		Name:       r.Name,
		Console:    r.Console,
		Turns:      r.Turns,
		DurationMS: r.Duration.Milliseconds(),
	}
	if v.Console == nil {
		v.Console = []sandbox.LogEntry{}
	}
	if r.Error != nil {
		v.Error = r.Error.Error()
	}
	return v
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
