package types

import (
	"slices"
	"strings"
	"time"
)

// RunAt is the page-lifecycle phase at which a script is injected
type RunAt string

const (
	RunAtDocumentStart RunAt = "document-start"
	RunAtDocumentEnd   RunAt = "document-end"
	RunAtDocumentIdle  RunAt = "document-idle"
)

// ParseRunAt maps a run-at value to a phase. Empty and unknown values
// fall back to document-idle; ok reports whether the value was recognised.
func ParseRunAt(value string) (phase RunAt, ok bool) {
	switch RunAt(strings.ToLower(strings.TrimSpace(value))) {
	case RunAtDocumentStart:
		return RunAtDocumentStart, true
	case RunAtDocumentEnd:
		return RunAtDocumentEnd, true
	case RunAtDocumentIdle:
		return RunAtDocumentIdle, true
	default:
		return RunAtDocumentIdle, false
	}
}

// Valid reports whether r is one of the three phases
func (r RunAt) Valid() bool {
	switch r {
	case RunAtDocumentStart, RunAtDocumentEnd, RunAtDocumentIdle:
		return true
	}
	return false
}

// Key identifies a script across installs
type Key struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func (k Key) String() string {
	return k.Namespace + "/" + k.Name
}

// Resource is an external file a script depends on. Requires (@require)
// have no Name; named resources (@resource) do. CacheKey is the local cache
// reference once the resource has been fetched.
type Resource struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	CacheKey string `json:"cache_key,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Script is an installed userscript
type Script struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Icon        string `json:"icon,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	UpdateURL   string `json:"update_url,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	RunAt       RunAt  `json:"run_at"`
	NoFrames    bool   `json:"no_frames,omitempty"`

	Includes []string `json:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty"`
	Matches  []string `json:"matches,omitempty"`

	Requires  []Resource `json:"requires,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
	Grants    []string   `json:"grants,omitempty"`

	// Source is the blob as installed; Code is the text after the metadata block.
	Source string `json:"source"`
	Code   string `json:"code"`

	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the (name, namespace) identity of the script
func (s *Script) Key() Key {
	return Key{Name: s.Name, Namespace: s.Namespace}
}

// Dependencies returns requires followed by named resources
func (s *Script) Dependencies() []Resource {
	deps := make([]Resource, 0, len(s.Requires)+len(s.Resources))
	deps = append(deps, s.Requires...)
	return append(deps, s.Resources...)
}

// Resource returns the named @resource entry
func (s *Script) Resource(name string) (Resource, bool) {
	for _, r := range s.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// Clone returns a deep copy
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	c := *s
	c.Includes = slices.Clone(s.Includes)
	c.Excludes = slices.Clone(s.Excludes)
	c.Matches = slices.Clone(s.Matches)
	c.Requires = slices.Clone(s.Requires)
	c.Resources = slices.Clone(s.Resources)
	c.Grants = slices.Clone(s.Grants)
	return &c
}

// ScriptSummary is the listing shape handed to the settings view
type ScriptSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Namespace   string    `json:"namespace"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	RunAt       RunAt     `json:"run_at"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns the listing view of the script
func (s *Script) Summary() ScriptSummary {
	return ScriptSummary{
		ID:          s.ID,
		Name:        s.Name,
		Namespace:   s.Namespace,
		Version:     s.Version,
		Description: s.Description,
		RunAt:       s.RunAt,
		Enabled:     s.Enabled,
		UpdatedAt:   s.UpdatedAt,
	}
}
