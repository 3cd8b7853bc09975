package store

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/match"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// ErrNotFound is returned for unknown script ids
var ErrNotFound = errors.New("script not found")

// InstallResult tells whether Install added a script or replaced one
type InstallResult int

const (
	Inserted InstallResult = iota
	Updated
)

func (r InstallResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "inserted"
}

// Entry is a script together with its compiled rules. Script is a private
// copy; Rules is immutable and shared.
type Entry struct {
	Script *types.Script
	Rules  *match.Rules
}

type record struct {
	script *types.Script
	rules  *match.Rules
}

func (r *record) entry() Entry {
	return Entry{Script: r.script.Clone(), Rules: r.rules}
}

// Store holds installed scripts in insertion order. Readers see a
// consistent view; writers are exclusive.
type Store struct {
	mu    sync.RWMutex
	order []*record
	byID  map[string]*record
	byKey map[types.Key]*record

	log *logging.Logger
	now func() time.Time
}

// New creates an empty store
func New(log *logging.Logger) *Store {
	return &Store{
		byID:  make(map[string]*record),
		byKey: make(map[types.Key]*record),
		log:   logging.OrNop(log).Component("store"),
		now:   time.Now,
	}
}

// Install adds s, or replaces the script with the same name and namespace.
// A replacement keeps the id, list position, enabled flag and install time
// of the script it replaces.
func (s *Store) Install(script *types.Script) (InstallResult, Entry) {
	sc := script.Clone()
	now := s.now().UTC()
	rules := s.compile(sc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[sc.Key()]; ok {
		sc.ID = existing.script.ID
		sc.Enabled = existing.script.Enabled
		sc.InstalledAt = existing.script.InstalledAt
		sc.UpdatedAt = now
		existing.script = sc
		existing.rules = rules
		return Updated, existing.entry()
	}

	if sc.ID == "" || s.byID[sc.ID] != nil {
		sc.ID = id.NewScriptID().String()
	}
	sc.Enabled = true
	sc.InstalledAt = now
	sc.UpdatedAt = now

	rec := &record{script: sc, rules: rules}
	s.insertLocked(rec)
	return Inserted, rec.entry()
}

func (s *Store) insertLocked(rec *record) {
	s.order = append(s.order, rec)
	s.byID[rec.script.ID] = rec
	s.byKey[rec.script.Key()] = rec
}

func (s *Store) compile(sc *types.Script) *match.Rules {
	rules := match.Compile(RuleSet(sc))
	for _, d := range rules.Diagnostics() {
		s.log.Warn("Pattern failed to compile",
			zap.String("script", sc.Key().String()),
			zap.String("rule", string(d.Rule)),
			zap.String("pattern", d.Pattern),
			zap.Error(d.Err))
	}
	return rules
}

// RuleSet returns the raw rule lists of a script
func RuleSet(sc *types.Script) match.RuleSet {
	return match.RuleSet{
		Includes: sc.Includes,
		Excludes: sc.Excludes,
		Matches:  sc.Matches,
	}
}

// Remove deletes the script with the given id
func (s *Store) Remove(scriptID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[scriptID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	delete(s.byID, scriptID)
	delete(s.byKey, rec.script.Key())
	for i, r := range s.order {
		if r == rec {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return rec.entry(), nil
}

// SetEnabled toggles a script. Enabling recompiles its rules.
func (s *Store) SetEnabled(scriptID string, enabled bool) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[scriptID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	updated := rec.script.Clone()
	updated.Enabled = enabled
	updated.UpdatedAt = s.now().UTC()
	if enabled && !rec.script.Enabled {
		rec.rules = s.compile(updated)
	}
	rec.script = updated
	return rec.entry(), nil
}

// Get returns the script with the given id
func (s *Store) Get(scriptID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[scriptID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return rec.entry(), nil
}

// Find looks a script up by name and namespace
func (s *Store) Find(name, namespace string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byKey[types.Key{Name: name, Namespace: namespace}]
	if !ok {
		return Entry{}, false
	}
	return rec.entry(), true
}

// List returns every script in insertion order
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, rec := range s.order {
		out = append(out, rec.entry())
	}
	return out
}

// ListEnabled returns enabled scripts in insertion order
func (s *Store) ListEnabled() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, rec := range s.order {
		if rec.script.Enabled {
			out = append(out, rec.entry())
		}
	}
	return out
}

// Len returns the number of installed scripts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
