package match

import (
	"fmt"
	"strings"
)

// Rule names the metadata key a pattern came from
type Rule string

const (
	RuleInclude Rule = "include"
	RuleExclude Rule = "exclude"
	RuleMatch   Rule = "match"
)

// RuleSet is the raw include/exclude/match lists of one script
type RuleSet struct {
	Includes []string
	Excludes []string
	Matches  []string
}

// Diagnostic records a pattern that failed to compile
type Diagnostic struct {
	Rule    Rule   `json:"rule"`
	Pattern string `json:"pattern"`
	Err     error  `json:"-"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("@%s %s: %v", d.Rule, d.Pattern, d.Err)
}

// Rules is a compiled rule set. Its patterns never change after Compile
// and it is safe for concurrent use.
type Rules struct {
	includes    []*Pattern
	matches     []*Pattern
	excludes    []*Pattern
	diagnostics []Diagnostic
}

// Compile compiles every pattern once. A pattern that fails is kept as a
// never-matching entry and reported in Diagnostics; its siblings still work.
func Compile(rs RuleSet) *Rules {
	r := &Rules{
		includes: make([]*Pattern, 0, len(rs.Includes)),
		matches:  make([]*Pattern, 0, len(rs.Matches)),
		excludes: make([]*Pattern, 0, len(rs.Excludes)),
	}

	for _, raw := range rs.Includes {
		r.includes = append(r.includes, r.track(RuleInclude, CompileInclude(raw)))
	}
	for _, raw := range rs.Matches {
		r.matches = append(r.matches, r.track(RuleMatch, CompileMatch(raw)))
	}
	for _, raw := range rs.Excludes {
		r.excludes = append(r.excludes, r.track(RuleExclude, CompileInclude(raw)))
	}
	return r
}

func (r *Rules) track(rule Rule, p *Pattern) *Pattern {
	if p.err != nil {
		r.diagnostics = append(r.diagnostics, Diagnostic{Rule: rule, Pattern: p.raw, Err: p.err})
	}
	return p
}

// MatchAll reports whether the rule set has no include and no match
// patterns, which means every URL is a candidate.
func (r *Rules) MatchAll() bool {
	return len(r.includes) == 0 && len(r.matches) == 0
}

// Matches evaluates rawURL:
//  1. no include and no match patterns: candidate
//  2. otherwise candidate iff any include or any match pattern hits
//  3. any exclude hit turns a candidate into a non-match
func (r *Rules) Matches(rawURL string) bool {
	if r == nil {
		return false
	}
	t := newTarget(rawURL)

	if !r.MatchAll() && !anyMatch(r.includes, t) && !anyMatch(r.matches, t) {
		return false
	}
	return !anyMatch(r.excludes, t)
}

// TimedOut returns the regex patterns that hit RegexTimeout since the last
// call. Each pattern is returned at most once.
func (r *Rules) TimedOut() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, group := range [][]*Pattern{r.includes, r.excludes} {
		for _, p := range group {
			if p.takeTimeout() {
				out = append(out, p.raw)
			}
		}
	}
	return out
}

func anyMatch(patterns []*Pattern, t *target) bool {
	for _, p := range patterns {
		if p.matchTarget(t) {
			return true
		}
	}
	return false
}

// Diagnostics returns compile failures in rule order
func (r *Rules) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// Patterns returns the compiled patterns for one rule
func (r *Rules) Patterns(rule Rule) []*Pattern {
	var src []*Pattern
	switch rule {
	case RuleInclude:
		src = r.includes
	case RuleMatch:
		src = r.matches
	case RuleExclude:
		src = r.excludes
	}
	out := make([]*Pattern, len(src))
	copy(out, src)
	return out
}

// Describe splits the rule set into the "runs at" and "does not run at"
// lists shown on install confirmation and in the script details view.
func (r *Rules) Describe() (runsAt, notRunsAt []string) {
	if r.MatchAll() {
		runsAt = append(runsAt, "*")
	}
	for _, p := range r.includes {
		runsAt = append(runsAt, p.raw)
	}
	for _, p := range r.matches {
		runsAt = append(runsAt, p.raw)
	}
	for _, p := range r.excludes {
		notRunsAt = append(notRunsAt, p.raw)
	}
	return runsAt, notRunsAt
}

func (r *Rules) String() string {
	runs, not := r.Describe()
	return fmt.Sprintf("runs at [%s] except [%s]", strings.Join(runs, ", "), strings.Join(not, ", "))
}
