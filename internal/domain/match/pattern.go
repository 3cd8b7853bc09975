package match

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind tags the variant of a compiled pattern
type Kind int

const (
	KindWildcard Kind = iota
	KindRegex
	KindMatchPattern
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindRegex:
		return "regex"
	case KindMatchPattern:
		return "match-pattern"
	default:
		return "unknown"
	}
}

var ErrEmptyPattern = errors.New("empty pattern")

// matcher is the compiled form of one pattern variant.
type matcher interface {
	match(t *target) bool
}

// Pattern is one compiled rule. A pattern that failed to compile keeps its
// error and never matches.
type Pattern struct {
	raw  string
	kind Kind
	m    matcher
	err  error
}

// Raw returns the pattern as written by the script author
func (p *Pattern) Raw() string { return p.raw }

// Kind returns the pattern variant
func (p *Pattern) Kind() Kind { return p.kind }

// Err returns the compile error, if any
func (p *Pattern) Err() error { return p.err }

// Valid reports whether the pattern compiled
func (p *Pattern) Valid() bool { return p.err == nil }

func (p *Pattern) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.raw)
}

// Match reports whether rawURL satisfies the pattern
func (p *Pattern) Match(rawURL string) bool {
	return p.matchTarget(newTarget(rawURL))
}

func (p *Pattern) matchTarget(t *target) bool {
	if p.err != nil || p.m == nil {
		return false
	}
	return p.m.match(t)
}

// takeTimeout reports, once, that a regex evaluation ran out of time.
func (p *Pattern) takeTimeout() bool {
	rm, ok := p.m.(*regexMatcher)
	return ok && rm.takeTimeout()
}

// CompileInclude compiles an @include or @exclude line: /body/flags is a
// regular expression, anything else is a wildcard.
func CompileInclude(raw string) *Pattern {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Pattern{raw: raw, kind: KindWildcard, err: ErrEmptyPattern}
	}
	if body, flags, ok := splitRegexLiteral(raw); ok {
		m, err := compileRegex(body, flags)
		return &Pattern{raw: raw, kind: KindRegex, m: m, err: err}
	}
	m, err := compileWildcard(raw)
	return &Pattern{raw: raw, kind: KindWildcard, m: m, err: err}
}

// CompileMatch compiles an @match line.
func CompileMatch(raw string) *Pattern {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Pattern{raw: raw, kind: KindMatchPattern, err: ErrEmptyPattern}
	}
	m, err := compileMatchPattern(raw)
	if err != nil {
		return &Pattern{raw: raw, kind: KindMatchPattern, err: err}
	}
	return &Pattern{raw: raw, kind: KindMatchPattern, m: m}
}

// target is a URL parsed once and shared by every pattern of a rule set.
type target struct {
	raw string
	u   *url.URL
}

func newTarget(raw string) *target {
	t := &target{raw: strings.TrimSpace(raw)}
	if u, err := url.Parse(t.raw); err == nil && u.Scheme != "" {
		t.u = u
	}
	return t
}
