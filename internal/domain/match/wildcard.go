package match

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
)

// RegexTimeout bounds one @include regex evaluation. regexp2 backtracks,
// so a pathological expression would otherwise stall every navigation.
var RegexTimeout = 100 * time.Millisecond

// regexFlags are the flags a JavaScript regex literal may carry.
const regexFlags = "gimsuy"

// tldExpr stands in for a ".tld" host suffix: one or two trailing labels.
const tldExpr = `(?:\.[a-z0-9-]{2,}){1,2}`

type wildcardMatcher struct {
	re *regexp.Regexp
}

func (w *wildcardMatcher) match(t *target) bool {
	return w.re.MatchString(t.raw)
}

// compileWildcard anchors the glob at both ends; "*" is any run of
// characters and a ".tld" host suffix matches any top-level domain.
func compileWildcard(glob string) (matcher, error) {
	var b strings.Builder
	b.WriteString(`(?is)^`)

	for i := 0; i < len(glob); {
		switch {
		case glob[i] == '*':
			b.WriteString(`.*`)
			i++
		case strings.HasPrefix(glob[i:], ".tld") && tldBoundary(glob, i+4):
			b.WriteString(tldExpr)
			i += 4
		default:
			j := i + 1
			for j < len(glob) && glob[j] != '*' && glob[j] != '.' {
				j++
			}
			b.WriteString(regexp.QuoteMeta(glob[i:j]))
			i = j
		}
	}

	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile wildcard %q: %w", glob, err)
	}
	return &wildcardMatcher{re: re}, nil
}

func tldBoundary(s string, i int) bool {
	return i == len(s) || s[i] == '/' || s[i] == ':' || s[i] == '*'
}

// timeout states of a regexMatcher
const (
	regexOK int32 = iota
	regexTimedOut
	regexReported
)

type regexMatcher struct {
	re    *regexp2.Regexp
	state atomic.Int32
}

// match treats a timed-out evaluation as a non-match.
func (r *regexMatcher) match(t *target) bool {
	ok, err := r.re.MatchString(t.raw)
	if err != nil {
		r.state.CompareAndSwap(regexOK, regexTimedOut)
		return false
	}
	return ok
}

// takeTimeout reports a timeout once.
func (r *regexMatcher) takeTimeout() bool {
	return r.state.CompareAndSwap(regexTimedOut, regexReported)
}

// splitRegexLiteral recognises "/body/flags". Anything after the last
// slash that is not a JavaScript flag set means the value is a path-like
// wildcard such as "/a/b".
func splitRegexLiteral(raw string) (string, string, bool) {
	if len(raw) < 2 || raw[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(raw, '/')
	if end == 0 {
		return "", "", false
	}
	flags := raw[end+1:]
	for _, c := range flags {
		if !strings.ContainsRune(regexFlags, c) {
			return "", "", false
		}
	}
	return raw[1:end], flags, true
}

// compileRegex compiles the author's expression with JavaScript semantics.
// It is not anchored beyond what the author wrote.
func compileRegex(body, flags string) (matcher, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 'g', 'u', 'y', 's':
			// no effect on a single test()
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	if body == "" {
		return nil, ErrEmptyPattern
	}

	re, err := regexp2.Compile(body, opts)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", body, err)
	}
	re.MatchTimeout = RegexTimeout
	return &regexMatcher{re: re}, nil
}
