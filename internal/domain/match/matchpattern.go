package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const allURLs = "<all_urls>"

var (
	ErrMissingScheme = errors.New("match pattern missing scheme separator")
	ErrBadScheme     = errors.New("match pattern has unsupported scheme")
	ErrBadHost       = errors.New("match pattern has invalid host")
	ErrMissingPath   = errors.New("match pattern missing path")
)

var matchSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"ftp":   true,
	"ws":    true,
	"wss":   true,
}

// allURLSchemes are the schemes covered by <all_urls>.
var allURLSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"ftp":   true,
}

type hostRule int

const (
	hostAny hostRule = iota
	hostExact
	hostSubdomain
)

// matchPatternMatcher implements browser-extension match patterns.
type matchPatternMatcher struct {
	all      bool
	scheme   string // "*" means http or https
	hostRule hostRule
	host     string // ASCII, lower case; may carry a port
	withPort bool
	path     *regexp.Regexp
}

func compileMatchPattern(raw string) (*matchPatternMatcher, error) {
	if raw == allURLs {
		return &matchPatternMatcher{all: true}, nil
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingScheme, raw)
	}
	scheme = strings.ToLower(scheme)
	if scheme != "*" && !matchSchemes[scheme] {
		return nil, fmt.Errorf("%w: %q", ErrBadScheme, scheme)
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingPath, raw)
	}
	host, pathGlob := rest[:slash], rest[slash:]

	m := &matchPatternMatcher{scheme: scheme}
	if err := m.compileHost(host); err != nil {
		return nil, err
	}
	if m.hostRule == hostExact && host == "" && scheme != "file" {
		return nil, fmt.Errorf("%w: empty host", ErrBadHost)
	}

	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i, part := range strings.Split(pathGlob, "*") {
		if i > 0 {
			b.WriteString(`.*`)
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile match pattern path %q: %w", pathGlob, err)
	}
	m.path = re
	return m, nil
}

func (m *matchPatternMatcher) compileHost(host string) error {
	switch {
	case host == "*":
		m.hostRule = hostAny
		return nil
	case strings.HasPrefix(host, "*."):
		m.hostRule = hostSubdomain
		host = host[2:]
	default:
		m.hostRule = hostExact
	}

	if strings.Contains(host, "*") {
		return fmt.Errorf("%w: wildcard only allowed as leading label", ErrBadHost)
	}
	if host == "" {
		if m.hostRule == hostSubdomain {
			return fmt.Errorf("%w: empty suffix", ErrBadHost)
		}
		m.host = ""
		return nil
	}

	name, port, hasPort := strings.Cut(host, ":")
	ascii, err := normalizeHost(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadHost, err)
	}
	m.host = ascii
	if hasPort {
		m.host += ":" + port
		m.withPort = true
	}
	return nil
}

func (m *matchPatternMatcher) match(t *target) bool {
	u := t.u
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)

	if m.all {
		return allURLSchemes[scheme]
	}

	switch m.scheme {
	case "*":
		if scheme != "http" && scheme != "https" {
			return false
		}
	default:
		if scheme != m.scheme {
			return false
		}
	}

	if !m.matchHost(u.Hostname(), u.Port()) {
		return false
	}
	return m.path.MatchString(u.RequestURI())
}

func (m *matchPatternMatcher) matchHost(hostname, port string) bool {
	if m.hostRule == hostAny {
		return true
	}

	host, err := normalizeHost(hostname)
	if err != nil {
		host = strings.ToLower(hostname)
	}
	if m.withPort {
		host += ":" + port
	}

	switch m.hostRule {
	case hostExact:
		return host == m.host
	case hostSubdomain:
		// Proper subdomains only; the bare suffix needs its own rule.
		return strings.HasSuffix(host, "."+m.host)
	}
	return false
}

func normalizeHost(host string) (string, error) {
	if host == "" {
		return "", nil
	}
	ascii, err := idna.Punycode.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", err
	}
	return ascii, nil
}
