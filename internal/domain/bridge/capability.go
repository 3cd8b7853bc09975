package bridge

import (
	"sort"
	"strings"
)

// Capability is one privileged operation a script may call
type Capability string

const (
	GetValue        Capability = "getValue"
	SetValue        Capability = "setValue"
	DeleteValue     Capability = "deleteValue"
	ListValues      Capability = "listValues"
	XMLHTTPRequest  Capability = "xmlhttpRequest"
	OpenInTab       Capability = "openInTab"
	Notification    Capability = "notification"
	GetResourceText Capability = "getResourceText"
	GetResourceURL  Capability = "getResourceURL"
	Log             Capability = "log"
)

// All lists every capability
var All = []Capability{
	GetValue, SetValue, DeleteValue, ListValues, XMLHTTPRequest,
	OpenInTab, Notification, GetResourceText, GetResourceURL, Log,
}

var byLowerName = func() map[string]Capability {
	m := make(map[string]Capability, len(All))
	for _, c := range All {
		m[strings.ToLower(string(c))] = c
	}
	return m
}()

// ParseGrant maps a @grant value such as GM_getValue or GM.xmlHttpRequest
// to a capability.
func ParseGrant(grant string) (Capability, bool) {
	name := strings.TrimSpace(grant)
	switch {
	case strings.HasPrefix(name, "GM_"):
		name = name[3:]
	case strings.HasPrefix(name, "GM."):
		name = name[3:]
	default:
		return "", false
	}
	c, ok := byLowerName[strings.ToLower(name)]
	return c, ok
}

// Grants is the set of capabilities a script declared. Log is always
// allowed; "@grant none" allows nothing else.
type Grants struct {
	set map[Capability]bool
}

// GrantsOf derives the grant set from @grant lines. Unknown names are
// ignored.
func GrantsOf(grants []string) Grants {
	g := Grants{set: make(map[Capability]bool)}
	for _, raw := range grants {
		if strings.TrimSpace(raw) == "none" {
			return Grants{set: map[Capability]bool{}}
		}
		if c, ok := ParseGrant(raw); ok {
			g.set[c] = true
		}
	}
	return g
}

// Allows reports whether c may be called
func (g Grants) Allows(c Capability) bool {
	return c == Log || g.set[c]
}

// List returns the granted capabilities in name order, excluding Log
func (g Grants) List() []Capability {
	out := make([]Capability, 0, len(g.set))
	for c := range g.set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
