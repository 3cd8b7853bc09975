// Package version orders script versions for update decisions.
package version

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compare orders a against b. It returns -1, 0 or 1 and ok=false when the
// two versions cannot be ordered (either side empty).
//
// Strict semantic versions on both sides compare by semver precedence.
// Anything else compares dot-separated segments left to right: numbers
// numerically, mixed or textual segments lexically, missing segments as "0".
func Compare(a, b string) (int, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0, false
	}

	if va, err := semver.StrictNewVersion(a); err == nil {
		if vb, err := semver.StrictNewVersion(b); err == nil {
			return va.Compare(vb), true
		}
	}

	return compareSegments(strings.Split(a, "."), strings.Split(b, ".")), true
}

// Newer reports whether candidate orders strictly after installed.
func Newer(candidate, installed string) bool {
	c, ok := Compare(candidate, installed)
	return ok && c > 0
}

func compareSegments(a, b []string) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareSegment(segment(a, i), segment(b, i)); c != 0 {
			return c
		}
	}
	return 0
}

func segment(s []string, i int) string {
	if i >= len(s) || s[i] == "" {
		return "0"
	}
	return s[i]
}

func compareSegment(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
