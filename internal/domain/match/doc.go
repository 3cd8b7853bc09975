// Package match compiles and evaluates userscript URL rules.
//
// Three pattern variants exist:
//
//   - Wildcard (@include/@exclude): "*" matches any run of characters and
//     the pattern is anchored at both ends, case-insensitively. A ".tld"
//     host suffix matches any top-level domain.
//   - Regex (@include/@exclude written as /body/flags): JavaScript regular
//     expression semantics via regexp2, unanchored unless the author anchors.
//   - MatchPattern (@match): scheme://host/path as in browser extensions.
//     "*." in front of a host matches proper subdomains only.
//
// Precedence: with no include and no match patterns every URL is a
// candidate; otherwise any include or match hit makes it one. An exclude hit
// always wins. A pattern that does not compile never matches and shows up
// in Rules.Diagnostics.
//
// Compile once at install or enable time; the resulting Rules are
// immutable and may be shared between goroutines.
package match
