package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

const (
	OpenMarker  = "// ==UserScript=="
	CloseMarker = "// ==/UserScript=="

	DefaultName      = "Unnamed Script"
	DefaultNamespace = "userscripts"
	DefaultVersion   = "0.0"
)

// ErrMalformedMetadata is returned when the blob has no metadata block.
var ErrMalformedMetadata = errors.New("malformed metadata")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse extracts script metadata and body from a raw blob. sourceURL is
// used for placeholder names and may be empty.
//
// Only a missing metadata block is an error. Inside the block every line
// is parsed on its own and anything unrecognised is skipped.
func Parse(blob []byte, sourceURL string) (*types.Script, error) {
	blob = bytes.TrimPrefix(blob, utf8BOM)

	lines, bodyStart, err := block(blob)
	if err != nil {
		return nil, err
	}

	script := &types.Script{
		SourceURL: sourceURL,
		RunAt:     types.RunAtDocumentIdle,
		Source:    string(blob),
		Code:      string(blob[bodyStart:]),
	}
	for _, line := range lines {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		apply(script, key, value)
	}

	fillDefaults(script)
	return script, nil
}

// block locates the metadata block. It returns the lines between the
// markers and the byte offset where the script body starts.
func block(blob []byte) ([]string, int, error) {
	var (
		lines  []string
		offset int
		opened bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(blob))
	scanner.Buffer(make([]byte, 64*1024), len(blob)+1)
	scanner.Split(scanLinesKeepEnd)

	for scanner.Scan() {
		raw := scanner.Text()
		offset += len(raw)
		line := strings.TrimSpace(raw)

		if !opened {
			if line == "" {
				continue
			}
			if !isMarker(line, OpenMarker) {
				return nil, 0, fmt.Errorf("%w: first non-blank line is not %q", ErrMalformedMetadata, OpenMarker)
			}
			opened = true
			continue
		}

		if isMarker(line, CloseMarker) {
			return lines, offset, nil
		}
		lines = append(lines, line)
	}

	if !opened {
		return nil, 0, fmt.Errorf("%w: no metadata block", ErrMalformedMetadata)
	}
	return nil, 0, fmt.Errorf("%w: unterminated metadata block", ErrMalformedMetadata)
}

// isMarker tolerates extra spacing after the comment slashes.
func isMarker(line, marker string) bool {
	if line == marker {
		return true
	}
	rest, ok := strings.CutPrefix(line, "//")
	if !ok {
		return false
	}
	return strings.TrimSpace(rest) == strings.TrimSpace(strings.TrimPrefix(marker, "//"))
}

// scanLinesKeepEnd is bufio.ScanLines without dropping the line terminator,
// so token lengths add up to byte offsets.
func scanLinesKeepEnd(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// splitLine turns "// @key value" into (key, value).
func splitLine(line string) (string, string, bool) {
	rest, ok := strings.CutPrefix(line, "//")
	if !ok {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "@") {
		return "", "", false
	}
	rest = rest[1:]

	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		return rest, "", rest != ""
	}
	return rest[:idx], strings.TrimSpace(rest[idx:]), idx > 0
}

func apply(s *types.Script, key, value string) {
	switch key {
	case "name":
		s.Name = value
	case "namespace":
		s.Namespace = value
	case "version":
		s.Version = value
	case "description":
		s.Description = value
	case "author":
		s.Author = value
	case "homepage", "homepageURL", "website", "source":
		s.Homepage = value
	case "icon", "iconURL", "defaulticon":
		s.Icon = value
	case "downloadURL":
		s.DownloadURL = value
	case "updateURL":
		s.UpdateURL = value
	case "run-at":
		s.RunAt, _ = types.ParseRunAt(value)
	case "noframes":
		s.NoFrames = true
	case "include":
		appendNonEmpty(&s.Includes, value)
	case "exclude":
		appendNonEmpty(&s.Excludes, value)
	case "match":
		appendNonEmpty(&s.Matches, value)
	case "grant":
		appendNonEmpty(&s.Grants, value)
	case "require":
		if value != "" {
			s.Requires = append(s.Requires, types.Resource{URL: resolve(s.SourceURL, value)})
		}
	case "resource":
		if fields := strings.Fields(value); len(fields) >= 2 {
			s.Resources = append(s.Resources, types.Resource{Name: fields[0], URL: resolve(s.SourceURL, fields[1])})
		}
	}
}

func appendNonEmpty(dst *[]string, value string) {
	if value != "" {
		*dst = append(*dst, value)
	}
}

// resolve makes relative @require/@resource URLs absolute against the
// script's own URL.
func resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func fillDefaults(s *types.Script) {
	var u *url.URL
	if s.SourceURL != "" {
		u, _ = url.Parse(s.SourceURL)
	}

	if s.Name == "" {
		s.Name = DefaultName
		if u != nil {
			if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
				base = strings.TrimSuffix(base, ".user.js")
				base = strings.TrimSuffix(base, ".js")
				if base != "" {
					s.Name = base
				}
			}
		}
	}
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
		if u != nil && u.Host != "" {
			s.Namespace = u.Host
		}
	}
	if s.Version == "" {
		s.Version = DefaultVersion
	}
}

// IsUserScriptURL reports whether a link points at an installable script.
func IsUserScriptURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".user.js")
}
