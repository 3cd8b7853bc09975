package metadata

import (
	"strings"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// Serialize renders a canonical metadata block for s followed by its code.
// Parse(Serialize(s), s.SourceURL) yields the same metadata fields.
func Serialize(s *types.Script) []byte {
	var b strings.Builder

	b.WriteString(OpenMarker)
	b.WriteByte('\n')

	field := func(key, value string) {
		value = oneLine(value)
		if value == "" {
			return
		}
		b.WriteString("// @")
		b.WriteString(key)
		b.WriteByte(' ')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	field("name", s.Name)
	field("namespace", s.Namespace)
	field("version", s.Version)
	field("description", s.Description)
	field("author", s.Author)
	field("homepage", s.Homepage)
	field("icon", s.Icon)
	field("downloadURL", s.DownloadURL)
	field("updateURL", s.UpdateURL)
	if s.RunAt != "" {
		field("run-at", string(s.RunAt))
	}
	if s.NoFrames {
		b.WriteString("// @noframes\n")
	}
	for _, v := range s.Includes {
		field("include", v)
	}
	for _, v := range s.Excludes {
		field("exclude", v)
	}
	for _, v := range s.Matches {
		field("match", v)
	}
	for _, r := range s.Requires {
		field("require", r.URL)
	}
	for _, r := range s.Resources {
		field("resource", r.Name+" "+oneLine(r.URL))
	}
	for _, g := range s.Grants {
		field("grant", g)
	}

	b.WriteString(CloseMarker)
	b.WriteByte('\n')
	b.WriteString(s.Code)

	return []byte(b.String())
}

func oneLine(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(v))
}
