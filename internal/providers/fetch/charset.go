package fetch

import (
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

var textExtensions = map[string]bool{
	".js":   true,
	".mjs":  true,
	".css":  true,
	".json": true,
	".txt":  true,
	".html": true,
	".xml":  true,
	".svg":  true,
}

// isText reports whether a body should be treated as text
func isText(contentType, rawURL string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasPrefix(mt, "text/"),
			strings.Contains(mt, "javascript"),
			strings.Contains(mt, "json"),
			strings.Contains(mt, "xml"),
			strings.Contains(mt, "ecmascript"):
			return true
		case mt != "application/octet-stream":
			return false
		}
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return textExtensions[strings.ToLower(path.Ext(rawURL))]
}

// DetectCharset guesses the charset of data
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// toUTF8 converts data to UTF-8 using the declared charset, or a detected
// one when none is declared. Valid UTF-8 passes through unchanged, minus a
// byte order mark.
func toUTF8(data []byte, contentType string) []byte {
	if utf8.Valid(data) {
		return data
	}

	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" || strings.EqualFold(label, "utf-8") {
		label = DetectCharset(data)
	}

	enc, _ := charset.Lookup(label)
	if enc == nil {
		return data
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}
