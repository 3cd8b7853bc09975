// Package detect finds installable userscript links in HTML pages.
package detect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/metadata"
)

// Link is an installable script link found on a page
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// InstallableLinks returns the .user.js links of an HTML document, resolved
// against base, deduplicated and in document order. A <base href> in the
// document takes precedence over base.
func InstallableLinks(html, base string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := baseURL.Parse(strings.TrimSpace(href)); err == nil {
			baseURL = u
		}
	}

	seen := make(map[string]bool)
	links := []Link{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			return
		}
		u, err := baseURL.Parse(href)
		if err != nil {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if seen[abs] || !metadata.IsUserScriptURL(abs) {
			return
		}
		seen[abs] = true
		links = append(links, Link{URL: abs, Text: strings.Join(strings.Fields(s.Text()), " ")})
	})
	return links, nil
}
