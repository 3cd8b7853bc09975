package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallableLinks(t *testing.T) {
	html := `<html><body>
		<a href="/scripts/dark.user.js">Install
			Dark</a>
		<a href="https://cdn.example.org/x.user.js?v=2#top">X</a>
		<a href="/scripts/dark.user.js#again">dup</a>
		<a href="/scripts/readme.txt">readme</a>
		<a href="javascript:void(0)">nope</a>
		<a href="ftp://example.com/a.user.js">ftp</a>
		<a href="#">anchor</a>
	</body></html>`

	links, err := InstallableLinks(html, "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, []Link{
		{URL: "https://example.com/scripts/dark.user.js", Text: "Install Dark"},
		{URL: "https://cdn.example.org/x.user.js?v=2", Text: "X"},
	}, links)
}

func TestBaseElement(t *testing.T) {
	html := `<html><head><base href="https://mirror.example/s/"></head>
		<body><a href="a.user.js">a</a></body></html>`

	links, err := InstallableLinks(html, "https://example.com/")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://mirror.example/s/a.user.js", links[0].URL)
}

func TestNoLinks(t *testing.T) {
	links, err := InstallableLinks("<p>nothing</p>", "https://example.com/")
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestBadBase(t *testing.T) {
	_, err := InstallableLinks("<p></p>", "://bad")
	assert.Error(t, err)
}
