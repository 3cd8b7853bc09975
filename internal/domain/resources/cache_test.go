package resources

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
)

// 1x1 transparent PNG
var pngPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestCachePutGet(t *testing.T) {
	ctx := context.Background()
	c := NewCache(persistence.NewMemory())
	url := "https://cdn.example.com/lib.js"

	assert.False(t, c.Has(ctx, url))
	_, err := c.Get(ctx, url)
	assert.ErrorIs(t, err, ErrNotCached)

	e, err := c.Put(ctx, url, []byte("window.lib = 1;"), "application/javascript; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "application/javascript", e.MimeType)
	assert.True(t, c.Has(ctx, url))

	text, err := c.Text(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "window.lib = 1;", text)
}

func TestCacheSniffsGenericTypes(t *testing.T) {
	ctx := context.Background()
	c := NewCache(persistence.NewMemory())

	e, err := c.Put(ctx, "https://cdn.example.com/icon", pngPixel, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "image/png", e.MimeType)

	uri, err := c.DataURI(ctx, "https://cdn.example.com/icon")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,iVBOR"))
}

func TestCacheKeyIsStable(t *testing.T) {
	a := Key("https://cdn.example.com/a.js")
	assert.Equal(t, a, Key("https://cdn.example.com/a.js"))
	assert.NotEqual(t, a, Key("https://cdn.example.com/b.js"))
	assert.True(t, strings.HasPrefix(a, KeyPrefix))
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache(persistence.NewMemory())
	_, err := c.Put(ctx, "u", []byte("x"), "")
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "u"))
	assert.False(t, c.Has(ctx, "u"))
}
