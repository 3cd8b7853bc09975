// Package resources caches the bodies of @require and @resource URLs so
// scripts run from local copies.
package resources

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
)

// KeyPrefix namespaces cached bodies in the KV store
const KeyPrefix = "resource/"

// ErrNotCached is returned when a URL has no cached body
var ErrNotCached = errors.New("resource not cached")

// Entry is one cached body
type Entry struct {
	URL       string    `json:"url"`
	MimeType  string    `json:"mime_type"`
	Data      []byte    `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache stores fetched resources keyed by the SHA-256 of their URL
type Cache struct {
	kv persistence.KV
}

// NewCache creates a cache over kv
func NewCache(kv persistence.KV) *Cache {
	return &Cache{kv: kv}
}

// Key returns the cache key for url
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Has reports whether url is cached
func (c *Cache) Has(ctx context.Context, url string) bool {
	_, err := c.kv.Get(ctx, Key(url))
	return err == nil
}

// Put stores data for url. The declared content type wins when it is
// specific; otherwise the type is sniffed from the body.
func (c *Cache) Put(ctx context.Context, url string, data []byte, contentType string) (*Entry, error) {
	e := &Entry{
		URL:       url,
		MimeType:  detectType(data, contentType),
		Data:      data,
		FetchedAt: time.Now().UTC(),
	}
	raw, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode resource %s: %w", url, err)
	}
	if err := c.kv.Put(ctx, Key(url), raw); err != nil {
		return nil, fmt.Errorf("store resource %s: %w", url, err)
	}
	return e, nil
}

// Get returns the cached entry for url
func (c *Cache) Get(ctx context.Context, url string) (*Entry, error) {
	raw, err := c.kv.Get(ctx, Key(url))
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := sonic.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode resource %s: %w", url, err)
	}
	return &e, nil
}

// Text returns the cached body as a string
func (c *Cache) Text(ctx context.Context, url string) (string, error) {
	e, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(e.Data), nil
}

// DataURI returns the cached body as a base64 data: URI
func (c *Cache) DataURI(ctx context.Context, url string) (string, error) {
	e, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return "data:" + e.MimeType + ";base64," + base64.StdEncoding.EncodeToString(e.Data), nil
}

// Delete drops url from the cache
func (c *Cache) Delete(ctx context.Context, url string) error {
	return c.kv.Delete(ctx, Key(url))
}

func detectType(data []byte, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && !generic(mt) {
			return mt
		}
	}
	mt := mimetype.Detect(data).String()
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

func generic(mt string) bool {
	return mt == "application/octet-stream" || mt == "text/plain" || strings.HasPrefix(mt, "binary/")
}
