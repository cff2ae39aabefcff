package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	appLog "slotbot/internal/log"
)

// cacheEntry holds HTTP cache metadata for a single search URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Options configures a Client.
type Options struct {
	// SearchURL is the event-search endpoint including its fixed query
	// string, e.g. "https://asvz.ch/asvz_api/event_search?format=json".
	SearchURL string
	Timeout   time.Duration
	// CacheDir enables the disk cache when non-empty.
	CacheDir   string
	RatePerSec float64

	// Fs defaults to the OS filesystem.
	Fs         afero.Fs
	HTTPClient *http.Client
}

// Client queries the event-search endpoint with HTTP caching
// (ETag / Last-Modified) and a disk-backed fallback copy of the last
// successful response per query.
type Client struct {
	searchURL string
	client    *http.Client
	fs        afero.Fs
	cacheDir  string
	limiter   *rate.Limiter
}

// NewClient creates a new catalog Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &Client{
		searchURL: opts.SearchURL,
		client:    hc,
		fs:        opts.Fs,
		cacheDir:  opts.CacheDir,
		limiter:   lim,
	}
}

// fetch performs a GET honoring ETag and Last-Modified. On network errors
// and non-OK statuses it falls back to the cached body when one exists.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, bool, error) {
	if url == "" {
		return nil, false, errors.New("catalog: url is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	cachePath := c.cachePathForURL(url)
	var (
		meta       cacheEntry
		cachedBody []byte
	)
	if cachePath != "" {
		if err := c.fs.MkdirAll(cachePath, 0o700); err != nil {
			return nil, false, err
		}
		meta, _ = c.loadCacheMeta(cachePath)
		cachedBody, _ = afero.ReadFile(c.fs, filepath.Join(cachePath, "body.json"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	// Conditional headers from cache metadata.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("catalog fetch start", "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		// Network error; if we have a cached body, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Error("catalog fetch network error, using cached body", err, "url", url)
			return cachedBody, true, nil
		}
		return nil, false, fmt.Errorf("catalog: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, false, fmt.Errorf("catalog: read response: %w", readErr)
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := c.saveCache(cachePath, newMeta, body); err != nil {
				// Log but still return the freshly fetched body.
				appLog.Error("catalog cache save failed", err, "url", url)
			}
		}

		appLog.Debug("catalog fetch success", "url", url, "status", resp.StatusCode, "bytes", len(body))
		return body, false, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, false, errors.New("catalog: received 304 Not Modified but no cached body available")
		}
		appLog.Debug("catalog fetch not modified; using cache", "url", url)
		return cachedBody, true, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("catalog fetch non-OK, using cached body", errors.New(resp.Status), "url", url, "status", resp.StatusCode)
			return cachedBody, true, nil
		}
		return nil, false, fmt.Errorf("catalog: %s", resp.Status)
	}
}

func (c *Client) cachePathForURL(url string) string {
	if c.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(c.cacheDir, hex.EncodeToString(sum[:8]))
}

func (c *Client) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := afero.ReadFile(c.fs, filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (c *Client) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := afero.WriteFile(c.fs, filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, filepath.Join(cachePath, "meta.json"), data, 0o600)
}
