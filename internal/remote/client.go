// Package remote fetches the conference schedule document for one
// conference edition over HTTP.
//
// The wire format of the document is opaque to the rest of the system: a
// Decoder turns the response body into a model.Schedule and everything past
// that point works on the decoded value. The client keeps a small on-disk
// cache keyed by ETag/Last-Modified so unchanged snapshots do not get
// re-downloaded every sync interval.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/confapp/schedstore/internal/model"
)

// ErrFetch wraps every network or server-side failure. The synchronizer
// checks for it only to log; fetch failures are recovered by retrying at
// the next tick.
var ErrFetch = errors.New("schedule fetch failed")

// Decoder turns a raw schedule document into a Schedule value.
type Decoder interface {
	Decode(body []byte) (*model.Schedule, error)
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the document endpoint. The conference year is appended as
	// a path segment: {BaseURL}/{year}/schedule.json
	BaseURL string

	// Year is the conference edition this client is bound to.
	Year int

	// CacheDir holds the ETag/Last-Modified cache. Empty disables caching.
	CacheDir string

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// Decoder decodes the response body. Defaults to the JSON snapshot
	// decoder.
	Decoder Decoder

	// Logger for fetch activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Client fetches and decodes the schedule snapshot for one conference year.
type Client struct {
	url      string
	cacheDir string
	client   *http.Client
	decoder  Decoder
	logger   *log.Logger
}

// New creates a schedule client. The year and endpoint are fixed at
// construction; there is no ambient configuration.
func New(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	decoder := config.Decoder
	if decoder == nil {
		decoder = JSONDecoder{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &Client{
		url:      fmt.Sprintf("%s/%d/schedule.json", config.BaseURL, config.Year),
		cacheDir: config.CacheDir,
		client:   &http.Client{Timeout: timeout},
		decoder:  decoder,
		logger:   logger,
	}
}

// Fetch retrieves and decodes the schedule snapshot. A 304 response is
// served from the local cache; network failures fall back to the cached
// body when one exists, and otherwise return an error wrapping ErrFetch.
func (c *Client) Fetch(ctx context.Context) (*model.Schedule, error) {
	body, err := c.fetchBody(ctx)
	if err != nil {
		return nil, err
	}

	schedule, err := c.decoder.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}
	return schedule, nil
}

func (c *Client) fetchBody(ctx context.Context) ([]byte, error) {
	meta, cached := c.loadCache()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			c.logger.Printf("fetch failed, using cached snapshot: %v", err)
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
		}
		c.saveCache(cacheMeta{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, body)
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, fmt.Errorf("%w: 304 with no cached snapshot", ErrFetch)
		}
		return cached, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrFetch, resp.Status)
	}
}

// cacheMeta holds the conditional-request headers for the cached snapshot.
type cacheMeta struct {
	ETag         string
	LastModified string
}

func (c *Client) cachePaths() (metaPath, bodyPath string, ok bool) {
	if c.cacheDir == "" {
		return "", "", false
	}
	sum := sha256.Sum256([]byte(c.url))
	key := hex.EncodeToString(sum[:8])
	return filepath.Join(c.cacheDir, key+".meta"), filepath.Join(c.cacheDir, key+".body"), true
}

func (c *Client) loadCache() (cacheMeta, []byte) {
	metaPath, bodyPath, ok := c.cachePaths()
	if !ok {
		return cacheMeta{}, nil
	}

	var meta cacheMeta
	if raw, err := os.ReadFile(metaPath); err == nil {
		lines := splitTwo(string(raw))
		meta.ETag, meta.LastModified = lines[0], lines[1]
	}
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return meta, nil
	}
	return meta, body
}

func (c *Client) saveCache(meta cacheMeta, body []byte) {
	metaPath, bodyPath, ok := c.cachePaths()
	if !ok {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0700); err != nil {
		c.logger.Printf("warning: cache dir: %v", err)
		return
	}
	if err := os.WriteFile(bodyPath, body, 0600); err != nil {
		c.logger.Printf("warning: cache body: %v", err)
		return
	}
	if err := os.WriteFile(metaPath, []byte(meta.ETag+"\n"+meta.LastModified+"\n"), 0600); err != nil {
		c.logger.Printf("warning: cache meta: %v", err)
	}
}

// splitTwo returns the first two newline-separated fields of s, padding
// with empty strings.
func splitTwo(s string) [2]string {
	var out [2]string
	field := 0
	start := 0
	for i := 0; i < len(s) && field < 2; i++ {
		if s[i] == '\n' {
			out[field] = s[start:i]
			field++
			start = i + 1
		}
	}
	return out
}
