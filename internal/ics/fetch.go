package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 32 << 20
)

// StatusError is a non-2xx answer from a feed server.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status " + e.Status
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds over HTTP(S) with optional basic auth.
//
// When CacheDir is set, bodies are stored per URL and revalidated with
// ETag / Last-Modified. The cache only answers 304 responses; transport
// errors and non-OK statuses are always returned to the caller.
type Fetcher struct {
	client       *http.Client
	cacheDir     string
	maxBodyBytes int64
	userAgent    string
}

// FetcherOptions configures NewFetcher. Zero values pick defaults.
type FetcherOptions struct {
	Timeout      time.Duration
	CacheDir     string
	MaxBodyBytes int64
	UserAgent    string
	Client       *http.Client
}

// NewFetcher creates a new ICS Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "ical2mail"
	}
	return &Fetcher{
		client:       client,
		cacheDir:     opts.CacheDir,
		maxBodyBytes: maxBody,
		userAgent:    ua,
	}
}

// Fetch retrieves the document of src.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	if src.HasCredentials() {
		req.SetBasicAuth(src.Username, src.Password)
	}

	var (
		cachePath  string
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(src.URL)
		meta, _ := loadCacheMeta(cachePath)
		cachedBody, _ = loadCacheBody(cachePath)
		if len(cachedBody) > 0 {
			// Conditional headers from cache metadata.
			if meta.ETag != "" {
				req.Header.Set("If-None-Match", meta.ETag)
			}
			if meta.LastModified != "" {
				req.Header.Set("If-Modified-Since", meta.LastModified)
			}
		}
	}

	appLog.Debug("ics fetch start", "source", src.Label())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && len(cachedBody) > 0:
		appLog.Debug("ics fetch not modified; using cache", "source", src.Label())
		return cachedBody, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := readAllWithLimit(resp.Body, f.maxBodyBytes)
		if err != nil {
			return nil, err
		}
		if cachePath != "" {
			meta := cacheEntry{
				URL:          appLog.RedactURL(src.URL),
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, meta, body); err != nil {
				// Log but still return the freshly fetched body.
				appLog.Error("ics cache save failed", err, "source", src.Label())
			}
		}
		appLog.Debug("ics fetch success", "source", src.Label(), "status", resp.StatusCode, "bytes", len(body))
		return body, nil

	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeded limit of %d bytes", limit)
	}
	return data, nil
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
