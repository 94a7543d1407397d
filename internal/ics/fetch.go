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

	appLog "edtassist/internal/log"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 30 * time.Second

// FetchError reports that the feed of a user could not be retrieved.
type FetchError struct {
	UserID string
	// Status is the HTTP status code, zero for transport failures.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("could not retrieve the timetable for %q (status %d); the identifier may be invalid", e.UserID, e.Status)
	}
	return fmt.Sprintf("could not retrieve the timetable for %q; the identifier may be invalid: %v", e.UserID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult contains the outcome of fetching one feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // true if we reused cached body due to 304
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves calendar feeds with HTTP conditional requests
// (ETag / Last-Modified) backed by a disk cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. An empty cacheDir disables the disk cache;
// a non-positive timeout uses DefaultTimeout.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// Fetch performs a GET on url for userID. Any non-OK answer other than a
// 304 backed by a cached body, and any transport failure including the
// client timeout, is returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, userID, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, &FetchError{UserID: userID, Err: errors.New("feed URL is empty")}
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(url)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("ics cache dir create failed", err, "user", userID)
			cachePath = ""
		} else {
			meta, _ = f.loadCacheMeta(cachePath)
			cachedBody, _ = f.loadCacheBody(cachePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, &FetchError{UserID: userID, Err: err}
	}

	// Conditional headers only make sense when we can serve the cached body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("ics fetch start", "user", userID, "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{UserID: userID, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, &FetchError{UserID: userID, Err: readErr}
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, newMeta, body); err != nil {
				// Log but still return the freshly fetched body.
				appLog.Error("ics cache save failed", err, "user", userID, "url", redactURL(url))
			}
		}

		appLog.Info("ics fetch success", "user", userID, "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{URL: url, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, &FetchError{UserID: userID, Status: resp.StatusCode,
				Err: errors.New("received 304 Not Modified but no cached body available")}
		}
		appLog.Info("ics fetch not modified; using cache", "user", userID)
		return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil

	default:
		return FetchResult{}, &FetchError{UserID: userID, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
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

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
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

// redactURL hides everything after the host, since the query carries the
// user identifier.
//
//	https://example.com/path/to/private.ics?login=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
