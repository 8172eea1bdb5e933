package loader

import (
	"context"
	"crypto/md5" //nolint:gosec // cache key, not security
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// cacheTTL is how long a downloaded database stays fresh before it is
// re-fetched.
const cacheTTL = 24 * time.Hour

const downloadTimeout = 5 * time.Minute

// download fetches the remote database, reusing a cached copy younger
// than cacheTTL. It returns the local path of the database file.
func (l *Loader) download(ctx context.Context) (string, error) {
	// Shared-access URLs carry their expiry in the query string; a
	// download attempt against an expired URL can never succeed.
	if expired, expiry := urlExpired(l.source.URL, time.Now()); expired {
		return "", fmt.Errorf("source URL expired on %s", expiry.Format(time.RFC3339))
	}

	cacheFile, err := l.cachePath()
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(cacheFile); err == nil {
		age := time.Since(info.ModTime())
		if age < cacheTTL {
			l.logger.Info("using cached database", "path", cacheFile, "age", age.Round(time.Minute))
			return cacheFile, nil
		}
		l.logger.Info("cache expired, downloading fresh copy", "path", cacheFile)
	}

	l.logger.Info("downloading database", "url", l.source.URL)

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download database: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("access denied (HTTP 403): URL may have expired")
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("database not found at URL (HTTP 404)")
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Download to a temp file first so an interrupted transfer never
	// leaves a truncated database in the cache.
	tmp, err := os.CreateTemp(filepath.Dir(cacheFile), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write database: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write database: %w", closeErr)
	}
	if err := os.Rename(tmp.Name(), cacheFile); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move into cache: %w", err)
	}

	l.logger.Info("database downloaded", "bytes", written, "path", cacheFile)
	return cacheFile, nil
}

// cachePath returns the cache file for the source URL. The file name
// hashes the URL without its query string so rotated access tokens
// still hit the same cache entry.
func (l *Loader) cachePath() (string, error) {
	dir := l.source.CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "timesviz")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	u, err := url.Parse(l.source.URL)
	if err != nil {
		return "", fmt.Errorf("parse source URL: %w", err)
	}
	base := u.Scheme + "://" + u.Host + u.Path
	hash := fmt.Sprintf("%x", md5.Sum([]byte(base)))[:8] //nolint:gosec
	return filepath.Join(dir, "cached_db_"+hash+".duckdb"), nil
}

// urlExpired checks the Azure shared-access-signature expiry parameter
// ("se"). URLs without one never count as expired.
func urlExpired(rawURL string, now time.Time) (bool, time.Time) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, time.Time{}
	}
	se := u.Query().Get("se")
	if se == "" {
		return false, time.Time{}
	}
	expiry, err := time.Parse(time.RFC3339, se)
	if err != nil {
		return false, time.Time{}
	}
	return now.After(expiry), expiry
}
