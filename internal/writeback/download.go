package writeback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	maxDownloadBytes = 50 << 20
	userAgent        = "imgnamer/1.0 (+image downloader)"
	acceptHeader     = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

var knownImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
	".svg": true, ".tif": true, ".tiff": true, ".ico": true, ".heic": true, ".avif": true,
}

// download fetches rawURL into attachDir as name plus a detected extension.
// resolve picks the final collision-free file name.
func (e *Engine) download(ctx context.Context, rawURL, attachDir, name string, rt Runtime, resolve func(string) string, m moveMap, now time.Time) (string, error) {
	timeout := time.Duration(rt.DownloadTimeout * float64(time.Second))
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxDownloadBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxDownloadBytes)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("not an image (%s)", mt.String())
	}
	ext := urlExt(rawURL)
	if ext == "" {
		ext = mt.Extension()
	}

	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(attachDir, resolve(name+ext))
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	sum, _ := hashFile(target)
	m[moveDownload+":"+rawURL] = &moveEntry{
		Type:      moveDownload,
		Original:  rawURL,
		Target:    target,
		TargetRel: relSlash(filepath.Dir(attachDir), target),
		SHA256:    sum,
		MovedAt:   now,
	}
	return target, nil
}

// urlExt returns the lower-cased image extension of the URL path, or "".
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if knownImageExts[ext] {
		return ext
	}
	return ""
}
