package pipeline

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dgallion1/imgnamer/internal/writeback"
)

// ImageResolver turns an image reference into something a vision model can
// read: a data URL for local files, or the URL itself for remote images.
type ImageResolver interface {
	Resolve(docDir, src string) (string, error)
}

// FileResolver reads local images from disk.
type FileResolver struct {
	MaxBytes int64
}

const defaultMaxImageBytes = 20 << 20

func (r FileResolver) Resolve(docDir, src string) (string, error) {
	s := strings.TrimSpace(src)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "data:image/") {
		return s, nil
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s, nil
	}

	path, ok := writeback.ResolveLocal(docDir, s)
	if !ok {
		return "", fmt.Errorf("image not found: %s", src)
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("image %s exceeds %d bytes", filepath.Base(path), limit)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mt.String())
	}
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
