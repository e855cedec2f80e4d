package writeback

import (
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// maxSearchDepth bounds the basename search below the document directory.
const maxSearchDepth = 4

// ResolveLocal finds the file a local image reference points at. It tries
// the path as written, then percent-decoded, then searches the document's
// directory tree for a file with the same base name.
func ResolveLocal(docDir, src string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return "", false
	}
	if i := strings.IndexAny(src, "?#"); i > 0 {
		src = src[:i]
	}
	src = strings.TrimPrefix(src, "file://")

	candidates := []string{src}
	if dec, err := url.PathUnescape(src); err == nil && dec != src {
		candidates = append(candidates, dec)
	}
	for _, c := range candidates {
		p := filepath.FromSlash(c)
		if !filepath.IsAbs(p) {
			p = filepath.Join(docDir, p)
		}
		if isRegular(p) {
			if abs, err := filepath.Abs(p); err == nil {
				return abs, true
			}
			return p, true
		}
	}

	base := filepath.Base(filepath.FromSlash(candidates[len(candidates)-1]))
	if base == "." || base == string(filepath.Separator) {
		return "", false
	}
	return searchByName(docDir, base)
}

func searchByName(root, base string) (string, bool) {
	var found string
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && (strings.HasPrefix(d.Name(), ".") || strings.Count(p, string(filepath.Separator))-rootDepth > maxSearchDepth) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(d.Name(), base) {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", false
	}
	if abs, err := filepath.Abs(found); err == nil {
		found = abs
	}
	return found, true
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
