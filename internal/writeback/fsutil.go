package writeback

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/imgnamer/internal/doctree"
)

const backupStampLayout = "20060102-150405"

// writeAtomic replaces dest through a temp file in the same directory so a
// crash never leaves a half-written document.
func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(dest); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, perm)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// createExclusive writes data to the first free path among base, base-2,
// base-3, ... (suffix inserted before ext). Existing files are never
// overwritten.
func createExclusive(dir, base, ext string, data []byte) (string, error) {
	for n := 1; n < 1000; n++ {
		name := base + ext
		if n > 1 {
			name = fmt.Sprintf("%s-%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s%s in %s", base, ext, dir)
}

// backup copies the document, and every local file about to be moved, to
// timestamped locations before any mutation.
func (e *Engine) backup(doc *doctree.Document, plans []plan, attachDir string, now time.Time) (string, error) {
	return backupDocument(doc.Path, now, func() error {
		dir := filepath.Join(attachDir, ".backup", now.Format(backupStampLayout))
		for _, p := range plans {
			if p.action != actionMove {
				continue
			}
			data, err := os.ReadFile(p.source)
			if err != nil {
				return fmt.Errorf("read %s: %w", p.source, err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			ext := filepath.Ext(p.source)
			if _, err := createExclusive(dir, strings.TrimSuffix(filepath.Base(p.source), ext), ext, data); err != nil {
				return fmt.Errorf("backup %s: %w", p.source, err)
			}
		}
		return nil
	})
}

// backupDocument copies the document's bytes as found on disk to
// "<name>.<stamp>.bak" next to it, then runs extra. The returned path is the
// document backup.
func backupDocument(path string, now time.Time, extra func() error) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup, err := createExclusive(filepath.Dir(path), filepath.Base(path)+"."+now.Format(backupStampLayout), ".bak", data)
	if err != nil {
		return "", err
	}
	if extra != nil {
		if err := extra(); err != nil {
			return backup, err
		}
	}
	return backup, nil
}

// moveFile renames src to dst, falling back to copy and remove across
// devices. dst must not exist.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("destination exists: %s", dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies src to dst. dst must not exist.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
