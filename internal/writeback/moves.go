package writeback

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// MovesFileName is the move map kept inside the attachment directory.
const MovesFileName = ".image_moves.json"

const (
	moveLocal    = "local"
	moveCopy     = "copy"
	moveDownload = "remote"
)

// moveEntry records where an image file came from and where it lives now.
type moveEntry struct {
	Type        string    `json:"type"`
	Original    string    `json:"original"`               // absolute path, or URL for downloads
	OriginalRel string    `json:"original_rel,omitempty"` // relative to the document
	Target      string    `json:"target"`
	TargetRel   string    `json:"target_rel"`
	SHA256      string    `json:"sha256"`
	MovedAt     time.Time `json:"moved_at"`
}

// moveMap is keyed by "<type>:<original>".
type moveMap map[string]*moveEntry

func loadMoves(attachDir string) (moveMap, error) {
	data, err := os.ReadFile(filepath.Join(attachDir, MovesFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return moveMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := moveMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MovesFileName, err)
	}
	return m, nil
}

func saveMoves(attachDir string, m moveMap) error {
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(attachDir, MovesFileName), data)
}

// byTarget finds the entry whose file currently lives at target.
func (m moveMap) byTarget(target string) *moveEntry {
	for _, e := range m {
		if e.Target == target {
			return e
		}
	}
	return nil
}

// moveLocal moves p.source to p.target and records it. A file that was
// already moved by an earlier pass keeps its first original so restore
// goes all the way back.
func (e *Engine) moveLocal(p plan, docDir string, m moveMap, now time.Time) error {
	if err := moveFile(p.source, p.target); err != nil {
		return fmt.Errorf("move %s: %w", filepath.Base(p.source), err)
	}
	sum, err := hashFile(p.target)
	if err != nil {
		e.log.Warn("hash moved file", "path", p.target, "error", err)
	}

	if prev := m.byTarget(p.source); prev != nil {
		prev.Target = p.target
		prev.TargetRel = relSlash(docDir, p.target)
		prev.SHA256 = sum
		prev.MovedAt = now
		return nil
	}
	m[moveLocal+":"+p.source] = &moveEntry{
		Type:        moveLocal,
		Original:    p.source,
		OriginalRel: relSlash(docDir, p.source),
		Target:      p.target,
		TargetRel:   relSlash(docDir, p.target),
		SHA256:      sum,
		MovedAt:     now,
	}
	return nil
}

// copyLocal copies p.source to p.target, leaving the original for the
// images that still point at it.
func (e *Engine) copyLocal(p plan, docDir string, m moveMap, now time.Time) error {
	if err := copyFile(p.source, p.target); err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(p.source), err)
	}
	sum, err := hashFile(p.target)
	if err != nil {
		e.log.Warn("hash copied file", "path", p.target, "error", err)
	}
	m[moveCopy+":"+p.target] = &moveEntry{
		Type:        moveCopy,
		Original:    p.source,
		OriginalRel: relSlash(docDir, p.source),
		Target:      p.target,
		TargetRel:   relSlash(docDir, p.target),
		SHA256:      sum,
		MovedAt:     now,
	}
	return nil
}
