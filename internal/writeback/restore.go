package writeback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/dgallion1/imgnamer/internal/parser"
)

// RestoreResult reports what a restore call undid.
type RestoreResult struct {
	Updated  bool   `json:"updated"`
	Restored int    `json:"restored"`
	Backup   string `json:"backup,omitempty"`
}

// Restore undoes earlier apply passes recorded in the move map: local files
// go back to their original paths, copies and downloads are removed, and every
// link that points at a moved file is pointed back at its original. Links
// are only rewritten for files that were restored.
func (e *Engine) Restore(ctx context.Context, docPath string, rt Runtime, rec Recorder) (*RestoreResult, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	doc, err := parser.ParseFile(docPath)
	if err != nil {
		return nil, &PreconditionError{Reason: err.Error()}
	}
	docDir := absDir(doc.Path)
	attachDir := filepath.Join(docDir, rt.attachDir())

	moves, err := loadMoves(attachDir)
	if err != nil {
		return nil, fmt.Errorf("load move map: %w", err)
	}
	res := &RestoreResult{}
	if len(moves) == 0 {
		rec.Record(slog.LevelInfo, 0, "nothing to restore")
		return res, nil
	}

	byTarget := make(map[string]string, len(moves))
	for key, m := range moves {
		byTarget[m.Target] = key
	}

	pending := make(map[string][]edit)
	for _, img := range doc.Images {
		if img.Remote() {
			continue
		}
		local, ok := ResolveLocal(docDir, img.Src)
		if !ok {
			continue
		}
		key, ok := byTarget[local]
		if !ok {
			continue
		}
		m := moves[key]
		back := m.Original
		if m.Type != moveDownload {
			back = relSlash(docDir, m.Original)
		}
		pending[key] = append(pending[key], srcEdit(doc.Source, img, back))
	}

	if rt.Backup {
		now := e.now()
		backup, err := e.backupBeforeRestore(doc, moves, attachDir, now)
		if err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		res.Backup = backup
	}

	keys := make([]string, 0, len(moves))
	for key := range moves {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var edits []edit
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			rec.Record(slog.LevelWarn, 0, "restore cancelled")
			break
		}
		m := moves[key]
		switch m.Type {
		case moveLocal:
			if err := moveFile(m.Target, m.Original); err != nil {
				rec.Record(slog.LevelError, 0, fmt.Sprintf("restore %s: %v", m.TargetRel, err))
				continue
			}
		case moveCopy, moveDownload:
			if err := os.Remove(m.Target); err != nil && !os.IsNotExist(err) {
				rec.Record(slog.LevelWarn, 0, fmt.Sprintf("remove download %s: %v", m.TargetRel, err))
			}
		}
		delete(moves, key)
		edits = append(edits, pending[key]...)
		res.Restored++
	}

	if err := saveMoves(attachDir, moves); err != nil {
		rec.Record(slog.LevelError, 0, "save move map: "+err.Error())
	}

	out := applyEdits(doc.Source, edits)
	if string(out) != string(doc.Source) {
		if err := writeAtomic(doc.Path, out); err != nil {
			return res, fmt.Errorf("write document: %w", err)
		}
		res.Updated = true
	}
	rec.Record(slog.LevelInfo, 0, fmt.Sprintf("restored %d file(s)", res.Restored))
	return res, nil
}

func (e *Engine) backupBeforeRestore(doc *doctree.Document, moves moveMap, attachDir string, now time.Time) (string, error) {
	plans := make([]plan, 0, len(moves))
	for _, m := range moves {
		if m.Type == moveLocal {
			plans = append(plans, plan{action: actionMove, source: m.Target})
		}
	}
	return e.backup(doc, plans, attachDir, now)
}
