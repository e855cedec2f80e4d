package writeback

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/dgallion1/imgnamer/internal/parser"
)

// NormalizeResult reports how many <img> tags were converted.
type NormalizeResult struct {
	Updated   bool   `json:"updated"`
	Converted int    `json:"converted"`
	Backup    string `json:"backup,omitempty"`
}

// NormalizeHTML rewrites every <img> tag in the document as Markdown image
// syntax, keeping src, alt and title.
func (e *Engine) NormalizeHTML(docPath string, rt Runtime, rec Recorder) (*NormalizeResult, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	doc, err := parser.ParseFile(docPath)
	if err != nil {
		return nil, &PreconditionError{Reason: err.Error()}
	}

	var edits []edit
	for _, img := range doc.Images {
		if img.Kind != doctree.KindHTML {
			continue
		}
		edits = append(edits, edit{start: img.Start, end: img.End, text: MarkdownImage(img.Alt, img.Src, img.TitleAttr)})
	}
	res := &NormalizeResult{Converted: len(edits)}
	if len(edits) == 0 {
		rec.Record(slog.LevelInfo, 0, "no <img> tags found")
		return res, nil
	}

	if rt.Backup {
		backup, err := backupDocument(doc.Path, e.now(), nil)
		if err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		res.Backup = backup
	}
	if err := writeAtomic(doc.Path, applyEdits(doc.Source, edits)); err != nil {
		return res, fmt.Errorf("write document: %w", err)
	}
	res.Updated = true
	rec.Record(slog.LevelInfo, 0, fmt.Sprintf("converted %d <img> tag(s)", res.Converted))
	return res, nil
}

// MarkdownImage formats ![alt](src "title").
func MarkdownImage(alt, src, title string) string {
	if strings.ContainsAny(src, " ()<>") {
		src = "<" + src + ">"
	}
	var b strings.Builder
	b.WriteString("![")
	b.WriteString(escapeMarkdownAlt(alt))
	b.WriteString("](")
	b.WriteString(src)
	if title != "" {
		b.WriteString(` "`)
		b.WriteString(strings.ReplaceAll(title, `"`, `\"`))
		b.WriteString(`"`)
	}
	b.WriteString(")")
	return b.String()
}
