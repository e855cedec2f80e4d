package writeback

import (
	"html"
	"strings"

	"github.com/dgallion1/imgnamer/internal/doctree"
)

// rewrite returns the byte edits that point img at newSrc and, when setAlt
// is true, replace its alt text with name. Unchanged values produce no edit.
func rewrite(src []byte, img *doctree.ImageRef, newSrc, name string, setAlt bool) []edit {
	var edits []edit
	if newSrc != "" && newSrc != img.Src {
		edits = append(edits, srcEdit(src, img, newSrc))
	}
	if setAlt {
		if ed, ok := altEdit(src, img, name); ok {
			edits = append(edits, ed)
		}
	}
	return edits
}

func srcEdit(src []byte, img *doctree.ImageRef, newSrc string) edit {
	ed := edit{start: img.SrcStart, end: img.SrcEnd, text: newSrc}
	switch img.Kind {
	case doctree.KindMarkdown, doctree.KindReference:
		angled := img.SrcStart > 0 && src[img.SrcStart-1] == '<'
		if !angled && strings.ContainsAny(newSrc, " ()<>") {
			ed.text = "<" + newSrc + ">"
		}
	case doctree.KindHTML:
		ed.text = html.EscapeString(newSrc)
		if !quoted(src, img.SrcStart) {
			ed.text = `"` + ed.text + `"`
		}
	}
	return ed
}

func altEdit(src []byte, img *doctree.ImageRef, name string) (edit, bool) {
	switch img.Kind {
	case doctree.KindMarkdown:
		text := escapeMarkdownAlt(name)
		if text == string(src[img.AltStart:img.AltEnd]) {
			return edit{}, false
		}
		return edit{start: img.AltStart, end: img.AltEnd, text: text}, true

	case doctree.KindHTML:
		text := html.EscapeString(name)
		if img.AltStart >= 0 {
			if text == string(src[img.AltStart:img.AltEnd]) {
				return edit{}, false
			}
			if !quoted(src, img.AltStart) {
				text = `"` + text + `"`
			}
			return edit{start: img.AltStart, end: img.AltEnd, text: text}, true
		}
		at := img.Start + len("<img")
		return edit{start: at, end: at, text: ` alt="` + text + `"`}, true

	case doctree.KindReference:
		text := escapeMarkdownAlt(name)
		if text == string(src[img.AltStart:img.AltEnd]) {
			return edit{}, false
		}
		// In ![alt][] and ![alt] the alt text is the label, so those forms
		// become ![name][label].
		if tail := src[img.AltEnd:img.End]; len(tail) <= len("][]") {
			label := string(src[img.AltStart:img.AltEnd])
			return edit{start: img.Start, end: img.End, text: "![" + text + "][" + label + "]"}, true
		}
		return edit{start: img.AltStart, end: img.AltEnd, text: text}, true

	case doctree.KindWikilink:
		text := strings.NewReplacer("|", " ", "]", " ", "[", " ").Replace(name)
		if img.AltStart >= 0 {
			if text == strings.TrimSpace(string(src[img.AltStart:img.AltEnd])) {
				return edit{}, false
			}
			return edit{start: img.AltStart, end: img.AltEnd, text: text}, true
		}
		at := img.End - len("]]")
		return edit{start: at, end: at, text: "|" + text}, true
	}
	return edit{}, false
}

func quoted(src []byte, valueStart int) bool {
	return valueStart > 0 && (src[valueStart-1] == '"' || src[valueStart-1] == '\'')
}

var mdAltEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)

func escapeMarkdownAlt(s string) string {
	return mdAltEscaper.Replace(s)
}
