package parser

import (
	"regexp"
	"strings"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// walkMarkdown parses body with goldmark and produces the reading-order
// segment stream. Offsets in body match offsets in src; image fields are read
// from src so blanked regions never leak into references.
func walkMarkdown(src, body []byte) ([]doctree.Segment, []*doctree.ImageRef, string) {
	md := goldmark.New()
	pc := gmparser.NewContext()
	root := md.Parser().Parse(text.NewReader(body), gmparser.WithContext(pc))

	// Reference definitions can follow the images that use them, so leaf
	// blocks are gathered before any line is scanned.
	var (
		leaves []ast.Node
		code   [][2]int
	)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if lines := n.Lines(); lines.Len() > 0 {
				code = append(code, [2]int{lines.At(0).Start, lines.At(lines.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.TextBlock:
			// A paragraph made only of definitions leaves an empty text block.
			if n.Lines().Len() > 0 {
				leaves = append(leaves, n)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.Paragraph, *ast.HTMLBlock:
			leaves = append(leaves, n)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	w := &walker{src: src, defs: collectRefDefs(body, pc, code)}
	for _, n := range leaves {
		switch node := n.(type) {
		case *ast.Heading:
			if w.heading == "" {
				w.heading = cleanInline(string(blockSource(node, body)))
			}
			w.scanBlock(node, true)
		case *ast.HTMLBlock:
			w.scanBlock(node, false)
		default:
			w.scanBlock(node, true)
		}
	}

	return w.segments, w.images, w.heading
}

type walker struct {
	src      []byte
	defs     refDefs
	block    int
	heading  string
	segments []doctree.Segment
	images   []*doctree.ImageRef
}

// scanBlock walks the lines of a leaf block, splitting its text around image
// syntax. HTML blocks only contribute images.
func (w *walker) scanBlock(n ast.Node, withText bool) {
	w.block++
	var buf strings.Builder

	flush := func() {
		if !withText {
			buf.Reset()
			return
		}
		if t := cleanInline(buf.String()); t != "" {
			w.segments = append(w.segments, doctree.Segment{Text: t, Block: w.block})
		}
		buf.Reset()
	}

	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := w.src[seg.Start:seg.Stop]
		cursor := 0
		for _, m := range findImages(line, seg.Start, w.defs) {
			buf.Write(line[cursor : m.start-seg.Start])
			flush()
			img := m.toRef(len(w.images) + 1)
			w.images = append(w.images, img)
			w.segments = append(w.segments, doctree.Segment{Block: w.block, Image: img.Index})
			cursor = m.end - seg.Start
		}
		buf.Write(line[cursor:])
		if withText && i < lines.Len()-1 && !strings.HasSuffix(buf.String(), "\n") {
			buf.WriteByte('\n')
		}
	}
	flush()
}

func blockSource(n ast.Node, src []byte) []byte {
	var out []byte
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(src)...)
	}
	return out
}

var (
	inlineLinkRe = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	refLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`)
	autoLinkRe   = regexp.MustCompile(`<(?:https?|mailto):[^>\s]+>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	emphasisRe   = regexp.MustCompile("\\*\\*|__|~~|`+")
	blankRunRe   = regexp.MustCompile(`[ \t\x{3000}]+`)
)

// cleanInline reduces inline Markdown to the words a reader would see.
func cleanInline(s string) string {
	s = autoLinkRe.ReplaceAllString(s, "")
	s = inlineLinkRe.ReplaceAllString(s, "$1")
	s = refLinkRe.ReplaceAllString(s, "$1")
	s = htmlTagRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(blankRunRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
