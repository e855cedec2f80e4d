package parser

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"golang.org/x/net/html"
)

var (
	mdImageRe   = regexp.MustCompile(`!\[([^\]]*)\]\(((?:[^()\\]|\\.|\([^()]*\))+)\)`)
	wikiImageRe = regexp.MustCompile(`!\[\[([^\]|]+)(?:\|([^\]]*))?\]\]`)
	htmlImgRe   = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	refImageRe  = regexp.MustCompile(`!\[([^\]]*)\](?:\[([^\]]*)\])?`)
)

// imageMatch is one image syntax occurrence with absolute byte offsets.
type imageMatch struct {
	kind       doctree.ImageKind
	start, end int
	src        string
	alt        string
	title      string

	srcStart, srcEnd int
	altStart, altEnd int
}

func (m imageMatch) toRef(index int) *doctree.ImageRef {
	return &doctree.ImageRef{
		Index:        index,
		Kind:         m.kind,
		Src:          m.src,
		Alt:          m.alt,
		TitleAttr:    m.title,
		ExplicitRefs: []string{},
		Start:        m.start,
		End:          m.end,
		SrcStart:     m.srcStart,
		SrcEnd:       m.srcEnd,
		AltStart:     m.altStart,
		AltEnd:       m.altEnd,
	}
}

// findImages locates every image syntax in one source line. base is the
// line's offset within the document. Matches inside code spans or behind a
// backslash escape are ignored; overlapping matches keep the earliest.
// Reference images only count when defs holds their label.
func findImages(line []byte, base int, defs refDefs) []imageMatch {
	var out []imageMatch

	for _, loc := range wikiImageRe.FindAllSubmatchIndex(line, -1) {
		m := imageMatch{
			kind:     doctree.KindWikilink,
			start:    base + loc[0],
			end:      base + loc[1],
			src:      strings.TrimSpace(string(line[loc[2]:loc[3]])),
			srcStart: base + loc[2],
			srcEnd:   base + loc[3],
			altStart: -1,
			altEnd:   -1,
		}
		if loc[4] >= 0 {
			m.alt = strings.TrimSpace(string(line[loc[4]:loc[5]]))
			m.altStart, m.altEnd = base+loc[4], base+loc[5]
		}
		out = append(out, m)
	}

	for _, loc := range mdImageRe.FindAllSubmatchIndex(line, -1) {
		src, title, sOff, eOff := splitTarget(string(line[loc[4]:loc[5]]))
		out = append(out, imageMatch{
			kind:     doctree.KindMarkdown,
			start:    base + loc[0],
			end:      base + loc[1],
			src:      src,
			alt:      string(line[loc[2]:loc[3]]),
			title:    title,
			srcStart: base + loc[4] + sOff,
			srcEnd:   base + loc[4] + eOff,
			altStart: base + loc[2],
			altEnd:   base + loc[3],
		})
	}

	out = append(out, findRefImages(line, base, defs)...)

	for _, loc := range htmlImgRe.FindAllIndex(line, -1) {
		tag := line[loc[0]:loc[1]]
		attrs := imgAttributes(tag)
		sStart, sEnd := attrValueSpan(tag, "src")
		if sStart < 0 {
			continue
		}
		m := imageMatch{
			kind:     doctree.KindHTML,
			start:    base + loc[0],
			end:      base + loc[1],
			src:      strings.TrimSpace(attrs["src"]),
			alt:      attrs["alt"],
			title:    attrs["title"],
			srcStart: base + loc[0] + sStart,
			srcEnd:   base + loc[0] + sEnd,
			altStart: -1,
			altEnd:   -1,
		}
		if aStart, aEnd := attrValueSpan(tag, "alt"); aStart >= 0 {
			m.altStart, m.altEnd = base+loc[0]+aStart, base+loc[0]+aEnd
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })

	spans := codeSpans(line)
	kept := out[:0]
	lastEnd := -1
	for _, m := range out {
		rel := m.start - base
		if m.start < lastEnd || insideSpan(rel, spans) || (rel > 0 && line[rel-1] == '\\') {
			continue
		}
		kept = append(kept, m)
		lastEnd = m.end
	}
	return kept
}

// findRefImages matches full (![alt][label]), collapsed (![alt][]) and
// shortcut (![alt]) reference images. The src span is the definition's
// destination.
func findRefImages(line []byte, base int, defs refDefs) []imageMatch {
	if len(defs) == 0 {
		return nil
	}
	var out []imageMatch
	for _, loc := range refImageRe.FindAllSubmatchIndex(line, -1) {
		if loc[1] < len(line) && line[loc[1]] == '(' {
			continue // inline image
		}
		if loc[4] < 0 && loc[1] < len(line) && line[loc[1]] == '[' {
			continue
		}
		label := string(line[loc[2]:loc[3]])
		if loc[4] >= 0 && loc[5] > loc[4] {
			label = string(line[loc[4]:loc[5]])
		}
		def, ok := defs.lookup(label)
		if !ok {
			continue
		}
		out = append(out, imageMatch{
			kind:     doctree.KindReference,
			start:    base + loc[0],
			end:      base + loc[1],
			src:      strings.TrimSpace(def.dest),
			alt:      string(line[loc[2]:loc[3]]),
			title:    def.title,
			srcStart: def.start,
			srcEnd:   def.end,
			altStart: base + loc[2],
			altEnd:   base + loc[3],
		})
	}
	return out
}

// splitTarget separates a Markdown link destination from its optional title.
// The returned offsets delimit the destination within target.
func splitTarget(target string) (src, title string, start, end int) {
	start = len(target) - len(strings.TrimLeft(target, " \t"))
	rest := target[start:]

	if strings.HasPrefix(rest, "<") {
		if closing := strings.IndexByte(rest, '>'); closing > 0 {
			src = rest[1:closing]
			title = trimTitle(rest[closing+1:])
			return src, title, start + 1, start + closing
		}
	}

	cut := strings.IndexAny(rest, " \t")
	if cut < 0 {
		src = strings.TrimRight(rest, " \t")
		return src, "", start, start + len(src)
	}
	src = rest[:cut]
	return src, trimTitle(rest[cut:]), start, start + cut
}

func trimTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '(' && last == ')') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// imgAttributes tokenizes a single <img> tag.
func imgAttributes(tag []byte) map[string]string {
	attrs := make(map[string]string)
	z := html.NewTokenizer(bytes.NewReader(tag))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return attrs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		for _, a := range tok.Attr {
			attrs[strings.ToLower(a.Key)] = a.Val
		}
		return attrs
	}
}

var attrValueRes = map[string]*regexp.Regexp{
	"src": regexp.MustCompile(`(?i)\ssrc\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`),
	"alt": regexp.MustCompile(`(?i)\salt\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`),
}

// attrValueSpan returns the byte span of an attribute value inside tag, or
// (-1, -1) when the attribute is missing.
func attrValueSpan(tag []byte, name string) (int, int) {
	loc := attrValueRes[name].FindSubmatchIndex(tag)
	if loc == nil {
		return -1, -1
	}
	for g := 1; g <= 3; g++ {
		if loc[2*g] >= 0 {
			return loc[2*g], loc[2*g+1]
		}
	}
	return -1, -1
}

// codeSpans returns [start, end) ranges of inline code within line.
func codeSpans(line []byte) [][2]int {
	var spans [][2]int
	for i := 0; i < len(line); {
		if line[i] != '`' {
			i++
			continue
		}
		run := 0
		for i+run < len(line) && line[i+run] == '`' {
			run++
		}
		fence := bytes.Repeat([]byte{'`'}, run)
		closeAt := -1
		for j := i + run; j <= len(line)-run; {
			k := bytes.Index(line[j:], fence)
			if k < 0 {
				break
			}
			k += j
			end := k + run
			if (end >= len(line) || line[end] != '`') && (k == 0 || line[k-1] != '`') {
				closeAt = end
				break
			}
			j = end
			for j < len(line) && line[j] == '`' {
				j++
			}
		}
		if closeAt < 0 {
			i += run
			continue
		}
		spans = append(spans, [2]int{i, closeAt})
		i = closeAt
	}
	return spans
}

func insideSpan(pos int, spans [][2]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}
