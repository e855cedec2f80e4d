package window

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/imgnamer/internal/doctree"
)

var (
	// Numbered references: 图3, 如图 3, 见图3, Figure 3, Fig. 3.
	numberedRefRe = regexp.MustCompile(`(?i)(?:(?:如|见|参见|详见)\s*)?图\s*(\d+)|\bfig(?:ure)?\.?\s*(\d+)`)

	// Directional references that point at the neighbouring image.
	directionalRefRe = regexp.MustCompile(`(?i)如上图所示|如下图所示|见上图|见下图|如前图|见前图|上图|下图|如上所示|如下所示|\bthe\s+(?:figure|image|picture)\s+(?:above|below)\b|\b(?:above|below|following|preceding)\s+(?:figure|image|picture)\b`)
)

// attachExplicitRefs scans the whole document for numbered references and
// assigns each to the image whose ordinal matches. Directional phrases are
// taken from each image's own windows.
func attachExplicitRefs(doc *doctree.Document) {
	byIndex := make(map[int][]string)
	for _, seg := range doc.Segments {
		if seg.IsImage() {
			continue
		}
		for _, m := range numberedRefRe.FindAllStringSubmatch(seg.Text, -1) {
			num := m[1]
			if num == "" {
				num = m[2]
			}
			n, err := strconv.Atoi(num)
			if err != nil || n < 1 || n > len(doc.Images) {
				continue
			}
			byIndex[n] = append(byIndex[n], strings.TrimSpace(m[0]))
		}
	}

	for _, img := range doc.Images {
		refs := byIndex[img.Index]
		refs = append(refs, directionalRefs(img.AboveText)...)
		refs = append(refs, directionalRefs(img.BelowText)...)
		img.ExplicitRefs = dedupe(refs)
	}
}

func directionalRefs(text string) []string {
	return directionalRefRe.FindAllString(text, -1)
}

func stripRefs(s string) string {
	s = numberedRefRe.ReplaceAllString(s, "")
	return directionalRefRe.ReplaceAllString(s, "")
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
