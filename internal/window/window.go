// Package window computes the text context around each image of a parsed
// document: the above/below/between windows, explicit figure references,
// and the block/image numbering used for sequence placeholders.
package window

import (
	"strings"
	"unicode"

	"github.com/dgallion1/imgnamer/internal/doctree"
)

// Options holds the per-window character budgets. Budgets count runes; a
// non-positive budget falls back to the default.
type Options struct {
	AboveBudget   int
	BelowBudget   int
	BetweenBudget int
	// MinBlockLetters is the number of letters of intervening text needed
	// before an image opens a new figure block.
	MinBlockLetters int
}

// DefaultOptions returns the budgets used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		AboveBudget:     600,
		BelowBudget:     600,
		BetweenBudget:   600,
		MinBlockLetters: 8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AboveBudget <= 0 {
		o.AboveBudget = d.AboveBudget
	}
	if o.BelowBudget <= 0 {
		o.BelowBudget = d.BelowBudget
	}
	if o.BetweenBudget <= 0 {
		o.BetweenBudget = d.BetweenBudget
	}
	if o.MinBlockLetters <= 0 {
		o.MinBlockLetters = d.MinBlockLetters
	}
	return o
}

// Annotate fills the context fields of every image in doc.
func Annotate(doc *doctree.Document, opts Options) {
	opts = opts.withDefaults()

	positions := make(map[int]int, len(doc.Images))
	for i, seg := range doc.Segments {
		if seg.IsImage() {
			positions[seg.Image] = i
		}
	}

	block, idx := 0, 0
	for _, img := range doc.Images {
		pos, ok := positions[img.Index]
		if !ok {
			continue
		}
		above := collect(doc.Segments, pos, -1)
		below := collect(doc.Segments, pos, +1)

		img.AboveText = TruncateTail(above, opts.AboveBudget)
		img.BelowText = TruncateHead(below, opts.BelowBudget)
		img.BetweenText = ""
		if img.Index < len(doc.Images) {
			img.BetweenText = TruncateHead(below, opts.BetweenBudget)
		}

		if block == 0 || letterCount(stripRefs(above)) >= opts.MinBlockLetters {
			block++
			idx = 1
		} else {
			idx++
		}
		img.BlockIndex = block
		img.ImageIndex = idx
	}

	attachExplicitRefs(doc)
}

// collect gathers the text segments adjacent to pos in direction dir,
// stopping at the neighbouring image. Paragraphs are joined by a blank line
// and returned in reading order.
func collect(segs []doctree.Segment, pos, dir int) string {
	var parts []string
	for i := pos + dir; i >= 0 && i < len(segs); i += dir {
		if segs[i].IsImage() {
			break
		}
		parts = append(parts, segs[i].Text)
	}
	if dir < 0 {
		for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
			parts[l], parts[r] = parts[r], parts[l]
		}
	}
	return strings.Join(parts, "\n\n")
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
