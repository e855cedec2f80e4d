package doctree

import "strings"

// ImageKind is the source syntax an image reference was written in.
type ImageKind string

const (
	KindMarkdown ImageKind = "markdown" // ![alt](src "title")
	KindHTML     ImageKind = "html"     // <img src="..." alt="...">
	KindWikilink ImageKind = "wikilink" // ![[src|alias]]
	// ![alt][label] resolved through a "[label]: src" definition. The src
	// span points into the definition, which other images may share.
	KindReference ImageKind = "reference"
)

// Document is a parsed Markdown file and the images found in it.
type Document struct {
	Path     string      // File path (may be empty for in-memory sources)
	Source   []byte      // UTF-8 source (BOM dropped, GB18030 decoded)
	Title    string      // Front matter title, first heading, or file stem
	Segments []Segment   // Text and image markers in document order
	Images   []*ImageRef // Images in document order; Images[i].Index == i+1
}

// Segment is one unit of the document's reading order: either a run of
// plain text belonging to one block, or a marker for an image.
type Segment struct {
	Text  string // Plain text (empty for image markers)
	Block int    // Ordinal of the enclosing Markdown block
	Image int    // 1-based image index, 0 for text
}

// IsImage reports whether the segment marks an image.
func (s Segment) IsImage() bool { return s.Image > 0 }

// ImageRef is one image occurrence with its surrounding context.
type ImageRef struct {
	Index        int       `json:"index"`
	Kind         ImageKind `json:"kind"`
	Src          string    `json:"src"`
	Alt          string    `json:"alt_text,omitempty"`
	TitleAttr    string    `json:"title_attr,omitempty"`
	BlockIndex   int       `json:"block_index"`
	ImageIndex   int       `json:"image_index"`
	AboveText    string    `json:"above_text"`
	BelowText    string    `json:"below_text"`
	BetweenText  string    `json:"between_text"`
	ExplicitRefs []string  `json:"explicit_refs"`

	// Byte span of the full image syntax within Document.Source.
	Start int `json:"-"`
	End   int `json:"-"`
	// Byte span of the target (src) within Document.Source.
	SrcStart int `json:"-"`
	SrcEnd   int `json:"-"`
	// Byte span of the alt text, or -1 when the syntax carries none.
	AltStart int `json:"-"`
	AltEnd   int `json:"-"`
}

// Remote reports whether the reference points at an http(s) URL.
func (r *ImageRef) Remote() bool {
	s := strings.ToLower(strings.TrimSpace(r.Src))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Image returns the image with the given 1-based index, or nil.
func (d *Document) Image(index int) *ImageRef {
	if index < 1 || index > len(d.Images) {
		return nil
	}
	return d.Images[index-1]
}
