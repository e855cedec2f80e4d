package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/imgnamer/internal/doctree"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// SupportedExtensions lists the document extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdown":    true,
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ParseFile reads a Markdown document from disk and parses it.
func ParseFile(path string) (*doctree.Document, error) {
	if !IsSupportedExtension(path) {
		return nil, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	src, err := DecodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return Parse(src, path), nil
}

// Parse builds a Document from Markdown source. Image context windows are
// left empty; the window package fills them in.
func Parse(src []byte, path string) *doctree.Document {
	doc := &doctree.Document{
		Path:   path,
		Source: src,
	}

	body, fmTitle := splitFrontMatter(src)
	segments, images, heading := walkMarkdown(src, body)
	doc.Segments = segments
	doc.Images = images

	switch {
	case fmTitle != "":
		doc.Title = fmTitle
	case heading != "":
		doc.Title = heading
	default:
		doc.Title = fileStem(path)
	}
	return doc
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText returns UTF-8 bytes for a document. A UTF-8 byte order mark is
// dropped; input that is not valid UTF-8 is decoded as GB18030.
func DecodeText(raw []byte) ([]byte, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return raw, nil
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("not utf-8 and not gb18030: %w", err)
	}
	return out, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	if path == "" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
