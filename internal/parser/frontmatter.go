package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var frontMatterRe = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n(?:---|\.\.\.)[ \t]*(?:\r?\n|\z)`)

// splitFrontMatter returns a copy of src with any leading YAML front matter
// blanked out (byte offsets are preserved) and the front matter title.
func splitFrontMatter(src []byte) ([]byte, string) {
	loc := frontMatterRe.FindSubmatchIndex(src)
	if loc == nil {
		return src, ""
	}

	var meta map[string]any
	title := ""
	if err := yaml.Unmarshal(src[loc[2]:loc[3]], &meta); err == nil {
		for _, key := range []string{"title", "Title", "name"} {
			if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
				title = strings.TrimSpace(v)
				break
			}
		}
	}

	body := make([]byte, len(src))
	copy(body, src)
	for i := loc[0]; i < loc[1]; i++ {
		if body[i] != '\n' {
			body[i] = ' '
		}
	}
	return body, title
}
