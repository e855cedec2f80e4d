package parser

import (
	"regexp"

	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/util"
)

// refDef is a link reference definition with the byte span of its
// destination in the document source.
type refDef struct {
	dest, title string
	start, end  int
}

// refDefs is keyed by the normalized label.
type refDefs map[string]refDef

var refDefRe = regexp.MustCompile(`(?m)^ {0,3}\[([^\]\n]+)\]:[ \t]*(?:<([^>\n]*)>|(\S+))(?:[ \t]+(?:"([^"\n]*)"|'([^'\n]*)'|\(([^)\n]*)\)))?[ \t]*$`)

// collectRefDefs finds the definitions goldmark registered in pc and
// locates them in body. Only the first definition of a label counts, and
// lines inside code blocks are not definitions.
func collectRefDefs(body []byte, pc gmparser.Context, code [][2]int) refDefs {
	defs := refDefs{}
	for _, loc := range refDefRe.FindAllSubmatchIndex(body, -1) {
		if insideSpan(loc[0], code) {
			continue
		}
		key := util.ToLinkReference(body[loc[2]:loc[3]])
		if _, seen := defs[key]; seen {
			continue
		}
		if _, ok := pc.Reference(key); !ok {
			continue
		}
		d := refDef{}
		if loc[4] >= 0 {
			d.start, d.end = loc[4], loc[5]
		} else {
			d.start, d.end = loc[6], loc[7]
		}
		d.dest = string(body[d.start:d.end])
		for g := 4; g <= 6; g++ {
			if loc[2*g] >= 0 {
				d.title = string(body[loc[2*g]:loc[2*g+1]])
				break
			}
		}
		defs[key] = d
	}
	return defs
}

func (d refDefs) lookup(label string) (refDef, bool) {
	if len(d) == 0 {
		return refDef{}, false
	}
	def, ok := d[util.ToLinkReference([]byte(label))]
	return def, ok
}
