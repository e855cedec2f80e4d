package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/imgnamer/internal/llm"
)

// Candidate is one proposed name for an image.
type Candidate struct {
	Name       string   `json:"name"`
	Strategy   Strategy `json:"strategy"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence,omitempty"` // nil means not scored
}

func (c Candidate) score() float64 {
	if c.Confidence == nil {
		return -1
	}
	return *c.Confidence
}

// Result is the synthesized outcome of one model response.
type Result struct {
	NormalizedTitle string      `json:"normalized_title,omitempty"`
	Best            *Candidate  `json:"best,omitempty"`
	Candidates      []Candidate `json:"candidates"`
}

var wrapperKeys = []string{"result", "data", "output"}
var nameKeys = []string{"name", "title", "intent"}

// Synthesize turns a model response into ranked candidates, each tagged
// with strategy (or a single-window refinement of it when the model labels
// its evidence). A bare-text reply becomes exactly one unscored candidate.
func Synthesize(resp *llm.Response, strategy Strategy) Result {
	if resp == nil {
		return Result{Candidates: []Candidate{}}
	}

	js := resp.JSON
	if js == nil {
		js, _ = llm.ParseJSON(resp.Text)
	}

	var res Result
	if js != nil {
		res = fromJSON(js, strategy)
	}
	if len(res.Candidates) == 0 && !looksStructured(resp.Text) {
		if c, ok := plainCandidate(bareName(resp.Text), strategy); ok {
			res.Candidates = []Candidate{c}
		}
	}
	return finish(res)
}

// SequentialCandidate is the fixed, model-free candidate for the
// sequential strategy.
func SequentialCandidate(altText string) Result {
	name := cleanName(altText)
	if name == "" {
		name = "image"
	}
	return finish(Result{Candidates: []Candidate{{Name: name, Strategy: Sequential}}})
}

func finish(res Result) Result {
	res.Candidates = Dedupe(res.Candidates)
	res.Best = Best(res.Candidates)
	if res.NormalizedTitle == "" && res.Best != nil {
		res.NormalizedTitle = res.Best.Name
	}
	if res.Candidates == nil {
		res.Candidates = []Candidate{}
	}
	return res
}

func fromJSON(js json.RawMessage, strategy Strategy) Result {
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return Result{}
	}

	var res Result
	switch t := v.(type) {
	case []any:
		res.Candidates = candidateList(t, strategy)
	case map[string]any:
		obj := unwrap(t)
		if list, ok := obj["candidates"].([]any); ok {
			res.Candidates = candidateList(list, strategy)
		} else if list, ok := obj["names"].([]any); ok {
			res.Candidates = candidateList(list, strategy)
		} else if c, ok := candidateFrom(obj, strategy); ok {
			res.Candidates = []Candidate{c}
		}
		if nt, ok := obj["normalized_title"].(string); ok {
			res.NormalizedTitle = cleanName(nt)
		}
	case string:
		if c, ok := plainCandidate(t, strategy); ok {
			res.Candidates = []Candidate{c}
		}
	}
	return res
}

func unwrap(obj map[string]any) map[string]any {
	for _, key := range wrapperKeys {
		inner, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		if _, has := inner["candidates"]; has {
			return inner
		}
		for _, nk := range nameKeys {
			if _, has := inner[nk]; has {
				return inner
			}
		}
	}
	return obj
}

func candidateList(items []any, strategy Strategy) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if c, ok := plainCandidate(t, strategy); ok {
				out = append(out, c)
			}
		case map[string]any:
			if c, ok := candidateFrom(t, strategy); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func plainCandidate(name string, strategy Strategy) (Candidate, bool) {
	c := Candidate{Name: cleanName(name), Strategy: strategy}
	return c, ValidateCandidate(&c)
}

func candidateFrom(obj map[string]any, strategy Strategy) (Candidate, bool) {
	var name string
	for _, key := range nameKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			name = s
			break
		}
	}
	c := Candidate{Name: cleanName(name), Strategy: strategy}
	if label, ok := obj["strategy"].(string); ok {
		c.Strategy = strategy.labelled(label)
	}
	if reason, ok := obj["reason"].(string); ok {
		c.Reason = strings.TrimSpace(reason)
	}
	if conf, ok := confidence(obj["confidence"]); ok {
		c.Confidence = &conf
	}
	if !ValidateCandidate(&c) {
		return Candidate{}, false
	}
	return c, true
}

func confidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return clamp01(f), true
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// bareName reads an unstructured reply: the first non-empty line, without
// list markers, labels or quotes.
func bareName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		if i := strings.IndexAny(line, ":："); i >= 0 && i < 16 {
			label := strings.ToLower(strings.TrimSpace(line[:i]))
			if label == "name" || label == "title" || label == "intent" || label == "名称" {
				_, size := utf8.DecodeRuneInString(line[i:])
				line = line[i+size:]
			}
		}
		if name := cleanName(line); name != "" {
			return name
		}
	}
	return ""
}

func looksStructured(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "```")
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`“”‘’「」《》")
	s = strings.TrimRight(s, ".。…")
	return strings.Join(strings.Fields(s), " ")
}

// Dedupe drops case-insensitive duplicate names, keeping the highest
// confidence instance at the position of the first occurrence.
func Dedupe(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	seen := make(map[string]int, len(cands))
	for _, c := range cands {
		key := strings.ToLower(c.Name)
		if i, ok := seen[key]; ok {
			if c.score() > out[i].score() {
				out[i] = c
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

// Best picks the highest confidence, then the higher-priority strategy,
// then the earliest candidate. Nil when cands is empty.
func Best(cands []Candidate) *Candidate {
	bestIdx := -1
	for i, c := range cands {
		if bestIdx < 0 {
			bestIdx = i
			continue
		}
		b := cands[bestIdx]
		if c.score() > b.score() ||
			(c.score() == b.score() && c.Strategy.Priority() < b.Strategy.Priority()) {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	best := cands[bestIdx]
	return &best
}
