package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Body is a provider response reduced to one of four known shapes. It is
// resolved once per response by ResolveBody.
type Body interface {
	// Kind names the shape for logs and diagnostics.
	Kind() string
	// Text is the flattened text; empty for Unrecognized.
	Text() string
	isBody()
}

// StringBody is a single text value, e.g. choices[0].message.content.
type StringBody struct {
	Value string
}

// FragmentArrayBody is a list of text fragments, e.g. output_text: [...].
// Fragments are concatenated without a separator.
type FragmentArrayBody struct {
	Fragments []string
}

// StructuredBody is a list of typed content blocks. Text blocks are joined
// with newlines; non-text blocks are ignored.
type StructuredBody struct {
	Blocks []ContentBlock
}

// ContentBlock is one typed block of a structured response.
type ContentBlock struct {
	Type string
	Text string
}

// Unrecognized keeps a payload whose shape matched nothing known.
type Unrecognized struct {
	Raw json.RawMessage
}

func (StringBody) Kind() string        { return "string" }
func (FragmentArrayBody) Kind() string { return "fragments" }
func (StructuredBody) Kind() string    { return "structured" }
func (Unrecognized) Kind() string      { return "unrecognized" }

func (b StringBody) Text() string        { return b.Value }
func (b FragmentArrayBody) Text() string { return strings.Join(b.Fragments, "") }
func (Unrecognized) Text() string        { return "" }

func (b StructuredBody) Text() string {
	var parts []string
	for _, blk := range b.Blocks {
		if blk.Text != "" {
			parts = append(parts, blk.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (StringBody) isBody()        {}
func (FragmentArrayBody) isBody() {}
func (StructuredBody) isBody()    {}
func (Unrecognized) isBody()      {}

// ResolveBody detects which known shape raw follows. Checked in order:
// OpenAI-style choices, output_text, Responses-API output, top-level content,
// Ollama-style message/response.
func ResolveBody(raw []byte) Body {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Unrecognized{Raw: raw}
	}

	if choices, ok := top["choices"]; ok {
		if b := fromChoices(choices); b != nil {
			return b
		}
	}
	if ot, ok := top["output_text"]; ok {
		if b := fromStringOrFragments(ot); b != nil {
			return b
		}
	}
	if out, ok := top["output"]; ok {
		if b := fromOutputItems(out); b != nil {
			return b
		}
	}
	if content, ok := top["content"]; ok {
		if b := fromContent(content); b != nil {
			return b
		}
	}
	if msg, ok := top["message"]; ok {
		var m struct {
			Content json.RawMessage `json:"content"`
		}
		if json.Unmarshal(msg, &m) == nil && m.Content != nil {
			if b := fromContent(m.Content); b != nil {
				return b
			}
		}
	}
	if r, ok := top["response"]; ok {
		var s string
		if json.Unmarshal(r, &s) == nil {
			return StringBody{Value: s}
		}
	}
	return Unrecognized{Raw: raw}
}

func fromChoices(raw json.RawMessage) Body {
	var choices []struct {
		Message *struct {
			Content json.RawMessage `json:"content"`
			Parsed  json.RawMessage `json:"parsed"`
		} `json:"message"`
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return nil
	}
	first := choices[0]
	if first.Message != nil {
		if b := fromContent(first.Message.Content); b != nil && b.Text() != "" {
			return b
		}
		if len(first.Message.Parsed) > 0 && !isJSONNull(first.Message.Parsed) {
			return StringBody{Value: string(first.Message.Parsed)}
		}
		if b := fromContent(first.Message.Content); b != nil {
			return b
		}
	}
	if first.Text != nil {
		return StringBody{Value: *first.Text}
	}
	return nil
}

// fromContent handles a content value that is either a string or a list of
// blocks.
func fromContent(raw json.RawMessage) Body {
	if len(raw) == 0 || isJSONNull(raw) {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return StringBody{Value: s}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	blocks := make([]ContentBlock, 0, len(items))
	for _, item := range items {
		if blk, ok := decodeBlock(item); ok {
			blocks = append(blocks, blk)
		}
	}
	return StructuredBody{Blocks: blocks}
}

func fromStringOrFragments(raw json.RawMessage) Body {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return StringBody{Value: s}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	frags := make([]string, 0, len(items))
	for _, item := range items {
		if json.Unmarshal(item, &s) == nil {
			frags = append(frags, s)
			continue
		}
		if blk, ok := decodeBlock(item); ok {
			frags = append(frags, blk.Text)
		}
	}
	return FragmentArrayBody{Fragments: frags}
}

func fromOutputItems(raw json.RawMessage) Body {
	var items []struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return StringBody{Value: s}
		}
		return nil
	}
	var blocks []ContentBlock
	for _, item := range items {
		switch b := fromContent(item.Content).(type) {
		case StructuredBody:
			blocks = append(blocks, b.Blocks...)
		case StringBody:
			blocks = append(blocks, ContentBlock{Type: item.Type, Text: b.Value})
		}
	}
	if len(blocks) == 0 {
		return nil
	}
	return StructuredBody{Blocks: blocks}
}

// decodeBlock reads {"type": ..., "text": "..."} and the nested
// {"text": {"value": "..."}} variant. Blocks without text are skipped.
func decodeBlock(raw json.RawMessage) (ContentBlock, bool) {
	var blk struct {
		Type    string          `json:"type"`
		Text    json.RawMessage `json:"text"`
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(raw, &blk) != nil {
		return ContentBlock{}, false
	}
	if text, ok := textValue(blk.Text); ok {
		return ContentBlock{Type: blk.Type, Text: text}, true
	}
	if text, ok := textValue(blk.Content); ok {
		return ContentBlock{Type: blk.Type, Text: text}, true
	}
	return ContentBlock{}, false
}

func textValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var v struct {
		Value *string `json:"value"`
	}
	if json.Unmarshal(raw, &v) == nil && v.Value != nil {
		return *v.Value, true
	}
	return "", false
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
