package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind string
		text string
	}{
		{
			name: "choices string content",
			raw:  `{"choices":[{"message":{"role":"assistant","content":"name_a"}}]}`,
			kind: "string",
			text: "name_a",
		},
		{
			name: "choices block content",
			raw:  `{"choices":[{"message":{"content":[{"type":"text","text":"line1"},{"type":"image"},{"type":"text","text":"line2"}]}}]}`,
			kind: "structured",
			text: "line1\nline2",
		},
		{
			name: "choices parsed when content null",
			raw:  `{"choices":[{"message":{"content":null,"parsed":{"name":"x"}}}]}`,
			kind: "string",
			text: `{"name":"x"}`,
		},
		{
			name: "legacy completion text",
			raw:  `{"choices":[{"text":"legacy"}]}`,
			kind: "string",
			text: "legacy",
		},
		{
			name: "output_text fragments",
			raw:  `{"output_text":["na","me_a"]}`,
			kind: "fragments",
			text: "name_a",
		},
		{
			name: "output_text string",
			raw:  `{"output_text":"plain"}`,
			kind: "string",
			text: "plain",
		},
		{
			name: "responses output items",
			raw:  `{"output":[{"type":"message","content":[{"type":"output_text","text":"from output"}]}]}`,
			kind: "structured",
			text: "from output",
		},
		{
			name: "anthropic style content",
			raw:  `{"content":[{"type":"text","text":"hello"}]}`,
			kind: "structured",
			text: "hello",
		},
		{
			name: "nested text value",
			raw:  `{"content":[{"type":"text","text":{"value":"deep"}}]}`,
			kind: "structured",
			text: "deep",
		},
		{
			name: "ollama message",
			raw:  `{"message":{"role":"assistant","content":"ollama"}}`,
			kind: "string",
			text: "ollama",
		},
		{
			name: "ollama generate",
			raw:  `{"response":"gen"}`,
			kind: "string",
			text: "gen",
		},
		{
			name: "unknown object",
			raw:  `{"foo":"bar"}`,
			kind: "unrecognized",
			text: "",
		},
		{
			name: "not json",
			raw:  `<html>bad gateway</html>`,
			kind: "unrecognized",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ResolveBody([]byte(tt.raw))
			require.NotNil(t, b)
			assert.Equal(t, tt.kind, b.Kind())
			assert.Equal(t, tt.text, b.Text())
		})
	}
}

func TestResolveBodyUnrecognizedKeepsRaw(t *testing.T) {
	raw := []byte(`{"foo":1}`)
	b, ok := ResolveBody(raw).(Unrecognized)
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(b.Raw))
}
