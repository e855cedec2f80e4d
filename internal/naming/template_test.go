package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		ph       Placeholders
		rules    Rules
		want     string
	}{
		{
			name:     "seq padded",
			template: "{seq}_{intent}",
			ph:       Placeholders{"seq": "1", "intent": "cat"},
			rules:    Rules{SeqWidth: 3},
			want:     "001_cat",
		},
		{
			name:     "seq width zero drops leading zeros",
			template: "{seq}_{intent}",
			ph:       Placeholders{"seq": "007", "intent": "cat"},
			want:     "7_cat",
		},
		{
			name:     "inline width overrides rules",
			template: "{seq:4}-{block:02d}",
			ph:       Placeholders{"seq": "12", "block": "3"},
			rules:    Rules{SeqWidth: 1, Separator: "-"},
			want:     "0012-03",
		},
		{
			name:     "unresolved placeholder kept verbatim",
			template: "{title}_{tilte}_{intent}",
			ph:       Placeholders{"title": "My Doc", "intent": "Flow"},
			want:     "my_doc_{tilte}_flow",
		},
		{
			name:     "unresolved placeholder survives strip and case",
			template: "{Intent}_{Missing}",
			ph:       Placeholders{"intent": "Chart"},
			rules:    Rules{StripSpecial: true},
			want:     "chart_{Missing}",
		},
		{
			name:     "case sensitive keeps case",
			template: "{title}_{intent}",
			ph:       Placeholders{"title": "API", "intent": "Login Flow"},
			rules:    Rules{CaseSensitive: true},
			want:     "API_Login_Flow",
		},
		{
			name:     "separator runs collapse",
			template: "{title}__{intent}",
			ph:       Placeholders{"title": "a ", "intent": "  b"},
			want:     "a_b",
		},
		{
			name:     "custom separator",
			template: "{title} {intent}",
			ph:       Placeholders{"title": "big  data", "intent": "chart"},
			rules:    Rules{Separator: "-"},
			want:     "big-data-chart",
		},
		{
			name:     "strip special removes non ascii",
			template: "{intent}",
			ph:       Placeholders{"intent": "图表 Chart!"},
			rules:    Rules{StripSpecial: true},
			want:     "chart",
		},
		{
			name:     "reserved characters removed",
			template: "{intent}",
			ph:       Placeholders{"intent": `a/b:c*d?"e"<f>|g\h`},
			want:     "abcdefgh",
		},
		{
			name:     "cjk kept without strip",
			template: "{title}_{intent}",
			ph:       Placeholders{"title": "部署指南", "intent": "系统 架构"},
			want:     "部署指南_系统_架构",
		},
		{
			name:     "image extension removed from intent",
			template: "{intent}",
			ph:       Placeholders{"intent": "chart.PNG"},
			want:     "chart",
		},
		{
			name:     "text limit",
			template: "{intent:5}",
			ph:       Placeholders{"intent": "abcdefgh"},
			want:     "abcde",
		},
		{
			name:     "max length at word boundary",
			template: "{intent}",
			ph:       Placeholders{"intent": "alpha beta gamma"},
			rules:    Rules{MaxLength: 12},
			want:     "alpha_beta",
		},
		{
			name:     "max length hard cut without boundary",
			template: "{intent}",
			ph:       Placeholders{"intent": "abcdefghijkl"},
			rules:    Rules{MaxLength: 5},
			want:     "abcde",
		},
		{
			name:     "max length counts runes",
			template: "{intent}",
			ph:       Placeholders{"intent": "一二三四五六"},
			rules:    Rules{MaxLength: 4},
			want:     "一二三四",
		},
		{
			name:     "edges trimmed",
			template: "_{title}_{intent}.",
			ph:       Placeholders{"title": "", "intent": "x"},
			want:     "x",
		},
		{
			name:     "nfc normalization",
			template: "{intent}",
			ph:       Placeholders{"intent": "cafe\u0301"},
			want:     "caf\u00e9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, tt.ph, tt.rules)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Render(tt.template, tt.ph, tt.rules), "render must be deterministic")
		})
	}
}

func TestPadNumber(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"1", 3, "001"},
		{"001", 0, "1"},
		{"0", 0, "0"},
		{"000", 2, "00"},
		{"1234", 2, "1234"},
		{"a1", 3, "a1"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PadNumber(tt.in, tt.width), "%q width %d", tt.in, tt.width)
	}
}

func TestCollisionResolver(t *testing.T) {
	cr := NewCollisionResolver("_", nil)

	assert.Equal(t, "chart.png", cr.Resolve("1", "chart.png"))
	assert.Equal(t, "chart.png", cr.Resolve("1", "chart.png"), "same owner keeps its name")
	assert.Equal(t, "chart_2.png", cr.Resolve("2", "chart.png"))
	assert.Equal(t, "Chart_3.png", cr.Resolve("3", "Chart.png"), "comparison ignores case")
}

func TestCollisionResolver_ConsultsTaken(t *testing.T) {
	onDisk := map[string]bool{"diagram.png": true, "diagram-2.png": true}
	cr := NewCollisionResolver("-", func(name string) bool { return onDisk[name] })

	assert.Equal(t, "diagram-3.png", cr.Resolve("1", "diagram.png"))
	assert.Equal(t, "fresh.png", cr.Resolve("2", "fresh.png"))
}

func TestCollisionResolver_Claim(t *testing.T) {
	cr := NewCollisionResolver("", nil)
	cr.Claim("4", "kept.png")
	assert.Equal(t, "kept_2.png", cr.Resolve("5", "kept.png"))
	assert.Equal(t, "kept.png", cr.Resolve("4", "kept.png"))
}
