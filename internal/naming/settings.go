package naming

// Settings is the user-facing naming configuration carried by preview and
// apply requests.
type Settings struct {
	Template       string `json:"template" yaml:"template"`
	Strategy       string `json:"strategy" yaml:"strategy"`
	IntentLanguage string `json:"intent_language" yaml:"intent_language"`
	Rules          `yaml:",inline"`
}

// DefaultRules pads sequence numbers to two digits and caps names at 80
// runes.
func DefaultRules() Rules {
	return Rules{SeqWidth: 2, Separator: "_", MaxLength: 80}
}

func DefaultSettings() Settings {
	return Settings{
		Template:       DefaultTemplate,
		Strategy:       "hybrid",
		IntentLanguage: "zh",
		Rules:          DefaultRules(),
	}
}

// WithDefaults fills the template and separator when unset.
func (s Settings) WithDefaults() Settings {
	if s.Template == "" {
		s.Template = DefaultTemplate
	}
	if s.Separator == "" {
		s.Separator = "_"
	}
	if s.SeqWidth < 0 {
		s.SeqWidth = 0
	}
	if s.MaxLength < 0 {
		s.MaxLength = 0
	}
	return s
}
