package llm

import (
	"fmt"
	"strings"
	"time"
)

// Settings configures one client instance. They are fixed for the lifetime
// of a processing pass.
type Settings struct {
	BaseURL    string  `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey     string  `json:"api_key" yaml:"api_key"`
	Model      string  `json:"model" yaml:"model"`
	Timeout    float64 `json:"timeout" yaml:"timeout" validate:"gte=0"`         // seconds per call
	MaxRetries int     `json:"max_retries" yaml:"max_retries" validate:"gte=0"` // retries after the first attempt
	RateLimit  float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`   // minimum seconds between dispatches
	Vision     bool    `json:"vision" yaml:"vision"`
	BatchSize  int     `json:"batch_size" yaml:"batch_size" validate:"gte=0,lte=64"` // max requests in flight
}

// DefaultSettings returns the connection-independent defaults.
func DefaultSettings() Settings {
	return Settings{
		Timeout:    120,
		MaxRetries: 3,
		RateLimit:  0.4,
		BatchSize:  5,
	}
}

// WithDefaults fills unset numeric fields.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.RateLimit < 0 {
		s.RateLimit = 0
	}
	if s.BatchSize <= 0 {
		s.BatchSize = d.BatchSize
	}
	return s
}

// Merge returns s with zero-valued fields taken from fallback. Vision is
// enabled when either side enables it.
func (s Settings) Merge(fallback Settings) Settings {
	if s.BaseURL == "" {
		s.BaseURL = fallback.BaseURL
	}
	if s.APIKey == "" {
		s.APIKey = fallback.APIKey
	}
	if s.Model == "" {
		s.Model = fallback.Model
	}
	if s.Timeout <= 0 {
		s.Timeout = fallback.Timeout
	}
	if s.BatchSize <= 0 {
		s.BatchSize = fallback.BatchSize
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = fallback.MaxRetries
	}
	if s.RateLimit == 0 {
		s.RateLimit = fallback.RateLimit
	}
	s.Vision = s.Vision || fallback.Vision
	return s
}

// Validate reports the first missing connection field.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("ai base_url is required")
	}
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("ai model is required")
	}
	return nil
}

// CallTimeout is the per-call deadline.
func (s Settings) CallTimeout() time.Duration {
	return time.Duration(s.Timeout * float64(time.Second))
}

// Interval is the minimum spacing between dispatches.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.RateLimit * float64(time.Second))
}

// chatEndpoint resolves the chat-completions URL for a base URL that may or
// may not already include the path.
func chatEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}
