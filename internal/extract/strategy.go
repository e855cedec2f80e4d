package extract

import (
	"fmt"
	"strings"
)

// Strategy selects which context windows and which modality feed a naming
// request.
type Strategy string

const (
	Sequential Strategy = "sequential"
	Above      Strategy = "above-context"
	Below      Strategy = "below-context"
	Vision     Strategy = "vision"
	Hybrid     Strategy = "hybrid"
	Scientific Strategy = "scientific"
)

// Strategies lists every strategy in best-selection priority order.
var Strategies = []Strategy{Vision, Hybrid, Above, Below, Sequential, Scientific}

var strategyAliases = map[string]Strategy{
	"sequential":    Sequential,
	"seq":           Sequential,
	"above-context": Above,
	"above":         Above,
	"below-context": Below,
	"below":         Below,
	"vision":        Vision,
	"hybrid":        Hybrid,
	"intent":        Hybrid,
	"scientific":    Scientific,
}

// ParseStrategy accepts the canonical names and the short forms "above",
// "below", "seq" and "intent". An empty string means Hybrid.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return Hybrid, nil
	}
	key = strings.ReplaceAll(key, "_", "-")
	if st, ok := strategyAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown naming strategy %q", s)
}

// Priority ranks strategies for tie-breaking; lower wins.
func (s Strategy) Priority() int {
	for i, st := range Strategies {
		if st == s {
			return i
		}
	}
	return len(Strategies)
}

// NeedsModel reports whether the strategy calls the LLM at all.
func (s Strategy) NeedsModel() bool { return s != Sequential }

// labelled maps a model-declared candidate label onto a strategy. Only
// multi-window requests can be refined to a single window.
func (s Strategy) labelled(label string) Strategy {
	if s != Hybrid && s != Vision {
		return s
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "above", "above-context", "above_context":
		return Above
	case "below", "below-context", "below_context":
		return Below
	}
	return s
}
